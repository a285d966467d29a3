package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Model は教師あり学習モデルの基本インターフェース
type Model interface {
	Fitter
	Predictor
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// LinearModel は係数を公開する線形モデルのインターフェース。
// 再帰的特徴量削減は係数の絶対値で列の重要度を決める。
type LinearModel interface {
	Model
	// Coefficients は学習された係数（特徴量の順序どおり）を返す
	Coefficients() []float64
	// Intercept は学習された切片を返す
	Intercept() float64
}

// ProbabilisticClassifier は陽性クラスの確率を出力できる二値分類器
type ProbabilisticClassifier interface {
	LinearModel
	// PredictProba は各行の陽性クラス確率を n×1 行列で返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

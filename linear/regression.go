// Package linear は最小二乗法による線形回帰とリッジ回帰を提供する。
// 回帰問題の学習器と、再帰的特徴量削減で係数を比較する推定器の両方に使う。
package linear

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/core/parallel"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// LinearRegression は線形回帰モデル。Alpha > 0 でリッジ回帰になる。
// 公開フィールドは gob による保存のためのもの。
type LinearRegression struct {
	model.BaseEstimator

	Weights      []float64 // 重み（係数）
	Bias         float64   // 切片
	NFeatures    int       // 特徴量の数
	Alpha        float64   // L2正則化の強さ（切片には掛けない）
	FitIntercept bool
}

// NewLinearRegression は新しい線形回帰モデルを作成する
//
//	lr := linear.NewLinearRegression(linear.WithAlpha(1.0))
//	err := lr.Fit(X, y)
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{FitIntercept: true}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる。
// 中心化したデータで (Xc^T Xc + αI) w = Xc^T yc を Cholesky 分解で解く。
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}
	if lr.Alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", lr.Alpha)
	}
	if err := errors.CheckMatrix("LinearRegression.Fit", X, r, c); err != nil {
		return err
	}

	yv := make([]float64, r)
	mat.Col(yv, 0, y)
	xMean := make([]float64, c)
	yMean := 0.0
	if lr.FitIntercept {
		col := make([]float64, r)
		for j := 0; j < c; j++ {
			mat.Col(col, j, X)
			xMean[j] = stat.Mean(col, nil)
		}
		yMean = stat.Mean(yv, nil)
	}

	// 中心化した計画行列を作る
	Xc := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				Xc.Set(i, j, X.At(i, j)-xMean[j])
			}
		}
	})
	yc := mat.NewVecDense(r, nil)
	for i, v := range yv {
		yc.SetVec(i, v-yMean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, Xc.T())
	for j := 0; j < c; j++ {
		gram.SetSym(j, j, gram.At(j, j)+lr.Alpha)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
	}

	var xty mat.VecDense
	xty.MulVec(Xc.T(), yc)

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
	}

	lr.Weights = make([]float64, c)
	bias := yMean
	for j := 0; j < c; j++ {
		lr.Weights[j] = w.AtVec(j)
		bias -= xMean[j] * lr.Weights[j]
	}
	lr.Bias = bias
	lr.NFeatures = c
	if err := errors.CheckNumericalStability("LinearRegression.Fit", lr.Weights, 0); err != nil {
		return err
	}

	lr.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if c != lr.NFeatures {
		return nil, errors.NewDimensionError("LinearRegression.Predict", lr.NFeatures, c, 1)
	}

	// 予測: y = X * weights + intercept
	predictions := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred := lr.Bias
		for j := 0; j < c; j++ {
			pred += X.At(i, j) * lr.Weights[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// Coefficients は学習された重みのコピーを返す
func (lr *LinearRegression) Coefficients() []float64 {
	if lr.Weights == nil {
		return nil
	}
	return append([]float64(nil), lr.Weights...)
}

// Intercept は学習された切片を返す
func (lr *LinearRegression) Intercept() float64 {
	if !lr.IsFitted() {
		return 0
	}
	return lr.Bias
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}

	r, _ := y.Dims()
	truth := make([]float64, r)
	pred := make([]float64, r)
	mat.Col(truth, 0, y)
	mat.Col(pred, 0, yPred)

	yMean := stat.Mean(truth, nil)
	var tss, rss float64
	for i := range truth {
		tss += (truth[i] - yMean) * (truth[i] - yMean)
		rss += (truth[i] - pred[i]) * (truth[i] - pred[i])
	}
	if tss == 0 {
		return 0, errors.NewValueError("LinearRegression.Score", "total sum of squares is zero")
	}
	return 1 - rss/tss, nil
}

// String はモデルの文字列表現を返す
func (lr *LinearRegression) String() string {
	if lr.Alpha > 0 {
		return fmt.Sprintf("Ridge(alpha=%g)", lr.Alpha)
	}
	return "LinearRegression()"
}

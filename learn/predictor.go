// Package learn は特徴量表から予測器を学習する既定の学習器と、
// 学習時の列構成に束縛された予測器を提供します。
package learn

import (
	"encoding/gob"
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

func init() {
	gob.Register(&LinearPredictor{})
	gob.Register(&BifurcatedPredictor{})
}

// Predictor は学習済みの予測器。学習時と同じ列集合の Table でのみ予測できる。
type Predictor interface {
	// Features は学習時の列名を学習時の順序で返す
	Features() []string
	// Problem は分類か回帰かを返す
	Problem() model.Problem
	// Predict は分類ならクラスラベル、回帰なら予測値を返す
	Predict(X *table.Table) ([]float64, error)
	// PredictProba は陽性クラスの確率を返す。回帰ではエラー。
	PredictProba(X *table.Table) ([]float64, error)
	String() string
}

// LinearPredictor は元の尺度に戻した係数を持つ線形予測器。
// 分類ではロジスティック関数で確率に変換する。
type LinearPredictor struct {
	Columns   []string
	Kind      model.Problem
	Algorithm string
	Coef      []float64
	Bias      float64
	Classes   [2]float64 // 分類のみ: 陰性、陽性のラベル
}

// Features は学習時の列名を返す
func (p *LinearPredictor) Features() []string {
	return append([]string(nil), p.Columns...)
}

// Problem は問題の種類を返す
func (p *LinearPredictor) Problem() model.Problem {
	return p.Kind
}

func (p *LinearPredictor) decision(X *table.Table, op string) ([]float64, error) {
	aligned, err := align(X, p.Columns, op)
	if err != nil {
		return nil, err
	}
	dense, err := aligned.Dense()
	if err != nil {
		return nil, err
	}
	r, c := dense.Dims()
	z := make([]float64, r)
	for i := range z {
		s := p.Bias
		for j := 0; j < c; j++ {
			s += dense.At(i, j) * p.Coef[j]
		}
		z[i] = s
	}
	return z, nil
}

// Predict は予測値を返す
func (p *LinearPredictor) Predict(X *table.Table) ([]float64, error) {
	z, err := p.decision(X, "LinearPredictor.Predict")
	if err != nil {
		return nil, err
	}
	if p.Kind == model.Regression {
		return z, nil
	}
	for i, s := range z {
		if sigmoid(s) >= 0.5 {
			z[i] = p.Classes[1]
		} else {
			z[i] = p.Classes[0]
		}
	}
	return z, nil
}

// PredictProba は陽性クラスの確率を返す
func (p *LinearPredictor) PredictProba(X *table.Table) ([]float64, error) {
	if p.Kind != model.Classification {
		return nil, errors.NewValueError("LinearPredictor.PredictProba", "probabilities are only defined for classifiers")
	}
	z, err := p.decision(X, "LinearPredictor.PredictProba")
	if err != nil {
		return nil, err
	}
	for i, s := range z {
		z[i] = sigmoid(s)
	}
	return z, nil
}

// String は予測器の文字列表現を返す
func (p *LinearPredictor) String() string {
	return fmt.Sprintf("LinearPredictor(algorithm=%s, features=%d)", p.Algorithm, len(p.Columns))
}

// align は学習時と同じ列集合であることを確認し、学習時の順序に並べ替える
func align(X *table.Table, columns []string, op string) (*table.Table, error) {
	got := X.Names()
	if len(got) != len(columns) {
		return nil, errors.NewColumnSetMismatchError(op, columns, got)
	}
	a := append([]string(nil), got...)
	b := append([]string(nil), columns...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return nil, errors.NewColumnSetMismatchError(op, columns, got)
		}
	}
	return X.Select(columns...)
}

func sigmoid(z float64) float64 {
	if z < 0 {
		e := math.Exp(z)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(-z))
}

package learn

import (
	"fmt"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// Bifurcation strategies compare the bifurcator column against a value.
const (
	StrategyEqual = "equal"
	StrategyLT    = "lt"
	StrategyLTE   = "lte"
	StrategyGT    = "gt"
	StrategyGTE   = "gte"
)

// Bifurcation は行を2つの部分モデルに振り分ける条件
type Bifurcation struct {
	Column   string
	Strategy string
	Value    float64
}

func (b Bifurcation) validate() error {
	if b.Column == "" {
		return errors.NewValidationError("bifurcator", "required for bifurcated algorithms", b.Column)
	}
	switch b.Strategy {
	case StrategyEqual, StrategyLT, StrategyLTE, StrategyGT, StrategyGTE:
		return nil
	}
	return errors.NewValidationError("bifurcation_strategy", "must be equal, lt, lte, gt or gte", b.Strategy)
}

// holds は値が条件を満たすかを返す。欠損は満たさない。
func (b Bifurcation) holds(v table.Value) bool {
	if !v.Valid {
		return false
	}
	switch b.Strategy {
	case StrategyEqual:
		return v.Num == b.Value
	case StrategyLT:
		return v.Num < b.Value
	case StrategyLTE:
		return v.Num <= b.Value
	case StrategyGT:
		return v.Num > b.Value
	case StrategyGTE:
		return v.Num >= b.Value
	}
	return false
}

// partition は条件を満たす行と満たさない行の位置を返す
func (b Bifurcation) partition(X *table.Table) (match, rest []int, err error) {
	c, ok := X.Column(b.Column)
	if !ok {
		return nil, nil, errors.NewSchemaDriftError("Bifurcation.partition", []string{b.Column})
	}
	if c.Kind == table.Categorical {
		return nil, nil, errors.NewValidationError(b.Column, "bifurcator must be numeric", c.Kind.String())
	}
	for i, v := range c.Values {
		if b.holds(v) {
			match = append(match, i)
		} else {
			rest = append(rest, i)
		}
	}
	return match, rest, nil
}

// String は条件の文字列表現を返す
func (b Bifurcation) String() string {
	return fmt.Sprintf("%s %s %g", b.Column, b.Strategy, b.Value)
}

// BifurcatedPredictor は条件を満たす行と満たさない行に別々の分類器を使う
type BifurcatedPredictor struct {
	Columns   []string
	Algorithm string
	Split     Bifurcation
	Match     *LinearPredictor
	Rest      *LinearPredictor
}

// Features は学習時の列名を返す
func (p *BifurcatedPredictor) Features() []string {
	return append([]string(nil), p.Columns...)
}

// Problem は常に分類
func (p *BifurcatedPredictor) Problem() model.Problem {
	return model.Classification
}

func (p *BifurcatedPredictor) route(X *table.Table, op string, score func(*LinearPredictor, *table.Table) ([]float64, error)) ([]float64, error) {
	aligned, err := align(X, p.Columns, op)
	if err != nil {
		return nil, err
	}
	match, rest, err := p.Split.partition(aligned)
	if err != nil {
		return nil, err
	}
	out := make([]float64, aligned.NumRows())
	for _, part := range []struct {
		rows []int
		sub  *LinearPredictor
	}{{match, p.Match}, {rest, p.Rest}} {
		if len(part.rows) == 0 {
			continue
		}
		values, err := score(part.sub, aligned.Rows(part.rows))
		if err != nil {
			return nil, err
		}
		for k, i := range part.rows {
			out[i] = values[k]
		}
	}
	return out, nil
}

// Predict はクラスラベルを返す
func (p *BifurcatedPredictor) Predict(X *table.Table) ([]float64, error) {
	return p.route(X, "BifurcatedPredictor.Predict", (*LinearPredictor).Predict)
}

// PredictProba は陽性クラスの確率を返す
func (p *BifurcatedPredictor) PredictProba(X *table.Table) ([]float64, error) {
	return p.route(X, "BifurcatedPredictor.PredictProba", (*LinearPredictor).PredictProba)
}

// String は予測器の文字列表現を返す
func (p *BifurcatedPredictor) String() string {
	return fmt.Sprintf("BifurcatedPredictor(algorithm=%s, bifurcator=%s)", p.Algorithm, p.Split)
}

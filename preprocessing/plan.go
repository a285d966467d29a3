package preprocessing

import (
	"math"
	"strconv"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// DerivedKind は派生列の種類
type DerivedKind string

const (
	// Indicator は基準列の値が条件に一致すれば1となる列
	Indicator DerivedKind = "indicator"
	// Threshold は基準列の値が [Lower, Upper] に入れば1となる列
	Threshold DerivedKind = "threshold"
	// Logarithm は基準列の自然対数
	Logarithm DerivedKind = "logarithm"
	// Delta は現在値と前回値を比較し「変化なし」なら1となる列
	Delta DerivedKind = "delta"
)

// DeltaMethod は Delta 列で変化を判定する方法
type DeltaMethod string

const (
	// DeltaAbsolute は |現在-前回| <= Threshold を変化なしとする
	DeltaAbsolute DeltaMethod = "absolute"
	// DeltaSD は |現在-前回| <= Threshold*σ(現在) を変化なしとする
	DeltaSD DeltaMethod = "sd"
	// DeltaPercent は |現在-前回|/|前回| <= Threshold を変化なしとする
	DeltaPercent DeltaMethod = "percent"
)

// DerivedSpec は派生列の定義。Kind ごとに使うフィールドが異なる。
type DerivedSpec struct {
	Kind DerivedKind `koanf:"kind" yaml:"kind"`
	Base string      `koanf:"base" yaml:"base"`

	// Indicator: Value と文字列として等しい、または正規表現 Pattern に一致
	Value   string `koanf:"value" yaml:"value"`
	Pattern string `koanf:"pattern" yaml:"pattern"`

	// Threshold: 片側だけの指定も可
	Lower *float64 `koanf:"lower" yaml:"lower"`
	Upper *float64 `koanf:"upper" yaml:"upper"`

	// Delta: Base が現在値、Previous が前回値
	Previous  string      `koanf:"previous" yaml:"previous"`
	Method    DeltaMethod `koanf:"method" yaml:"method"`
	Threshold float64     `koanf:"threshold" yaml:"threshold"`
	Name      string      `koanf:"name" yaml:"name"`
}

// ColumnName は派生列の列名を返す
func (s DerivedSpec) ColumnName() string {
	switch s.Kind {
	case Indicator:
		if s.Pattern != "" {
			return s.Base + "~" + s.Pattern
		}
		return s.Base + "==" + s.Value
	case Threshold:
		lo, hi := "-inf", "inf"
		if s.Lower != nil {
			lo = formatBound(*s.Lower)
		}
		if s.Upper != nil {
			hi = formatBound(*s.Upper)
		}
		return s.Base + "-in-[" + lo + "," + hi + "]"
	case Logarithm:
		return "ln(" + s.Base + ")"
	case Delta:
		return s.Name
	default:
		return ""
	}
}

// referenced は定義が参照する入力列を返す
func (s DerivedSpec) referenced() []string {
	if s.Kind == Delta {
		return []string{s.Base, s.Previous}
	}
	return []string{s.Base}
}

func (s DerivedSpec) validate() error {
	if s.Base == "" {
		return errors.NewValidationError("base", "derived column needs a base column", s.Kind)
	}
	switch s.Kind {
	case Indicator:
		if (s.Value == "") == (s.Pattern == "") {
			return errors.NewValidationError("indicator", "exactly one of value or pattern is required", s.Base)
		}
	case Threshold:
		if s.Lower == nil && s.Upper == nil {
			return errors.NewValidationError("threshold", "at least one bound is required", s.Base)
		}
		if s.Lower != nil && s.Upper != nil && *s.Lower > *s.Upper {
			return errors.NewValidationError("threshold", "lower bound exceeds upper bound", s.Base)
		}
	case Logarithm:
	case Delta:
		if s.Previous == "" || s.Name == "" {
			return errors.NewValidationError("delta", "previous and name are required", s.Base)
		}
		switch s.Method {
		case DeltaAbsolute, DeltaSD, DeltaPercent:
		default:
			return errors.NewValidationError("delta.method", "must be absolute, sd or percent", s.Method)
		}
		if s.Threshold < 0 || math.IsNaN(s.Threshold) {
			return errors.NewValidationError("delta.threshold", "must be non-negative", s.Threshold)
		}
	default:
		return errors.NewValidationError("kind", "unknown derived column kind", s.Kind)
	}
	return nil
}

func formatBound(f float64) string {
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// RowFilter は Column が Value と一致する行（Missing が真なら欠損の行）を除外する
type RowFilter struct {
	Column  string `koanf:"column" yaml:"column"`
	Value   string `koanf:"value" yaml:"value"`
	Missing bool   `koanf:"missing" yaml:"missing"`
}

// Strategy は欠損値の補完方法
type Strategy string

const (
	// Mean は学習データの平均で補完する（既定）
	Mean Strategy = "mean"
	// Median は学習データの中央値で補完する
	Median Strategy = "median"
	// Mode は学習データの最頻値で補完する。カテゴリ列は常にこれを使う。
	Mode Strategy = "mode"
	// Zero は0で補完する
	Zero Strategy = "zero"
)

// Valid は既知の補完方法かどうかを返す
func (s Strategy) Valid() bool {
	switch s {
	case Mean, Median, Mode, Zero:
		return true
	}
	return false
}

// Plan は生の行列から学習用の行列を作るための宣言的な処理計画
type Plan struct {
	FeaturesToAdd           []DerivedSpec       `koanf:"features_to_add" yaml:"features_to_add" validate:"dive"`
	FeaturesToRemove        []string            `koanf:"features_to_remove" yaml:"features_to_remove"`
	FeaturesToFilterOn      []RowFilter         `koanf:"features_to_filter_on" yaml:"features_to_filter_on"`
	ImputationStrategies    map[string]Strategy `koanf:"imputation_strategies" yaml:"imputation_strategies"`
	FeaturesToKeep          []string            `koanf:"features_to_keep" yaml:"features_to_keep"`
	OutcomeLabel            string              `koanf:"outcome_label" yaml:"outcome_label" validate:"required"`
	SelectionProblem        model.Problem       `koanf:"selection_problem" yaml:"selection_problem" validate:"required,oneof=classification regression"`
	SelectionAlgorithm      string              `koanf:"selection_algorithm" yaml:"selection_algorithm" validate:"required,oneof=recursive-elimination univariate"`
	PercentFeaturesToSelect float64             `koanf:"percent_features_to_select" yaml:"percent_features_to_select" validate:"gt=0,lte=1"`
	DataOverview            []string            `koanf:"data_overview" yaml:"data_overview"`
}

// Validate は構造タグに現れない整合性を検査する
func (p Plan) Validate() error {
	for _, s := range p.FeaturesToAdd {
		if err := s.validate(); err != nil {
			return err
		}
	}
	for col, s := range p.ImputationStrategies {
		if !s.Valid() {
			return errors.NewValidationError("imputation_strategies."+col, "unknown strategy", s)
		}
	}
	if p.PercentFeaturesToSelect <= 0 || p.PercentFeaturesToSelect > 1 {
		return errors.NewValidationError("percent_features_to_select", "must be in (0, 1]", p.PercentFeaturesToSelect)
	}
	if p.OutcomeLabel == "" {
		return errors.NewValidationError("outcome_label", "required", "")
	}
	if _, err := model.ParseProblem(string(p.SelectionProblem)); err != nil {
		return err
	}
	return nil
}

package preprocessing

import (
	"math"
	"regexp"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// derive は定義に従って派生列を計算する。t は行フィルタ適用後の入力。
func derive(t *table.Table, spec DerivedSpec) (*table.Column, error) {
	base, ok := t.Column(spec.Base)
	if !ok {
		return nil, errors.NewSchemaDriftError("derive "+spec.ColumnName(), []string{spec.Base})
	}
	name := spec.ColumnName()
	values := make([]table.Value, base.Len())

	switch spec.Kind {
	case Indicator:
		var re *regexp.Regexp
		if spec.Pattern != "" {
			var err error
			if re, err = regexp.Compile(spec.Pattern); err != nil {
				return nil, errors.NewValidationError("indicator.pattern", err.Error(), spec.Pattern)
			}
		}
		for i, v := range base.Values {
			// 欠損は条件に一致しないものとして0
			if !v.Valid {
				values[i] = table.Bool(false)
				continue
			}
			text := v.Format(base.Kind)
			if re != nil {
				values[i] = table.Bool(re.MatchString(text))
			} else {
				values[i] = table.Bool(text == spec.Value || numericEqual(v, base.Kind, spec.Value))
			}
		}
		return table.NewColumn(name, table.Boolean, values), nil

	case Threshold:
		lo, hi := math.Inf(-1), math.Inf(1)
		if spec.Lower != nil {
			lo = *spec.Lower
		}
		if spec.Upper != nil {
			hi = *spec.Upper
		}
		if base.Kind == table.Categorical {
			return nil, errors.NewValidationError(spec.Base, "threshold needs a numeric base column", base.Kind.String())
		}
		for i, v := range base.Values {
			if v.Valid {
				values[i] = table.Bool(v.Num >= lo && v.Num <= hi)
			}
		}
		return table.NewColumn(name, table.Boolean, values), nil

	case Logarithm:
		if base.Kind == table.Categorical {
			return nil, errors.NewValidationError(spec.Base, "logarithm needs a numeric base column", base.Kind.String())
		}
		// 非正の値と欠損は欠損になる
		for i, v := range base.Values {
			if v.Valid && v.Num > 0 {
				values[i] = table.Float(math.Log(v.Num))
			}
		}
		return table.NewColumn(name, table.Numeric, values), nil

	case Delta:
		prev, ok := t.Column(spec.Previous)
		if !ok {
			return nil, errors.NewSchemaDriftError("derive "+name, []string{spec.Previous})
		}
		if base.Kind == table.Categorical || prev.Kind == table.Categorical {
			return nil, errors.NewValidationError(name, "delta needs numeric current and previous columns", spec.Base)
		}
		tolerance := spec.Threshold
		if spec.Method == DeltaSD {
			_, sd := stat.PopMeanStdDev(base.Present(), nil)
			tolerance *= sd
		}
		for i := range values {
			cur, old := base.Values[i], prev.Values[i]
			if !cur.Valid || !old.Valid {
				continue
			}
			diff := math.Abs(cur.Num - old.Num)
			switch spec.Method {
			case DeltaPercent:
				if old.Num == 0 {
					values[i] = table.Bool(false)
				} else {
					values[i] = table.Bool(diff/math.Abs(old.Num) <= tolerance)
				}
			default:
				values[i] = table.Bool(diff <= tolerance)
			}
		}
		return table.NewColumn(name, table.Boolean, values), nil
	}
	return nil, errors.NewValidationError("kind", "unknown derived column kind", spec.Kind)
}

// numericEqual は "1" と 1.0 のように表記の異なる数値を等しいとみなす
func numericEqual(v table.Value, kind table.Kind, want string) bool {
	if kind == table.Categorical {
		return false
	}
	w, err := parseFloat(want)
	return err == nil && v.Num == w
}

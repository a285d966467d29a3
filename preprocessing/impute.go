package preprocessing

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// Fill は1列分の補完記録
type Fill struct {
	Value    table.Value
	Strategy Strategy
}

// Ledger は列名から補完値への対応表。学習データだけで計算し、
// テストデータや将来のデータにはそのまま再適用する。
type Ledger struct {
	order []string
	fills map[string]Fill
}

// NewLedger は空の Ledger を作成する
func NewLedger() *Ledger {
	return &Ledger{fills: make(map[string]Fill)}
}

func (l *Ledger) record(column string, f Fill) {
	if _, ok := l.fills[column]; !ok {
		l.order = append(l.order, column)
	}
	l.fills[column] = f
}

// Get は列の補完記録を返す
func (l *Ledger) Get(column string) (Fill, bool) {
	f, ok := l.fills[column]
	return f, ok
}

// Columns は記録された列名を記録順に返す
func (l *Ledger) Columns() []string {
	return append([]string(nil), l.order...)
}

// Len は記録された列数を返す
func (l *Ledger) Len() int {
	return len(l.order)
}

// fillValue は列の非欠損値から補完値を計算する。カテゴリ列は常に最頻値。
func fillValue(c *table.Column, strategy Strategy) (table.Value, Strategy) {
	if c.Kind == table.Categorical {
		return categoricalMode(c), Mode
	}
	present := c.Present()
	switch strategy {
	case Median:
		sort.Float64s(present)
		n := len(present)
		if n%2 == 1 {
			return table.Float(present[n/2]), Median
		}
		return table.Float((present[n/2-1] + present[n/2]) / 2), Median
	case Mode:
		return table.Float(numericMode(present)), Mode
	case Zero:
		return table.Float(0), Zero
	default:
		return table.Float(stat.Mean(present, nil)), Mean
	}
}

// numericMode は最頻値を返す。同数の場合は最小の値。
func numericMode(present []float64) float64 {
	counts := make(map[float64]int, len(present))
	for _, f := range present {
		counts[f]++
	}
	best, bestN := math.Inf(1), -1
	for f, n := range counts {
		if n > bestN || (n == bestN && f < best) {
			best, bestN = f, n
		}
	}
	return best
}

// categoricalMode は最頻値を返す。同数の場合は辞書順で最小の値。
func categoricalMode(c *table.Column) table.Value {
	counts := make(map[string]int)
	for _, v := range c.Values {
		if v.Valid {
			counts[v.Str]++
		}
	}
	best, bestN := "", -1
	for s, n := range counts {
		if n > bestN || (n == bestN && s < best) {
			best, bestN = s, n
		}
	}
	return table.String(best)
}

// applyFill は欠損セルを補完値で埋めた列を返す。
// 真偽値列を平均や中央値で補完した場合は数値列になる。
func applyFill(c *table.Column, f Fill) *table.Column {
	out := c.Clone()
	if out.Kind == table.Boolean && f.Value.Valid && f.Value.Num != 0 && f.Value.Num != 1 {
		out.Kind = table.Numeric
	}
	for i, v := range out.Values {
		if !v.Valid {
			out.Values[i] = f.Value
		}
	}
	return out
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, errors.NewValueError("parseFloat", "not a number: "+s)
	}
	return f, nil
}

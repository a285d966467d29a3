package table

import (
	"math"
)

// Column は名前付きの型付き列
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// NewColumn は列を作成する
func NewColumn(name string, kind Kind, values []Value) *Column {
	return &Column{Name: name, Kind: kind, Values: values}
}

// NewNumeric は float64 スライスから数値列を作成する。NaNは欠損になる。
func NewNumeric(name string, values []float64) *Column {
	vs := make([]Value, len(values))
	for i, f := range values {
		vs[i] = Float(f)
	}
	return NewColumn(name, Numeric, vs)
}

// NewCategorical は文字列スライスからカテゴリ列を作成する。空文字列は欠損になる。
func NewCategorical(name string, values []string) *Column {
	vs := make([]Value, len(values))
	for i, s := range values {
		if s != "" {
			vs[i] = String(s)
		}
	}
	return NewColumn(name, Categorical, vs)
}

// Len は行数を返す
func (c *Column) Len() int {
	return len(c.Values)
}

// Clone は値スライスを含めて列を複製する
func (c *Column) Clone() *Column {
	vs := make([]Value, len(c.Values))
	copy(vs, c.Values)
	return &Column{Name: c.Name, Kind: c.Kind, Values: vs}
}

// Renamed は名前だけ異なる複製を返す
func (c *Column) Renamed(name string) *Column {
	out := c.Clone()
	out.Name = name
	return out
}

// CountMissing は欠損セル数を返す
func (c *Column) CountMissing() int {
	n := 0
	for _, v := range c.Values {
		if !v.Valid {
			n++
		}
	}
	return n
}

// AllMissing は全セルが欠損かどうかを返す（0行の列も真）
func (c *Column) AllMissing() bool {
	return c.CountMissing() == len(c.Values)
}

// Floats は数値表現を返す。欠損はNaN。
func (c *Column) Floats() []float64 {
	out := make([]float64, len(c.Values))
	for i, v := range c.Values {
		if v.Valid {
			out[i] = v.Num
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Present は欠損でない数値のみを返す
func (c *Column) Present() []float64 {
	out := make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		if v.Valid {
			out = append(out, v.Num)
		}
	}
	return out
}

func (c *Column) take(positions []int) *Column {
	vs := make([]Value, len(positions))
	for i, p := range positions {
		vs[i] = c.Values[p]
	}
	return &Column{Name: c.Name, Kind: c.Kind, Values: vs}
}

func (c *Column) equal(o *Column) bool {
	if c.Name != o.Name || c.Kind != o.Kind || len(c.Values) != len(o.Values) {
		return false
	}
	for i := range c.Values {
		if !c.Values[i].Equal(o.Values[i], c.Kind) {
			return false
		}
	}
	return true
}

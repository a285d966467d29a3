// Package table は行インデックスを共有する名前付き型付き列の集合を提供します。
// Table は値として扱われ、変換メソッドは常に新しい Table を返します。
package table

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// Table は行インデックスを共有する列の順序付き集合
type Table struct {
	cols   []*Column
	byName map[string]int
	index  []int
}

// New は列から Table を作成する。index が nil の場合は 0..n-1 を割り当てる。
// 列の行数が揃っていない場合や列名が重複している場合はエラーを返す。
func New(index []int, cols ...*Column) (*Table, error) {
	n := len(index)
	if index == nil && len(cols) > 0 {
		n = cols[0].Len()
	}
	t := &Table{
		cols:   make([]*Column, 0, len(cols)),
		byName: make(map[string]int, len(cols)),
	}
	for _, c := range cols {
		if c.Len() != n {
			return nil, errors.NewDimensionError("table.New("+c.Name+")", n, c.Len(), 0)
		}
		if _, dup := t.byName[c.Name]; dup {
			return nil, errors.NewValueError("table.New", "duplicate column name "+c.Name)
		}
		t.byName[c.Name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	if index == nil {
		index = make([]int, n)
		for i := range index {
			index[i] = i
		}
	} else {
		index = append([]int(nil), index...)
	}
	t.index = index
	return t, nil
}

// MustNew は New のエラーでパニックする版（テストと定数テーブル用）
func MustNew(index []int, cols ...*Column) *Table {
	t, err := New(index, cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// NumRows は行数を返す
func (t *Table) NumRows() int {
	return len(t.index)
}

// NumCols は列数を返す
func (t *Table) NumCols() int {
	return len(t.cols)
}

// Names は列名を順序どおりに返す
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Has は列が存在するかどうかを返す
func (t *Table) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Column は名前で列を返す。返された列を変更してはならない。
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// ColumnAt は位置で列を返す
func (t *Table) ColumnAt(i int) *Column {
	return t.cols[i]
}

// Index は行インデックスの複製を返す
func (t *Table) Index() []int {
	return append([]int(nil), t.index...)
}

// WithColumn は列を末尾に追加した Table を返す。同名の列が既にあればエラー。
func (t *Table) WithColumn(c *Column) (*Table, error) {
	if t.Has(c.Name) {
		return nil, errors.NewValueError("table.WithColumn", "column "+c.Name+" already exists")
	}
	cols := append(append([]*Column(nil), t.cols...), c)
	return New(t.index, cols...)
}

// Replace は同名の列を置き換えた Table を返す
func (t *Table) Replace(c *Column) (*Table, error) {
	i, ok := t.byName[c.Name]
	if !ok {
		return nil, errors.NewValueError("table.Replace", "column "+c.Name+" not found")
	}
	cols := append([]*Column(nil), t.cols...)
	cols[i] = c
	return New(t.index, cols...)
}

// Drop は指定列を除いた Table を返す。存在しない列名は無視する。
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	cols := make([]*Column, 0, len(t.cols))
	for _, c := range t.cols {
		if !drop[c.Name] {
			cols = append(cols, c)
		}
	}
	out, _ := New(t.index, cols...)
	return out
}

// Select は指定した順序で列を選んだ Table を返す。存在しない列があればエラー。
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	var missing []string
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		cols = append(cols, c)
	}
	if len(missing) > 0 {
		return nil, errors.NewColumnSetMismatchError("table.Select", names, t.Names())
	}
	return New(t.index, cols...)
}

// Pop は列を取り出し、その列と残りの Table を返す
func (t *Table) Pop(name string) (*Column, *Table, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, nil, errors.NewSchemaDriftError("table.Pop", []string{name})
	}
	return c, t.Drop(name), nil
}

// Rows は指定した位置の行からなる Table を返す
func (t *Table) Rows(positions []int) *Table {
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.take(positions)
	}
	index := make([]int, len(positions))
	for i, p := range positions {
		index[i] = t.index[p]
	}
	out, _ := New(index, cols...)
	return out
}

// Filter は keep が真を返す行だけを残した Table を返す
func (t *Table) Filter(keep func(row int) bool) *Table {
	positions := make([]int, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		if keep(i) {
			positions = append(positions, i)
		}
	}
	return t.Rows(positions)
}

// Concat は同じ列構成の Table を縦に連結する。
// 列の型が数値と真偽値で異なる場合は数値に揃える。
func (t *Table) Concat(o *Table) (*Table, error) {
	if !sameNames(t.Names(), o.Names()) {
		return nil, errors.NewColumnSetMismatchError("table.Concat", t.Names(), o.Names())
	}
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		oc := o.cols[i]
		kind := c.Kind
		if kind != oc.Kind {
			if kind == Categorical || oc.Kind == Categorical {
				return nil, errors.NewValueError("table.Concat", "column "+c.Name+" mixes categorical and numeric cells")
			}
			kind = Numeric
		}
		vs := make([]Value, 0, c.Len()+oc.Len())
		vs = append(append(vs, c.Values...), oc.Values...)
		cols[i] = NewColumn(c.Name, kind, vs)
	}
	return New(append(t.Index(), o.index...), cols...)
}

// SortByIndex は行インデックスの昇順に並べ替えた Table を返す
func (t *Table) SortByIndex() *Table {
	positions := make([]int, t.NumRows())
	for i := range positions {
		positions[i] = i
	}
	sort.SliceStable(positions, func(a, b int) bool {
		return t.index[positions[a]] < t.index[positions[b]]
	})
	return t.Rows(positions)
}

// Dense は全列を行列に変換する。カテゴリ列や欠損値があればエラー。
func (t *Table) Dense() (*mat.Dense, error) {
	if t.NumRows() == 0 || t.NumCols() == 0 {
		return nil, errors.ErrEmptyData
	}
	m := mat.NewDense(t.NumRows(), t.NumCols(), nil)
	for j, c := range t.cols {
		if c.Kind == Categorical {
			return nil, errors.NewValidationError(c.Name, "categorical column cannot enter a numeric matrix", c.Kind.String())
		}
		for i, v := range c.Values {
			if !v.Valid {
				return nil, errors.NewValidationError(c.Name, "missing value in numeric matrix", i)
			}
			m.Set(i, j, v.Num)
		}
	}
	return m, nil
}

// Vector は単一の数値列を行列演算用のベクトルとして返す
func (t *Table) Vector(name string) (*mat.VecDense, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, errors.NewSchemaDriftError("table.Vector", []string{name})
	}
	if c.Kind == Categorical {
		return nil, errors.NewValidationError(name, "categorical column cannot be used as a numeric vector", c.Kind.String())
	}
	if c.CountMissing() > 0 {
		return nil, errors.NewValidationError(name, "missing value in numeric vector", c.CountMissing())
	}
	return mat.NewVecDense(c.Len(), c.Floats()), nil
}

// Equal は列名・列順・型・セル値が一致するかどうかを返す。行インデックスは比較しない。
func (t *Table) Equal(o *Table) bool {
	if t.NumCols() != o.NumCols() || t.NumRows() != o.NumRows() {
		return false
	}
	for i := range t.cols {
		if !t.cols[i].equal(o.cols[i]) {
			return false
		}
	}
	return true
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

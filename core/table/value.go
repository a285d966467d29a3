package table

import (
	"math"
	"strconv"
)

// Kind は列の型を表す
type Kind int

const (
	// Numeric は数値列
	Numeric Kind = iota
	// Boolean は真偽値列（内部的には0/1として保持する）
	Boolean
	// Categorical は文字列カテゴリ列
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Boolean:
		return "boolean"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Value は1セルの値。Valid が false のとき欠損値を表す。
type Value struct {
	Num   float64
	Str   string
	Valid bool
}

// Missing は欠損値
var Missing = Value{}

// Float は数値セルを作成する。NaNは欠損として扱う。
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Missing
	}
	return Value{Num: f, Valid: true}
}

// Bool は真偽値セルを作成する
func Bool(b bool) Value {
	if b {
		return Value{Num: 1, Valid: true}
	}
	return Value{Num: 0, Valid: true}
}

// String はカテゴリセルを作成する
func String(s string) Value {
	return Value{Str: s, Valid: true}
}

// IsMissing はセルが欠損かどうかを返す
func (v Value) IsMissing() bool {
	return !v.Valid
}

// Truth は数値・真偽値セルが非ゼロかどうかを返す
func (v Value) Truth() bool {
	return v.Valid && v.Num != 0
}

// Format は列の型に従ってセルを文字列化する。欠損は空文字列。
func (v Value) Format(kind Kind) string {
	if !v.Valid {
		return ""
	}
	switch kind {
	case Boolean:
		if v.Num != 0 {
			return "True"
		}
		return "False"
	case Categorical:
		return v.Str
	default:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
}

// Equal は同じ型の列に属する2つのセルが等しいかどうかを返す
func (v Value) Equal(o Value, kind Kind) bool {
	if v.Valid != o.Valid {
		return false
	}
	if !v.Valid {
		return true
	}
	if kind == Categorical {
		return v.Str == o.Str
	}
	return v.Num == o.Num
}

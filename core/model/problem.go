package model

import (
	"strings"

	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// Problem は教師あり学習の問題の種類を表す
type Problem string

const (
	// Classification は二値分類問題
	Classification Problem = "classification"
	// Regression は回帰問題
	Regression Problem = "regression"
)

// ParseProblem は設定値の文字列を Problem に変換する
func ParseProblem(s string) (Problem, error) {
	switch p := Problem(strings.ToLower(strings.TrimSpace(s))); p {
	case Classification, Regression:
		return p, nil
	default:
		return "", errors.NewValidationError("selection_problem", "must be classification or regression", s)
	}
}

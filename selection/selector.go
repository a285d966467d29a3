// Package selection は学習データだけを使って特徴量を順位付けし、
// 指定した個数まで列を絞り込む特徴量選択器を提供します。
// 一度学習した選択結果はテストデータや将来のデータにそのまま再適用します。
package selection

import (
	"context"
	"math"
	"sort"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

// Algorithm は順位付けの方法
type Algorithm string

const (
	// RecursiveElimination は係数の絶対値が最も小さい列を繰り返し除く
	RecursiveElimination Algorithm = "recursive-elimination"
	// Univariate は列ごとのF統計量で順位付けする
	Univariate Algorithm = "univariate"
)

// DefaultSeed は再現性のための既定の乱数シード
const DefaultSeed int64 = 42

// ParseAlgorithm は設定値の文字列を Algorithm に変換する
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case RecursiveElimination, Univariate:
		return a, nil
	}
	return "", errors.NewValidationError("selection_algorithm", "must be recursive-elimination or univariate", s)
}

// TargetCount は floor(pct*n) を返す。ただし最低1。
func TargetCount(pct float64, n int) int {
	k := int(math.Floor(pct * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// Ranking は列名から順位（1が最も重要）への対応。順位は 1..n の順列。
type Ranking struct {
	Columns []string
	Ranks   []int
}

// Rank は列の順位を返す。存在しない列は0。
func (r *Ranking) Rank(column string) int {
	for i, c := range r.Columns {
		if c == column {
			return r.Ranks[i]
		}
	}
	return 0
}

// Map は列名から順位への map を返す
func (r *Ranking) Map() map[string]int {
	m := make(map[string]int, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Ranks[i]
	}
	return m
}

// Ordered は列名を順位順に返す
func (r *Ranking) Ordered() []string {
	out := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		out[r.Ranks[i]-1] = c
	}
	return out
}

// Selector は特徴量選択器
type Selector struct {
	problem   model.Problem
	algorithm Algorithm
	seed      int64
	step      int
	maxIter   int
	keep      []string
	logger    log.Logger

	ranking  *Ranking
	target   int
	selected []string
}

// Option は Selector の設定関数
type Option func(*Selector)

// WithSeed は推定器に渡す乱数シードを設定する
func WithSeed(seed int64) Option {
	return func(s *Selector) {
		s.seed = seed
	}
}

// WithStep は再帰的削減の1回あたりの削除列数を設定する
func WithStep(step int) Option {
	return func(s *Selector) {
		s.step = step
	}
}

// WithMaxIter は再帰的削減で使うロジスティック回帰の最大反復回数を設定する
func WithMaxIter(n int) Option {
	return func(s *Selector) {
		s.maxIter = n
	}
}

// WithKeep は順位に関係なく必ず残す列を設定する。
// これらの列は目標の列数には数えない。
func WithKeep(columns ...string) Option {
	return func(s *Selector) {
		s.keep = append(s.keep, columns...)
	}
}

// WithLogger はログ出力先を設定する
func WithLogger(l log.Logger) Option {
	return func(s *Selector) {
		s.logger = l
	}
}

// New は Selector を作成する
func New(problem model.Problem, algorithm Algorithm, opts ...Option) (*Selector, error) {
	if _, err := model.ParseProblem(string(problem)); err != nil {
		return nil, err
	}
	if _, err := ParseAlgorithm(string(algorithm)); err != nil {
		return nil, err
	}
	s := &Selector{
		problem:   problem,
		algorithm: algorithm,
		seed:      DefaultSeed,
		step:      1,
		maxIter:   1024,
		logger:    log.GetLoggerWithName("selection"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.step < 1 {
		return nil, errors.NewValidationError("step", "must be at least 1", s.step)
	}
	return s, nil
}

// Rank は学習データの各列を順位付けする。同じ入力とシードなら結果は常に同じ。
func (s *Selector) Rank(ctx context.Context, X *table.Table, y *table.Column) (*Ranking, error) {
	if X.NumCols() == 0 {
		return nil, errors.NewModelError("Selector.Rank", "no feature columns", errors.ErrEmptyData)
	}
	if y.Len() != X.NumRows() {
		return nil, errors.NewDimensionError("Selector.Rank", X.NumRows(), y.Len(), 0)
	}
	if y.Kind == table.Categorical || y.CountMissing() > 0 {
		return nil, errors.NewValidationError(y.Name, "outcome must be numeric without missing values", y.Kind.String())
	}
	dense, err := X.Dense()
	if err != nil {
		return nil, err
	}
	target := y.Floats()

	var ranks []int
	switch s.algorithm {
	case RecursiveElimination:
		ranks, err = s.recursiveElimination(ctx, dense, target)
	case Univariate:
		ranks, err = s.univariate(ctx, dense, target)
	}
	if err != nil {
		return nil, err
	}
	return &Ranking{Columns: X.Names(), Ranks: ranks}, nil
}

// Select は順位付けを行い、上位 targetCount 列と保持列を選ぶ。
// 選ばれた列は入力の列順で返す。
func (s *Selector) Select(ctx context.Context, X *table.Table, y *table.Column, targetCount int) ([]string, error) {
	var absent []string
	for _, k := range s.keep {
		if !X.Has(k) {
			absent = append(absent, k)
		}
	}
	if len(absent) > 0 {
		return nil, errors.NewSchemaDriftError("Selector.Select", absent)
	}
	if targetCount < 1 || targetCount > X.NumCols() {
		return nil, errors.NewValidationError("target_count", "must be between 1 and the number of features", targetCount)
	}

	ranking, err := s.Rank(ctx, X, y)
	if err != nil {
		return nil, err
	}
	s.ranking = ranking
	s.target = targetCount
	s.selected = s.selected[:0]
	for i, c := range ranking.Columns {
		if ranking.Ranks[i] <= targetCount || s.kept(c) {
			s.selected = append(s.selected, c)
		}
	}

	s.logger.Info("features selected",
		log.AlgorithmKey, string(s.algorithm),
		log.FeaturesKey, len(s.selected),
		log.RemovedKey, len(ranking.Columns)-len(s.selected),
		log.RandomSeedKey, s.seed,
	)
	return append([]string(nil), s.selected...), nil
}

// Transform は学習済みの選択結果を別の Table に適用する。
// 列は未削減の入力から取り出すので保持列も必ず含まれる。
func (s *Selector) Transform(t *table.Table) (*table.Table, error) {
	if s.ranking == nil {
		return nil, errors.NewNotFittedError("Selector", "Transform")
	}
	return t.Select(s.selected...)
}

// Eliminated は順位が目標を超え、保持列でもない列を入力の列順で返す
func (s *Selector) Eliminated() []string {
	if s.ranking == nil {
		return nil
	}
	var out []string
	for i, c := range s.ranking.Columns {
		if s.ranking.Ranks[i] > s.target && !s.kept(c) {
			out = append(out, c)
		}
	}
	return out
}

// Ranking は最後の Select で計算した順位を返す
func (s *Selector) Ranking() *Ranking {
	return s.ranking
}

// Selected は最後の Select で選ばれた列を返す
func (s *Selector) Selected() []string {
	return append([]string(nil), s.selected...)
}

func (s *Selector) kept(column string) bool {
	for _, k := range s.keep {
		if k == column {
			return true
		}
	}
	return false
}

// ranksByScore はスコアの降順に 1..n の順位を付ける。同点は前の列が上位。
func ranksByScore(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	ranks := make([]int, len(scores))
	for r, i := range order {
		ranks[i] = r + 1
	}
	return ranks
}

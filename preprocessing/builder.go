// Package preprocessing は生の特徴量行列を学習用の行列に変換する処理を提供します。
// Builder は列単位の操作（派生列の追加・列の削除・欠損値補完・行フィルタ）を蓄積し、
// Materialize で固定の順序に従って新しい Table を生成します。
package preprocessing

import (
	"regexp"
	"sort"
	"strings"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

// duplicateSuffix は再読込時に付けられた重複列の接尾辞（x.1, x.2 ...）
var duplicateSuffix = regexp.MustCompile(`^(.+)\.([0-9]+)$`)

// Builder は1つの入力 Table に対する保留中の操作を蓄積する
type Builder struct {
	input     *table.Table
	filters   []RowFilter
	derived   []DerivedSpec
	removals  []string
	impute    map[string]Strategy
	imputeAll bool
	fallback  Strategy
	protected map[string]bool
	logger    log.Logger
}

// BuilderOption は Builder の設定関数
type BuilderOption func(*Builder)

// WithProtected は補完・全欠損による削除の対象外とする列（目的変数など）を指定する
func WithProtected(columns ...string) BuilderOption {
	return func(b *Builder) {
		for _, c := range columns {
			b.protected[c] = true
		}
	}
}

// WithLogger はログ出力先を指定する
func WithLogger(l log.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder は入力 Table に対する Builder を作成する
func NewBuilder(input *table.Table, opts ...BuilderOption) *Builder {
	b := &Builder{
		input:     input,
		impute:    make(map[string]Strategy),
		fallback:  Mean,
		protected: make(map[string]bool),
		logger:    log.GetLoggerWithName("preprocessing"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddDerivedColumn は派生列の追加を予約し、生成される列名を返す
func (b *Builder) AddDerivedColumn(spec DerivedSpec) (string, error) {
	if err := spec.validate(); err != nil {
		return "", err
	}
	b.derived = append(b.derived, spec)
	return spec.ColumnName(), nil
}

// RemoveColumn は列の削除を予約する。存在しない列は Result.NotPresent に報告される。
func (b *Builder) RemoveColumn(name string) {
	b.removals = append(b.removals, name)
}

// ImputeColumn は列の欠損値補完を予約する。strategy が空なら平均。
func (b *Builder) ImputeColumn(name string, strategy Strategy) error {
	if strategy == "" {
		strategy = Mean
	}
	if !strategy.Valid() {
		return errors.NewValidationError("strategy", "unknown imputation strategy", strategy)
	}
	b.impute[name] = strategy
	return nil
}

// ImputeAll は保護列以外の全列の補完を予約する。
// strategies にない列には fallback（空なら平均）を使う。
func (b *Builder) ImputeAll(strategies map[string]Strategy, fallback Strategy) error {
	for name, s := range strategies {
		if err := b.ImputeColumn(name, s); err != nil {
			return err
		}
	}
	if fallback == "" {
		fallback = Mean
	}
	if !fallback.Valid() {
		return errors.NewValidationError("strategy", "unknown imputation strategy", fallback)
	}
	b.fallback = fallback
	b.imputeAll = true
	return nil
}

// FilterRows は行フィルタを予約する
func (b *Builder) FilterRows(f RowFilter) {
	b.filters = append(b.filters, f)
}

// Result は Materialize の結果
type Result struct {
	Table      *table.Table
	Added      []string
	Removed    []string
	NotPresent []string
	Ledger     *Ledger

	protected map[string]bool
}

// Materialize は保留中の操作を
// 行フィルタ → 派生列の追加 → 列の削除 → 重複列の削除 → 補完
// の順に適用する。入力にない列を参照している場合は何もせずに SchemaDriftError を返す。
func (b *Builder) Materialize() (*Result, error) {
	if err := b.checkSchema(); err != nil {
		return nil, err
	}

	res := &Result{Ledger: NewLedger(), protected: b.protected}
	t := b.input

	// 行フィルタ
	for _, f := range b.filters {
		c, _ := t.Column(f.Column)
		t = t.Filter(func(row int) bool { return !f.matches(c, row) })
	}

	// 派生列の追加
	for _, spec := range b.derived {
		col, err := derive(t, spec)
		if err != nil {
			return nil, err
		}
		if t, err = t.WithColumn(col); err != nil {
			return nil, err
		}
		res.Added = append(res.Added, col.Name)
	}

	// 列の削除
	var drop []string
	for _, name := range b.removals {
		if t.Has(name) {
			drop = append(drop, name)
		} else {
			res.NotPresent = append(res.NotPresent, name)
		}
	}
	t = t.Drop(drop...)
	res.Removed = append(res.Removed, drop...)

	// 重複列（x.1 で x が存在するもの）の削除
	var dups []string
	for _, name := range t.Names() {
		if m := duplicateSuffix.FindStringSubmatch(name); m != nil && t.Has(m[1]) {
			dups = append(dups, name)
		}
	}
	t = t.Drop(dups...)
	res.Removed = append(res.Removed, dups...)

	// 補完
	var err error
	if t, err = b.imputeColumns(t, res); err != nil {
		return nil, err
	}

	res.Table = t
	b.logger.Debug("transform materialized",
		log.SamplesKey, t.NumRows(),
		log.FeaturesKey, t.NumCols(),
		log.AddedKey, res.Added,
		log.RemovedKey, res.Removed,
	)
	return res, nil
}

func (b *Builder) imputeColumns(t *table.Table, res *Result) (*table.Table, error) {
	var targets []string
	if b.imputeAll {
		targets = t.Names()
	} else {
		for name := range b.impute {
			if t.Has(name) {
				targets = append(targets, name)
			}
		}
		sort.Strings(targets)
	}

	var allMissing []string
	for _, name := range targets {
		if b.protected[name] {
			continue
		}
		c, _ := t.Column(name)
		if c.AllMissing() {
			errors.Warn(errors.NewAllValuesMissingWarning(name, c.Len()))
			allMissing = append(allMissing, name)
			continue
		}
		strategy, ok := b.impute[name]
		if !ok {
			strategy = b.fallback
		}
		value, used := fillValue(c, strategy)
		fill := Fill{Value: value, Strategy: used}
		res.Ledger.record(name, fill)
		if c.CountMissing() == 0 {
			continue
		}
		var err error
		if t, err = t.Replace(applyFill(c, fill)); err != nil {
			return nil, err
		}
	}
	res.Removed = append(res.Removed, allMissing...)
	return t.Drop(allMissing...), nil
}

// checkSchema は作業前に参照列がすべて存在することを確認する。
// 派生列は先に定義された派生列を参照してよい。
func (b *Builder) checkSchema() error {
	available := make(map[string]bool)
	for _, n := range b.input.Names() {
		available[n] = true
	}
	var missing []string
	note := func(name string) {
		if !available[name] {
			missing = append(missing, name)
		}
	}
	for _, f := range b.filters {
		note(f.Column)
	}
	for _, spec := range b.derived {
		for _, ref := range spec.referenced() {
			note(ref)
		}
		available[spec.ColumnName()] = true
	}
	for name := range b.protected {
		note(name)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.NewSchemaDriftError("Builder.Materialize", dedupe(missing))
	}
	return nil
}

func (f RowFilter) matches(c *table.Column, row int) bool {
	v := c.Values[row]
	if f.Missing {
		return !v.Valid
	}
	if !v.Valid {
		return false
	}
	return v.Format(c.Kind) == f.Value || numericEqual(v, c.Kind, f.Value)
}

// Replay は同じ列削除と同じ補完表を、学習時と同じスキーマを持つ別の Table
// （テストデータなど）に適用し、学習時と同じ列順の Table を返す。
// 補完表にない列に欠損値がある場合はエラーを返す。
func (r *Result) Replay(t *table.Table) (*table.Table, error) {
	t = t.Drop(r.Removed...)
	out, err := t.Select(r.Table.Names()...)
	if err != nil {
		var absent []string
		for _, name := range r.Table.Names() {
			if !t.Has(name) {
				absent = append(absent, name)
			}
		}
		return nil, errors.NewSchemaDriftError("Result.Replay", absent)
	}

	var unledgered []string
	for _, name := range out.Names() {
		c, _ := out.Column(name)
		if c.CountMissing() == 0 || r.protected[name] {
			continue
		}
		fill, ok := r.Ledger.Get(name)
		if !ok {
			unledgered = append(unledgered, name)
			continue
		}
		if out, err = out.Replace(applyFill(c, fill)); err != nil {
			return nil, err
		}
	}
	if len(unledgered) > 0 {
		return nil, errors.NewValueError("Result.Replay",
			"missing values in columns without a ledger entry: "+strings.Join(unledgered, ", "))
	}
	return out, nil
}

func dedupe(xs []string) []string {
	out := xs[:0]
	for i, x := range xs {
		if i == 0 || x != xs[i-1] {
			out = append(out, x)
		}
	}
	return out
}

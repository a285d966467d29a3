package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/medpipe/analysis"
	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/matrixio"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
	"github.com/YuminosukeSato/medpipe/preprocessing"
	"github.com/YuminosukeSato/medpipe/selection"
)

// State is a point in the life of a run.
type State string

const (
	StateRawPending          State = "RAW_PENDING"
	StateRawReady            State = "RAW_READY"
	StateSplit               State = "SPLIT"
	StateSelected            State = "SELECTED"
	StateTrained             State = "TRAINED"
	StateAnalyzed            State = "ANALYZED"
	StateInsufficientSamples State = "INSUFFICIENT_SAMPLES"
)

// Cache checkpoints.
const (
	CheckpointRaw       = "raw"
	CheckpointProcessed = "processed"
)

// Trainer fits a predictor for one algorithm.
type Trainer interface {
	Train(ctx context.Context, X *table.Table, y *table.Column, hp learn.Hyperparams) (learn.Predictor, learn.Status, error)
}

// Config holds the run inputs that are not part of the task.
type Config struct {
	UseCache           bool
	Seed               int64
	NumRows            int
	TestFraction       float64
	Algorithms         []string
	ConfidenceInterval float64
	DumpModels         bool
	SummaryWorkbook    bool
	Clock              func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TestFraction == 0 {
		c.TestFraction = preprocessing.DefaultTestFraction
	}
	if c.ConfidenceInterval == 0 {
		c.ConfidenceInterval = analysis.DefaultConfidence
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Orchestrator runs one task end to end.
type Orchestrator struct {
	task     Task
	cfg      Config
	trainer  Trainer
	analyzer analysis.Analyzer
	metrics  *Metrics
	logger   log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTrainer replaces the default learn.Trainer.
func WithTrainer(t Trainer) Option {
	return func(o *Orchestrator) {
		o.trainer = t
	}
}

// WithAnalyzer replaces the default analyzer for the task's problem.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(o *Orchestrator) {
		o.analyzer = a
	}
}

// WithMetrics records into m instead of a private registry.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New validates the task and configuration and wires default collaborators.
func New(task Task, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if cfg.NumRows <= 0 {
		return nil, errors.NewValidationError("rows", "must be positive", cfg.NumRows)
	}
	if len(cfg.Algorithms) == 0 {
		return nil, errors.NewValidationError("algorithms", "at least one algorithm is required", cfg.Algorithms)
	}

	o := &Orchestrator{task: task, cfg: cfg, logger: log.GetLoggerWithName("pipeline")}
	for _, opt := range opts {
		opt(o)
	}
	problem := task.Plan.SelectionProblem
	if o.trainer == nil {
		o.trainer = learn.NewTrainer(problem, learn.WithLogger(o.logger))
	}
	if o.analyzer == nil {
		aopts := []analysis.Option{
			analysis.WithConfidence(cfg.ConfidenceInterval),
			analysis.WithSeed(cfg.Seed),
			analysis.WithClock(cfg.Clock),
			analysis.WithLogger(o.logger),
		}
		if problem == model.Regression {
			o.analyzer = analysis.NewRegressorAnalyzer(aopts...)
		} else {
			o.analyzer = analysis.NewClassifierAnalyzer(aopts...)
		}
	}
	if o.metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

// AlgorithmOutcome is the terminal state of one algorithm.
type AlgorithmOutcome struct {
	Algorithm string
	State     State
	ReportDir string
	// Report is nil unless State is StateAnalyzed.
	Report          *analysis.Report
	ModelPath       string
	ModelReused     bool
	ErrorReportPath string
}

// RunResult summarizes a run.
type RunResult struct {
	RunID             string
	State             State
	RawPath           string
	ProcessedPath     string
	SummaryPath       string
	WorkbookPath      string
	RawCacheHit       bool
	ProcessedCacheHit bool
	// Added, Removed and Eliminated are empty when the processed matrix came
	// from the cache.
	Added      []string
	Removed    []string
	Eliminated []string
	Split      *preprocessing.Split
	Outcomes   []AlgorithmOutcome
}

// Run executes every state of the pipeline. Insufficient samples end the
// affected algorithm only; every other failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{RunID: uuid.New().String(), State: StateRawPending}
	logger := o.logger.With(log.RunIDKey, res.RunID, log.EntityKey, o.task.Entity)
	logger.Info("run started", log.RowsKey, o.cfg.NumRows, log.RandomSeedKey, o.cfg.Seed)

	start := time.Now()
	raw, err := o.loadRaw(ctx, res, logger)
	if err != nil {
		return res, err
	}
	res.State = StateRawReady
	o.metrics.observeStage(StateRawReady, start)

	if err := ctx.Err(); err != nil {
		return res, errors.WithStack(err)
	}
	start = time.Now()
	if err := o.split(ctx, raw, res, logger); err != nil {
		return res, err
	}
	o.metrics.observeStage(res.State, start)

	if err := o.trainAndAnalyze(ctx, res, logger); err != nil {
		return res, err
	}
	logger.Info("run finished", log.StageKey, string(res.State))
	return res, nil
}

// lookup reports whether path can be served from the cache.
func (o *Orchestrator) lookup(checkpoint, path string, logger log.Logger) error {
	hit := o.cfg.UseCache && matrixio.Exists(path)
	o.metrics.cacheLookup(checkpoint, hit)
	logger.Debug("cache lookup", log.CheckpointKey, checkpoint, log.MatrixPathKey, path, log.CacheHitKey, hit)
	if !hit {
		return errors.ErrCacheMiss
	}
	return nil
}

func (o *Orchestrator) loadRaw(ctx context.Context, res *RunResult, logger log.Logger) (*table.Table, error) {
	path := o.task.Layout.RawMatrixPath(o.task.Entity, o.cfg.NumRows)
	res.RawPath = path

	err := o.lookup(CheckpointRaw, path, logger)
	if err == nil {
		res.RawCacheHit = true
		return matrixio.Read(path)
	}
	if !errors.Is(err, errors.ErrCacheMiss) {
		return nil, err
	}

	raw, err := errors.SafeCall("Producer.Produce", func() (*table.Table, error) {
		return o.task.Producer.Produce(ctx, o.task.Entity, o.cfg.NumRows, o.cfg.Seed)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "produce raw matrix for %s", o.task.Entity)
	}
	if err := matrixio.Write(raw, path, rawHeader(o.task, path, o.cfg.NumRows, o.cfg.Clock())); err != nil {
		return nil, err
	}
	logger.Info("raw matrix written", log.MatrixPathKey, path, log.SamplesKey, raw.NumRows(), log.FeaturesKey, raw.NumCols())
	return raw, nil
}

// split moves the run to SPLIT on a processed-cache hit and to SELECTED
// otherwise.
func (o *Orchestrator) split(ctx context.Context, raw *table.Table, res *RunResult, logger log.Logger) error {
	plan := o.task.Plan
	path := o.task.Layout.ProcessedMatrixPath(o.task.Entity, o.cfg.NumRows)
	res.ProcessedPath = path

	err := o.lookup(CheckpointProcessed, path, logger)
	if err == nil {
		res.ProcessedCacheHit = true
		processed, err := matrixio.Read(path)
		if err != nil {
			return err
		}
		header, err := matrixio.ReadHeader(path)
		if err != nil {
			return err
		}
		res.Added, res.Removed, res.Eliminated = recoverNarrative(header)
		// The row index is not persisted, so the cached file order is the
		// original row order.
		s, err := o.partition(processed.SortByIndex(), plan.OutcomeLabel)
		if err != nil {
			return err
		}
		res.Split = s
		res.State = StateSplit
		return nil
	}
	if !errors.Is(err, errors.ErrCacheMiss) {
		return err
	}

	// Stage one: row filters and derived columns on the whole raw matrix.
	stage1 := preprocessing.NewBuilder(raw, preprocessing.WithProtected(plan.OutcomeLabel), preprocessing.WithLogger(logger))
	for _, f := range plan.FeaturesToFilterOn {
		stage1.FilterRows(f)
	}
	for _, spec := range plan.FeaturesToAdd {
		if _, err := stage1.AddDerivedColumn(spec); err != nil {
			return err
		}
	}
	r1, err := stage1.Materialize()
	if err != nil {
		return err
	}
	labelled := dropMissingOutcome(r1.Table, plan.OutcomeLabel)

	trainRows, testRows, err := preprocessing.TrainTestSplit(labelled, o.cfg.TestFraction, o.cfg.Seed)
	if err != nil {
		return err
	}
	res.State = StateSplit

	// Stage two: removals, duplicates and imputation learned on training rows only.
	stage2 := preprocessing.NewBuilder(trainRows, preprocessing.WithProtected(plan.OutcomeLabel), preprocessing.WithLogger(logger))
	for _, name := range plan.FeaturesToRemove {
		stage2.RemoveColumn(name)
	}
	if err := stage2.ImputeAll(plan.ImputationStrategies, preprocessing.Mean); err != nil {
		return err
	}
	r2, err := stage2.Materialize()
	if err != nil {
		return err
	}
	testProcessed, err := r2.Replay(testRows)
	if err != nil {
		return err
	}
	s, err := preprocessing.SplitXY(r2.Table, testProcessed, plan.OutcomeLabel)
	if err != nil {
		return err
	}

	algorithm, err := selection.ParseAlgorithm(plan.SelectionAlgorithm)
	if err != nil {
		return err
	}
	sel, err := selection.New(plan.SelectionProblem, algorithm,
		selection.WithSeed(o.cfg.Seed),
		selection.WithKeep(plan.FeaturesToKeep...),
		selection.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	target := selection.TargetCount(plan.PercentFeaturesToSelect, s.XTrain.NumCols())
	if _, err := sel.Select(ctx, s.XTrain, s.YTrain, target); err != nil {
		return err
	}
	if s.XTrain, err = sel.Transform(s.XTrain); err != nil {
		return err
	}
	if s.XTest, err = sel.Transform(s.XTest); err != nil {
		return err
	}
	if !sameColumnSet(s.XTrain.Names(), s.XTest.Names()) {
		return errors.NewColumnSetMismatchError("Orchestrator.split", s.XTrain.Names(), s.XTest.Names())
	}

	res.Added = r1.Added
	res.Removed = append(append([]string(nil), r1.Removed...), r2.Removed...)
	res.Eliminated = sel.Eliminated()
	res.Split = s

	processed, err := s.Reassemble()
	if err != nil {
		return err
	}
	header := processedHeader(o.task, path, res.RawPath, o.cfg.NumRows, o.cfg.Clock(), processingNarrative{
		filters:    plan.FeaturesToFilterOn,
		added:      res.Added,
		ledger:     r2.Ledger,
		removed:    res.Removed,
		eliminated: res.Eliminated,
		target:     target,
		algorithm:  string(algorithm),
	})
	if err := matrixio.Write(processed, path, header); err != nil {
		return err
	}
	res.State = StateSelected
	logger.Info("processed matrix written",
		log.MatrixPathKey, path,
		log.SamplesKey, processed.NumRows(),
		log.FeaturesKey, s.XTrain.NumCols(),
		log.AddedKey, res.Added,
		log.RemovedKey, res.Removed,
	)
	return nil
}

// partition re-splits a cached processed matrix with the run seed.
func (o *Orchestrator) partition(processed *table.Table, outcome string) (*preprocessing.Split, error) {
	if !processed.Has(outcome) {
		return nil, errors.NewSchemaDriftError("Orchestrator.partition", []string{outcome})
	}
	train, test, err := preprocessing.TrainTestSplit(processed, o.cfg.TestFraction, o.cfg.Seed)
	if err != nil {
		return nil, err
	}
	return preprocessing.SplitXY(train, test, outcome)
}

func (o *Orchestrator) trainAndAnalyze(ctx context.Context, res *RunResult, logger log.Logger) error {
	s := res.Split
	var summary, failures *table.Table
	for _, algorithm := range o.cfg.Algorithms {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		alog := logger.With(log.AlgorithmKey, algorithm)
		out := AlgorithmOutcome{
			Algorithm: algorithm,
			ReportDir: o.task.Layout.ReportDir(o.task.Entity, algorithm),
			ModelPath: o.task.Layout.ModelDumpPath(o.task.Entity, algorithm),
		}

		start := time.Now()
		p, status, reused, err := o.train(ctx, s, algorithm, out.ModelPath, alog)
		if err != nil {
			return errors.Wrapf(err, "train %s", algorithm)
		}
		out.ModelReused = reused

		if status == learn.InsufficientSamples {
			out.State = StateInsufficientSamples
			out.ErrorReportPath = o.task.Layout.ErrorReportPath(o.task.Entity, algorithm)
			row, err := o.errorReport(algorithm, s)
			if err != nil {
				return err
			}
			if err := matrixio.Write(row, out.ErrorReportPath, []string{o.task.command(o.cfg.NumRows)}); err != nil {
				return err
			}
			if failures, err = appendRow(failures, row); err != nil {
				return err
			}
			o.metrics.outcome(out.State)
			res.Outcomes = append(res.Outcomes, out)
			alog.Warn("algorithm skipped", log.ReportPathKey, out.ErrorReportPath)
			continue
		}
		o.metrics.observeStage(StateTrained, start)
		if o.cfg.DumpModels && !reused {
			if err := learn.SaveDump(p, out.ModelPath); err != nil {
				return err
			}
		}

		start = time.Now()
		prefix := o.task.Layout.ReportPrefix(o.task.Entity, algorithm)
		report, err := o.analyzer.Analyze(ctx, p, s.XTest, s.YTest, out.ReportDir, prefix)
		if err != nil {
			return errors.Wrapf(err, "analyze %s", algorithm)
		}
		o.metrics.observeStage(StateAnalyzed, start)
		out.State = StateAnalyzed
		out.Report = report
		o.metrics.outcome(out.State)
		res.Outcomes = append(res.Outcomes, out)

		row, err := withLeadingColumn(report.Row, "algorithm", algorithm)
		if err != nil {
			return err
		}
		if summary, err = appendRow(summary, row); err != nil {
			return err
		}
	}

	res.State = finalState(res)
	if summary == nil {
		return nil
	}
	res.SummaryPath = o.task.Layout.SummaryPath(o.task.Entity)
	if err := matrixio.Write(summary, res.SummaryPath, []string{o.task.command(o.cfg.NumRows)}); err != nil {
		return err
	}
	if o.cfg.SummaryWorkbook {
		res.WorkbookPath = strings.TrimSuffix(res.SummaryPath, filepath.Ext(res.SummaryPath)) + ".xlsx"
		sheets := []analysis.Sheet{{Name: "summary", Table: summary}}
		if failures != nil {
			sheets = append(sheets, analysis.Sheet{Name: "errors", Table: failures})
		}
		if err := analysis.WriteWorkbook(res.WorkbookPath, sheets...); err != nil {
			return err
		}
	}
	logger.Info("summary written", log.ReportPathKey, res.SummaryPath)
	return nil
}

// train reuses a model dump when allowed and its features still match the
// processed matrix, and fits a new predictor otherwise.
func (o *Orchestrator) train(ctx context.Context, s *preprocessing.Split, algorithm, dumpPath string, logger log.Logger) (learn.Predictor, learn.Status, bool, error) {
	if o.cfg.DumpModels && o.cfg.UseCache {
		if _, err := os.Stat(dumpPath); err == nil {
			p, err := learn.LoadDump(dumpPath)
			if err != nil {
				return nil, "", false, err
			}
			if sameColumnSet(p.Features(), s.XTrain.Names()) {
				logger.Info("model dump reused", log.ModelNameKey, p.String())
				return p, learn.Trained, true, nil
			}
			logger.Warn("model dump is stale, retraining", log.MatrixPathKey, dumpPath)
		}
	}
	hp := o.task.Hyperparams
	hp.Algorithm = algorithm
	hp.Seed = o.cfg.Seed
	if !strings.HasPrefix(algorithm, learn.BifurcatedPrefix) {
		hp.Bifurcator = ""
	}
	p, status, err := o.trainer.Train(ctx, s.XTrain, s.YTrain, hp)
	return p, status, false, err
}

func (o *Orchestrator) errorReport(algorithm string, s *preprocessing.Split) (*table.Table, error) {
	return table.New(nil,
		table.NewCategorical("entity", []string{o.task.Entity}),
		table.NewCategorical("algorithm", []string{algorithm}),
		table.NewCategorical("error", []string{string(learn.InsufficientSamples)}),
		table.NewCategorical("y_train.value_counts()", []string{learn.FormatClassCounts(s.YTrain)}),
		table.NewCategorical("y_test.value_counts()", []string{learn.FormatClassCounts(s.YTest)}),
	)
}

func finalState(res *RunResult) State {
	final := res.State
	for _, out := range res.Outcomes {
		if out.State == StateAnalyzed {
			return StateAnalyzed
		}
		final = out.State
	}
	return final
}

func dropMissingOutcome(t *table.Table, outcome string) *table.Table {
	y, _ := t.Column(outcome)
	return t.Filter(func(row int) bool {
		return !y.Values[row].IsMissing()
	})
}

// withLeadingColumn returns a copy of t with a constant categorical column
// placed first.
func withLeadingColumn(t *table.Table, name, value string) (*table.Table, error) {
	values := make([]string, t.NumRows())
	for i := range values {
		values[i] = value
	}
	cols := []*table.Column{table.NewCategorical(name, values)}
	for i := 0; i < t.NumCols(); i++ {
		cols = append(cols, t.ColumnAt(i))
	}
	return table.New(nil, cols...)
}

// appendRow stacks row under acc, numbering rows consecutively.
func appendRow(acc, row *table.Table) (*table.Table, error) {
	if acc == nil {
		return row, nil
	}
	cols := make([]*table.Column, row.NumCols())
	for i := range cols {
		cols[i] = row.ColumnAt(i)
	}
	index := make([]int, row.NumRows())
	for i := range index {
		index[i] = acc.NumRows() + i
	}
	renumbered, err := table.New(index, cols...)
	if err != nil {
		return nil, err
	}
	return acc.Concat(renumbered)
}

func sameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

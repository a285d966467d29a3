package analysis

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/medpipe/core/parallel"
	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/metrics"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

// precision@k を報告する k
var reportedK = []int{10, 25, 50}

// ClassifierAnalyzer は二値分類器を ROC、PR、precision@k で評価する
type ClassifierAnalyzer struct {
	confidence float64
	resamples  int
	seed       int64
	plots      bool
	now        func() time.Time
	logger     log.Logger
}

// Option は分析器の設定関数
type Option func(*ClassifierAnalyzer)

// WithConfidence は AUC の信頼区間の水準を設定する
func WithConfidence(ci float64) Option {
	return func(a *ClassifierAnalyzer) {
		a.confidence = ci
	}
}

// WithResamples はブートストラップの反復回数を設定する
func WithResamples(n int) Option {
	return func(a *ClassifierAnalyzer) {
		a.resamples = n
	}
}

// WithSeed はブートストラップの乱数シードを設定する
func WithSeed(seed int64) Option {
	return func(a *ClassifierAnalyzer) {
		a.seed = seed
	}
}

// WithPlots は曲線の画像を書き出すかどうかを設定する
func WithPlots(enabled bool) Option {
	return func(a *ClassifierAnalyzer) {
		a.plots = enabled
	}
}

// WithClock はレポートの作成日時に使う時計を設定する
func WithClock(now func() time.Time) Option {
	return func(a *ClassifierAnalyzer) {
		a.now = now
	}
}

// WithLogger はログ出力先を設定する
func WithLogger(l log.Logger) Option {
	return func(a *ClassifierAnalyzer) {
		a.logger = l
	}
}

// NewClassifierAnalyzer は分類器の分析器を作成する
func NewClassifierAnalyzer(opts ...Option) *ClassifierAnalyzer {
	a := &ClassifierAnalyzer{
		confidence: DefaultConfidence,
		resamples:  1000,
		plots:      true,
		now:        time.Now,
		logger:     log.GetLoggerWithName("analysis"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ClassifierScores はテストデータ上の評価値
type ClassifierScores struct {
	TestSize         int
	Positives        int
	AUC              float64
	AUCLower         float64
	AUCUpper         float64
	AveragePrecision float64
	PrecisionAtK     map[int]float64
	ROC              metrics.Curve
	PR               metrics.Curve
	PrecisionCurve   []float64
}

// Score は予測確率からすべての評価値を計算する
func (a *ClassifierAnalyzer) Score(ctx context.Context, yTrue, proba []float64) (*ClassifierScores, error) {
	if a.confidence <= 0 || a.confidence >= 1 {
		return nil, errors.NewValidationError("confidence", "must be in (0, 1)", a.confidence)
	}
	if len(yTrue) == 0 {
		return nil, errors.NewModelError("ClassifierAnalyzer.Score", "empty test set", errors.ErrEmptyData)
	}
	yv := mat.NewVecDense(len(yTrue), append([]float64(nil), yTrue...))
	pv := mat.NewVecDense(len(proba), append([]float64(nil), proba...))

	s := &ClassifierScores{TestSize: len(yTrue), PrecisionAtK: make(map[int]float64)}
	for _, v := range yTrue {
		if v == 1 {
			s.Positives++
		}
	}
	var err error
	if s.ROC, err = metrics.ROCCurve(yv, pv); err != nil {
		return nil, err
	}
	if s.AUC, err = metrics.AUC(yv, pv); err != nil {
		return nil, err
	}
	if s.PR, err = metrics.PrecisionRecallCurve(yv, pv); err != nil {
		return nil, err
	}
	if s.AveragePrecision, err = metrics.AveragePrecision(yv, pv); err != nil {
		return nil, err
	}
	if s.PrecisionCurve, err = metrics.PrecisionAtKCurve(yv, pv); err != nil {
		return nil, err
	}
	for _, k := range reportedK {
		if s.PrecisionAtK[k], err = metrics.PrecisionAtK(yv, pv, k); err != nil {
			return nil, err
		}
	}
	if s.AUCLower, s.AUCUpper, err = a.bootstrapAUC(ctx, yTrue, proba); err != nil {
		return nil, err
	}
	return s, nil
}

// bootstrapAUC は復元抽出を繰り返して AUC のパーセンタイル信頼区間を求める。
// 反復 b は seed+b で初期化した乱数を使うので、並列実行でも結果は同じ。
// 片方のクラスしか含まない標本は数えない。
func (a *ClassifierAnalyzer) bootstrapAUC(ctx context.Context, yTrue, proba []float64) (lo, hi float64, err error) {
	n := len(yTrue)
	type sample struct {
		auc float64
		ok  bool
	}
	samples, err := parallel.Map(ctx, a.resamples, 0, func(_ context.Context, b int) (sample, error) {
		rng := rand.New(rand.NewSource(a.seed + int64(b)))
		ys := make([]float64, n)
		ps := make([]float64, n)
		pos := 0
		for i := 0; i < n; i++ {
			k := rng.Intn(n)
			ys[i], ps[i] = yTrue[k], proba[k]
			if ys[i] == 1 {
				pos++
			}
		}
		if pos == 0 || pos == n {
			return sample{}, nil
		}
		auc, err := metrics.AUC(mat.NewVecDense(n, ys), mat.NewVecDense(n, ps))
		return sample{auc: auc, ok: true}, err
	})
	if err != nil {
		return 0, 0, err
	}

	aucs := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.ok {
			aucs = append(aucs, s.auc)
		}
	}
	if len(aucs) == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc_ci", "no bootstrap sample contains both classes", 0.5))
		return 0.5, 0.5, nil
	}
	sort.Float64s(aucs)
	alpha := (1 - a.confidence) / 2
	return stat.Quantile(alpha, stat.Empirical, aucs, nil),
		stat.Quantile(1-alpha, stat.Empirical, aucs, nil), nil
}

// Analyze はテストデータで予測器を評価し、曲線の画像とレポートを dir に書き出す
func (a *ClassifierAnalyzer) Analyze(ctx context.Context, p learn.Predictor, X *table.Table, y *table.Column, dir, prefix string) (*Report, error) {
	proba, err := p.PredictProba(X)
	if err != nil {
		return nil, err
	}
	if y.CountMissing() > 0 {
		return nil, errors.NewValidationError(y.Name, "test labels contain missing values", y.CountMissing())
	}
	scores, err := a.Score(ctx, y.Floats(), proba)
	if err != nil {
		return nil, err
	}

	row, err := table.New(nil,
		table.NewCategorical("model", []string{p.String()}),
		table.NewNumeric("test_size", []float64{float64(scores.TestSize)}),
		table.NewNumeric("test_npositive", []float64{float64(scores.Positives)}),
		table.NewNumeric("roc_auc", []float64{scores.AUC}),
		table.NewNumeric("roc_auc_lower_ci", []float64{scores.AUCLower}),
		table.NewNumeric("roc_auc_upper_ci", []float64{scores.AUCUpper}),
		table.NewNumeric("average_precision", []float64{scores.AveragePrecision}),
		table.NewNumeric("precision_at_10", []float64{scores.PrecisionAtK[10]}),
		table.NewNumeric("precision_at_25", []float64{scores.PrecisionAtK[25]}),
		table.NewNumeric("precision_at_50", []float64{scores.PrecisionAtK[50]}),
	)
	if err != nil {
		return nil, err
	}

	paths := PathsFor(dir, prefix)
	report := &Report{Row: row}
	if a.plots {
		if err := plotCurve("ROC ("+prefix+")", "False positive rate", "True positive rate",
			scores.ROC.X, scores.ROC.Y, true, paths.ROC); err != nil {
			return nil, err
		}
		if err := plotCurve("Precision-Recall ("+prefix+")", "Recall", "Precision",
			scores.PR.X, scores.PR.Y, false, paths.PrecisionRecall); err != nil {
			return nil, err
		}
		ks := make([]float64, len(scores.PrecisionCurve))
		for i := range ks {
			ks[i] = float64(i + 1)
		}
		if err := plotCurve("Precision @K ("+prefix+")", "K", "Precision",
			ks, scores.PrecisionCurve, false, paths.PrecisionAtK); err != nil {
			return nil, err
		}
		report.Files = append(report.Files, paths.ROC, paths.PrecisionRecall, paths.PrecisionAtK)
	}
	if err := writeReport(row, paths.Report, a.now(), p.String()); err != nil {
		return nil, err
	}
	report.Files = append(report.Files, paths.Report)

	a.logger.Info("classifier analyzed",
		log.ReportPathKey, paths.Report,
		log.SamplesKey, scores.TestSize,
		"metrics.roc_auc", scores.AUC,
		"metrics.average_precision", scores.AveragePrecision,
	)
	return report, nil
}

package analysis

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/matrixio"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

var fixedClock = func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }

// noisyTestSet は x が大きいほど陽性になりやすい100行のテストデータを返す
func noisyTestSet() (*table.Table, *table.Column) {
	xs := make([]float64, 100)
	ys := make([]float64, 100)
	for i := range xs {
		xs[i] = float64(i)
		if i >= 60 {
			ys[i] = 1
		}
	}
	// 境界付近を入れ替えて完全分離を崩す
	ys[55], ys[65] = 1, 0
	ys[10], ys[90] = 1, 0
	return table.MustNew(nil, table.NewNumeric("x", xs)), table.NewNumeric("label", ys)
}

func classifier() *learn.LinearPredictor {
	return &learn.LinearPredictor{
		Columns:   []string{"x"},
		Kind:      model.Classification,
		Algorithm: "l2-logistic-regression",
		Coef:      []float64{0.1},
		Bias:      -6,
		Classes:   [2]float64{0, 1},
	}
}

func TestClassifierAnalyzeWritesReportAndPlots(t *testing.T) {
	dir := t.TempDir()
	X, y := noisyTestSet()
	logger, _ := log.NewTestLogger(log.LevelDebug)

	a := NewClassifierAnalyzer(WithResamples(200), WithSeed(7), WithClock(fixedClock), WithLogger(logger))
	report, err := a.Analyze(context.Background(), classifier(), X, y, dir, "ab-l2-logistic-regression")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"model", "test_size", "test_npositive", "roc_auc", "roc_auc_lower_ci", "roc_auc_upper_ci",
		"average_precision", "precision_at_10", "precision_at_25", "precision_at_50",
	}, report.Row.Names())
	assert.Equal(t, 1, report.Row.NumRows())

	get := func(name string) float64 {
		c, ok := report.Row.Column(name)
		require.True(t, ok, name)
		return c.Values[0].Num
	}
	assert.Equal(t, 100.0, get("test_size"))
	assert.Equal(t, 40.0, get("test_npositive"))
	auc := get("roc_auc")
	assert.Greater(t, auc, 0.8)
	assert.Less(t, auc, 1.0)
	assert.LessOrEqual(t, get("roc_auc_lower_ci"), get("roc_auc_upper_ci"))
	assert.GreaterOrEqual(t, get("roc_auc_lower_ci"), 0.5)
	assert.LessOrEqual(t, get("roc_auc_upper_ci"), 1.0)
	assert.InDelta(t, 0.9, get("precision_at_10"), 1e-12)

	paths := PathsFor(dir, "ab-l2-logistic-regression")
	assert.Equal(t, []string{paths.ROC, paths.PrecisionRecall, paths.PrecisionAtK, paths.Report}, report.Files)
	for _, png := range []string{paths.ROC, paths.PrecisionRecall, paths.PrecisionAtK} {
		data, err := os.ReadFile(png)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), png)
	}

	header, err := matrixio.ReadHeader(paths.Report)
	require.NoError(t, err)
	assert.Equal(t, "ab-l2-logistic-regression-report.tab", header[0])
	assert.Equal(t, "Created: 2026-10-16 09:30", header[1])

	back, err := matrixio.Read(paths.Report)
	require.NoError(t, err)
	assert.Equal(t, report.Row.Names(), back.Names())

	assert.True(t, logger.ContainsMessage("classifier analyzed"))
	assert.True(t, logger.ContainsField(log.ReportPathKey, paths.Report))
}

func TestClassifierAnalyzeWithoutPlots(t *testing.T) {
	dir := t.TempDir()
	X, y := noisyTestSet()

	a := NewClassifierAnalyzer(WithResamples(10), WithPlots(false), WithClock(fixedClock))
	report, err := a.Analyze(context.Background(), classifier(), X, y, dir, "run")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "run-report.tab")}, report.Files)
	_, err = os.Stat(filepath.Join(dir, "run-roc-plot.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestBootstrapIsReproducible(t *testing.T) {
	_, y := noisyTestSet()
	proba, err := classifier().PredictProba(table.MustNew(nil, table.NewNumeric("x", seq(100))))
	require.NoError(t, err)

	score := func(seed int64) *ClassifierScores {
		s, err := NewClassifierAnalyzer(WithResamples(300), WithSeed(seed)).Score(context.Background(), y.Floats(), proba)
		require.NoError(t, err)
		return s
	}
	first, second := score(3), score(3)
	assert.Equal(t, first.AUCLower, second.AUCLower)
	assert.Equal(t, first.AUCUpper, second.AUCUpper)
}

func TestScoreSingleClassFallsBack(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	t.Cleanup(func() { errors.SetWarningHandler(nil) })

	s, err := NewClassifierAnalyzer(WithResamples(20)).Score(context.Background(),
		[]float64{0, 0, 0, 0}, []float64{0.1, 0.4, 0.3, 0.2})
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.AUC)
	assert.Equal(t, 0.5, s.AUCLower)
	assert.Equal(t, 0.5, s.AUCUpper)
	assert.Equal(t, 0, s.Positives)
	assert.NotEmpty(t, warnings)
}

func TestScoreValidation(t *testing.T) {
	_, err := NewClassifierAnalyzer(WithConfidence(1.5)).Score(context.Background(), []float64{0, 1}, []float64{0.2, 0.8})
	var verr *errors.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = NewClassifierAnalyzer().Score(context.Background(), nil, nil)
	assert.ErrorIs(t, err, errors.ErrEmptyData)
}

func TestClassifierAnalyzeRejectsWrongColumns(t *testing.T) {
	_, y := noisyTestSet()
	X := table.MustNew(nil, table.NewNumeric("z", seq(100)))
	_, err := NewClassifierAnalyzer(WithResamples(5)).Analyze(context.Background(), classifier(), X, y, t.TempDir(), "p")
	var mismatch *errors.ColumnSetMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestRegressorAnalyze(t *testing.T) {
	dir := t.TempDir()
	p := &learn.LinearPredictor{
		Columns:   []string{"x"},
		Kind:      model.Regression,
		Algorithm: "linear-regression",
		Coef:      []float64{2},
		Bias:      1,
	}
	X := table.MustNew(nil, table.NewNumeric("x", []float64{0, 1, 2, 3}))
	y := table.NewNumeric("y", []float64{1, 3, 5, 8})

	report, err := NewRegressorAnalyzer(WithClock(fixedClock)).Analyze(context.Background(), p, X, y, dir, "reg")
	require.NoError(t, err)
	assert.Equal(t, []string{"model", "test_size", "r2", "mse", "rmse", "mae"}, report.Row.Names())

	mse, _ := report.Row.Column("mse")
	assert.InDelta(t, 0.25, mse.Values[0].Num, 1e-12)
	mae, _ := report.Row.Column("mae")
	assert.InDelta(t, 0.25, mae.Values[0].Num, 1e-12)
	rmse, _ := report.Row.Column("rmse")
	assert.InDelta(t, 0.5, rmse.Values[0].Num, 1e-12)
	assert.True(t, matrixio.Exists(filepath.Join(dir, "reg-report.tab")))
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.xlsx")
	results := table.MustNew(nil,
		table.NewCategorical("model", []string{"a", "b"}),
		table.NewNumeric("roc_auc", []float64{0.75, 0.5}),
	)
	failures := table.MustNew(nil,
		table.NewCategorical("algorithm", []string{"l1-logistic-regression"}),
		table.NewColumn("reason", table.Categorical, []table.Value{table.Missing}),
	)
	require.NoError(t, WriteWorkbook(path,
		Sheet{Name: "results", Table: results},
		Sheet{Name: "errors", Table: failures},
	))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"results", "errors"}, f.GetSheetList())
	rows, err := f.GetRows("results")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"model", "roc_auc"}, {"a", "0.75"}, {"b", "0.5"}}, rows)

	rows, err = f.GetRows("errors")
	require.NoError(t, err)
	assert.Equal(t, []string{"algorithm", "reason"}, rows[0])
	assert.Equal(t, []string{"l1-logistic-regression"}, rows[1])
}

func TestWriteWorkbookRequiresSheets(t *testing.T) {
	err := WriteWorkbook(filepath.Join(t.TempDir(), "x.xlsx"))
	var verr *errors.ValueError
	assert.ErrorAs(t, err, &verr)
}

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

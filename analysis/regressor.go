package analysis

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/metrics"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

// RegressorAnalyzer は回帰モデルを R2、MSE、RMSE、MAE で評価する
type RegressorAnalyzer struct {
	now    func() time.Time
	logger log.Logger
}

// NewRegressorAnalyzer は回帰の分析器を作成する。
// Option のうち WithClock と WithLogger だけが効く。
func NewRegressorAnalyzer(opts ...Option) *RegressorAnalyzer {
	c := NewClassifierAnalyzer(opts...)
	return &RegressorAnalyzer{now: c.now, logger: c.logger}
}

// Analyze はテストデータで回帰モデルを評価してレポートを書き出す
func (a *RegressorAnalyzer) Analyze(_ context.Context, p learn.Predictor, X *table.Table, y *table.Column, dir, prefix string) (*Report, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return nil, err
	}
	if y.CountMissing() > 0 {
		return nil, errors.NewValidationError(y.Name, "test outcome contains missing values", y.CountMissing())
	}
	if len(pred) == 0 {
		return nil, errors.NewModelError("RegressorAnalyzer.Analyze", "empty test set", errors.ErrEmptyData)
	}
	yv := mat.NewVecDense(len(pred), y.Floats())
	pv := mat.NewVecDense(len(pred), pred)

	r2, err := metrics.R2Score(yv, pv)
	if err != nil {
		return nil, err
	}
	mse, err := metrics.MSE(yv, pv)
	if err != nil {
		return nil, err
	}
	rmse, err := metrics.RMSE(yv, pv)
	if err != nil {
		return nil, err
	}
	mae, err := metrics.MAE(yv, pv)
	if err != nil {
		return nil, err
	}

	row, err := table.New(nil,
		table.NewCategorical("model", []string{p.String()}),
		table.NewNumeric("test_size", []float64{float64(len(pred))}),
		table.NewNumeric("r2", []float64{r2}),
		table.NewNumeric("mse", []float64{mse}),
		table.NewNumeric("rmse", []float64{rmse}),
		table.NewNumeric("mae", []float64{mae}),
	)
	if err != nil {
		return nil, err
	}
	path := PathsFor(dir, prefix).Report
	if err := writeReport(row, path, a.now(), p.String()); err != nil {
		return nil, err
	}
	a.logger.Info("regressor analyzed", log.ReportPathKey, path, log.SamplesKey, len(pred), "metrics.r2", r2)
	return &Report{Row: row, Files: []string{path}}, nil
}

package labchange

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/extract"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/matrixio"
	"github.com/YuminosukeSato/medpipe/pipeline"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/preprocessing"
)

var components = ComponentMap{"LABK": "K", "LABNA": "NA"}

func TestReadComponentMap(t *testing.T) {
	m, err := ReadComponentMap(strings.NewReader("# panel component\nLABK K\n\nLABNA   NA  extra\n"))
	require.NoError(t, err)
	assert.Equal(t, ComponentMap{"LABK": "K", "LABNA": "NA"}, m)

	prev, err := m.PreviousMeasurement("LABNA")
	require.NoError(t, err)
	assert.Equal(t, "NA.-14_0.last", prev)

	_, err = m.PreviousMeasurement("LABCBC")
	var verr *errors.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = ReadComponentMap(strings.NewReader("LABK\n"))
	assert.Error(t, err)
}

func TestLoadComponentMapNotFound(t *testing.T) {
	_, err := LoadComponentMap(filepath.Join(t.TempDir(), "missing.tab"))
	var nf *errors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDefinition(t *testing.T) {
	assert.Equal(t, "change_sd_05", ChangeParams{Method: preprocessing.DeltaSD, Param: 0.5}.Definition())
	assert.Equal(t, "change_percent_015", ChangeParams{Method: preprocessing.DeltaPercent, Param: 0.15}.Definition())
	assert.Equal(t, "change_absolute_2", ChangeParams{Method: preprocessing.DeltaAbsolute, Param: 2}.Definition())
}

func TestNewTaskPlan(t *testing.T) {
	task, err := NewTask("/srv", "LABK", ChangeParams{Method: preprocessing.DeltaSD, Param: 0.5}, components, extract.NewSynthetic())
	require.NoError(t, err)

	plan := task.Plan
	assert.Equal(t, Outcome, plan.OutcomeLabel)
	assert.Equal(t, []preprocessing.RowFilter{{Column: "K.-14_0.last", Missing: true}}, plan.FeaturesToFilterOn)
	require.Len(t, plan.FeaturesToAdd, 1)
	delta := plan.FeaturesToAdd[0]
	assert.Equal(t, preprocessing.Delta, delta.Kind)
	assert.Equal(t, "ord_num_value", delta.Base)
	assert.Equal(t, "K.-14_0.last", delta.Previous)
	assert.Equal(t, 0.5, delta.Threshold)
	assert.Equal(t, []string{"LABK.pre"}, plan.FeaturesToKeep)
	assert.Contains(t, plan.FeaturesToRemove, "ord_num_value")
	assert.Equal(t, "LABK.pre", task.Hyperparams.Bifurcator)

	l := task.Layout
	assert.Equal(t, "/srv/data/LABK/LABK-change-matrix-1000-episodes-raw.tab", l.RawMatrixPath("LABK", 1000))
	assert.Equal(t, "/srv/data/LABK/change_sd_05/LABK-change-matrix-1000-episodes-processed.tab", l.ProcessedMatrixPath("LABK", 1000))
	assert.Equal(t, "/srv/data/LABK/change_sd_05/LABK-change-l2-logistic-regression-model.gob", l.ModelDumpPath("LABK", learn.L2LogisticRegression))
	assert.Equal(t, "/srv/data/LABK/change_sd_05/LABK-change-prediction-report.tab", l.SummaryPath("LABK"))
}

func TestNewTaskValidation(t *testing.T) {
	_, err := NewTask("/srv", "LABCBC", ChangeParams{Method: preprocessing.DeltaSD, Param: 0.5}, components, extract.NewSynthetic())
	var verr *errors.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = NewTask("/srv", "LABK", ChangeParams{Method: "interval", Param: 0.5}, components, extract.NewSynthetic())
	assert.ErrorAs(t, err, &verr)
}

func TestChangeDefinitionsShareRawMatrix(t *testing.T) {
	root := t.TempDir()
	synthetic := extract.NewSynthetic()
	synthetic.Previous = "K.-14_0.last"
	var calls int32
	producer := pipeline.ProducerFunc(func(ctx context.Context, entity string, rows int, seed int64) (*table.Table, error) {
		atomic.AddInt32(&calls, 1)
		return synthetic.Produce(ctx, entity, rows, seed)
	})

	cfg := pipeline.Config{
		UseCache:   true,
		Seed:       123456789,
		NumRows:    240,
		Algorithms: []string{learn.L2LogisticRegression, learn.BifurcatedPrefix + learn.L2LogisticRegression},
		Clock:      func() time.Time { return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC) },
	}
	var processed []string
	for _, param := range []float64{0.3, 0.4} {
		task, err := NewTask(root, "LABK", ChangeParams{Method: preprocessing.DeltaSD, Param: param}, components, producer, WithRemoved("sex"))
		require.NoError(t, err)
		m, err := pipeline.NewMetrics(prometheus.NewRegistry())
		require.NoError(t, err)
		o, err := pipeline.New(task, cfg, pipeline.WithMetrics(m))
		require.NoError(t, err)

		res, err := o.Run(context.Background())
		require.NoError(t, err)
		processed = append(processed, res.ProcessedPath)

		require.Len(t, res.Outcomes, 2)
		assert.Equal(t, pipeline.StateAnalyzed, res.Outcomes[0].State)
		assert.Contains(t, []pipeline.State{pipeline.StateAnalyzed, pipeline.StateInsufficientSamples}, res.Outcomes[1].State)
		assert.Contains(t, res.Split.XTrain.Names(), "LABK.pre")
		assert.NotContains(t, res.Split.XTrain.Names(), "ord_num_value")
		assert.Contains(t, res.Added, Outcome)

		header, err := matrixio.ReadHeader(res.ProcessedPath)
		require.NoError(t, err)
		assert.Contains(t, strings.Join(header, "\n"), `LabChangePredictionPipeline("LABK", 240, method=sd`)
	}
	assert.EqualValues(t, 1, calls)
	assert.NotEqual(t, processed[0], processed[1])
	assert.Equal(t, filepath.Dir(filepath.Dir(processed[0])), filepath.Dir(filepath.Dir(processed[1])))
}

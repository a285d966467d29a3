package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/extract"
	"github.com/YuminosukeSato/medpipe/labchange"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/pipeline"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/preprocessing"
)

const planYAML = `
run:
  name: PotassiumPipeline
  entity: LABK
  rows: 500
  data_root: /tmp/medpipe
  algorithms: [l2-logistic-regression]
plan:
  outcome_label: label
  selection_problem: classification
  selection_algorithm: recursive-elimination
  percent_features_to_select: 0.2
  features_to_add:
    - kind: indicator
      base: sex
      value: F
    - kind: threshold
      base: age
      lower: 65
  features_to_remove: [pat_id, order_time, sex]
  features_to_keep: [LABK.pre]
  imputation_strategies:
    age: median
  data_overview:
    - Overview
hyperparams:
  max_iter: 200
  c: 0.5
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("entity", "", "")
	fs.Int("rows", 0, "")
	fs.Int64("seed", 0, "")
	fs.Bool("no-cache", false, "")
	fs.String("log-level", "info", "")
	fs.String("unrelated", "", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "plan.yaml", planYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "PotassiumPipeline", cfg.Run.Name)
	assert.Equal(t, "LABK", cfg.Run.Entity)
	assert.Equal(t, 500, cfg.Run.Rows)
	assert.Equal(t, int64(42), cfg.Run.Seed)
	assert.True(t, cfg.Run.UseCache)
	assert.InDelta(t, 0.25, cfg.Run.TestFraction, 1e-12)
	assert.Equal(t, KindPlan, cfg.Task.Kind)
	assert.Equal(t, SourceSynthetic, cfg.Source.Kind)

	plan := cfg.Plan
	assert.Equal(t, "label", plan.OutcomeLabel)
	assert.Equal(t, model.Classification, plan.SelectionProblem)
	require.Len(t, plan.FeaturesToAdd, 2)
	assert.Equal(t, preprocessing.Indicator, plan.FeaturesToAdd[0].Kind)
	require.NotNil(t, plan.FeaturesToAdd[1].Lower)
	assert.InDelta(t, 65, *plan.FeaturesToAdd[1].Lower, 1e-12)
	assert.Nil(t, plan.FeaturesToAdd[1].Upper)
	assert.Equal(t, preprocessing.Strategy("median"), plan.ImputationStrategies["age"])
	assert.Equal(t, 200, cfg.Hyperparams.MaxIter)
	assert.InDelta(t, 0.5, cfg.Hyperparams.C, 1e-12)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, "plan.yaml", planYAML)
	t.Setenv("MEDPIPE_RUN__ROWS", "300")
	t.Setenv("MEDPIPE_RUN__SEED", "7")
	t.Setenv("MEDPIPE_LOG__LEVEL", "warn")

	t.Run("env over file", func(t *testing.T) {
		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 300, cfg.Run.Rows)
		assert.Equal(t, int64(7), cfg.Run.Seed)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("changed flags over env", func(t *testing.T) {
		cfg, err := Load(path, newFlags(t, "--rows", "120", "--entity", "LABNA", "--no-cache", "--unrelated", "x"))
		require.NoError(t, err)
		assert.Equal(t, 120, cfg.Run.Rows)
		assert.Equal(t, "LABNA", cfg.Run.Entity)
		assert.False(t, cfg.Run.UseCache)
		assert.Equal(t, int64(7), cfg.Run.Seed, "unchanged flag keeps env value")
		assert.Equal(t, "warn", cfg.Log.Level)
	})
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		param string
	}{
		{
			name:  "missing entity",
			yaml:  "run: {rows: 10}\nplan: {outcome_label: y, selection_problem: classification, selection_algorithm: univariate, percent_features_to_select: 0.5}\n",
			param: "RunConfig.Entity",
		},
		{
			name:  "bad test fraction",
			yaml:  "run: {entity: A, rows: 10, test_fraction: 1.5}\n",
			param: "RunConfig.TestFraction",
		},
		{
			name:  "sqlite without dsn",
			yaml:  "run: {entity: A, rows: 10}\nsource: {kind: sqlite, query: select 1}\n",
			param: "SourceConfig.DSN",
		},
		{
			name:  "unknown selection algorithm",
			yaml:  "run: {entity: A, rows: 10}\nplan: {outcome_label: y, selection_problem: classification, selection_algorithm: lasso, percent_features_to_select: 0.5}\n",
			param: "Plan.SelectionAlgorithm",
		},
		{
			name:  "unknown change method",
			yaml:  "run: {entity: A, rows: 10}\ntask: {kind: labchange, change: {method: interval, param: 1}}\n",
			param: "ChangeParams.Method",
		},
		{
			name:  "informative exceeds features",
			yaml:  "run: {entity: A, rows: 10}\ntask: {kind: labchange, change: {method: sd, param: 1}}\nsource: {features: 2, informative: 3}\n",
			param: "source.informative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tt.yaml), nil)
			require.Error(t, err)
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.param, ve.ParamName)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestPlanTask(t *testing.T) {
	cfg, err := Load(writeFile(t, "plan.yaml", planYAML), nil)
	require.NoError(t, err)

	producer, closer, err := cfg.Producer()
	require.NoError(t, err)
	defer closer.Close()
	s, ok := producer.(*extract.Synthetic)
	require.True(t, ok)
	assert.Equal(t, 20, s.Features)

	task, err := cfg.BuildTask(producer)
	require.NoError(t, err)
	assert.Equal(t, "PotassiumPipeline", task.Name)
	assert.Equal(t, "LABK", task.Entity)
	assert.Equal(t, filepath.Join("/tmp/medpipe", "data", "LABK", "LABK-matrix-500-episodes-raw.tab"),
		task.Layout.RawMatrixPath("LABK", 500))

	pc := cfg.PipelineConfig()
	assert.Equal(t, []string{learn.L2LogisticRegression}, pc.Algorithms)
	assert.Equal(t, 500, pc.NumRows)
	assert.True(t, pc.UseCache)
	assert.InDelta(t, 0.95, pc.ConfidenceInterval, 1e-12)
}

func TestDefaultAlgorithms(t *testing.T) {
	cfg := &Config{Plan: preprocessing.Plan{SelectionProblem: model.Regression}, Task: TaskConfig{Kind: KindPlan}}
	assert.Equal(t, []string{learn.LinearRegression, learn.RidgeRegression}, cfg.PipelineConfig().Algorithms)

	cfg.Plan.SelectionProblem = model.Classification
	assert.Equal(t, []string{learn.L1LogisticRegression, learn.L2LogisticRegression}, cfg.PipelineConfig().Algorithms)

	cfg.Task.Kind = KindLabChange
	assert.Equal(t, labchange.Algorithms(), cfg.PipelineConfig().Algorithms)
}

func TestLabChangeTask(t *testing.T) {
	components := writeFile(t, "components.txt", "# panel component\nLABK K\n")
	yaml := "run: {entity: LABK, rows: 200, data_root: " + t.TempDir() + "}\n" +
		"task:\n  kind: labchange\n  component_map: " + components + "\n" +
		"  change: {method: sd, param: 0.5}\n  remove: [sex]\n"
	cfg, err := Load(writeFile(t, "lab.yaml", yaml), nil)
	require.NoError(t, err)

	producer, closer, err := cfg.Producer()
	require.NoError(t, err)
	defer closer.Close()

	task, err := cfg.BuildTask(producer)
	require.NoError(t, err)
	assert.Equal(t, labchange.PipelineName, task.Name)
	assert.Equal(t, labchange.Outcome, task.Plan.OutcomeLabel)
	assert.Contains(t, task.Plan.FeaturesToRemove, "sex")
	require.Len(t, task.Plan.FeaturesToFilterOn, 1)
	assert.Equal(t, "K.-14_0.last", task.Plan.FeaturesToFilterOn[0].Column)

	layout, ok := task.Layout.(pipeline.StandardLayout)
	require.True(t, ok)
	assert.Equal(t, "change_sd_05", layout.Variant)
}

func TestLabChangeMissingComponentMap(t *testing.T) {
	yaml := "run: {entity: LABK, rows: 200}\n" +
		"task: {kind: labchange, component_map: /nonexistent/components.txt, change: {method: sd, param: 1}}\n"
	cfg, err := Load(writeFile(t, "lab.yaml", yaml), nil)
	require.NoError(t, err)

	_, err = cfg.BuildTask(extract.NewSynthetic())
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestSQLiteProducer(t *testing.T) {
	yaml := "run: {entity: LABK, rows: 10}\n" +
		"plan: {outcome_label: y, selection_problem: classification, selection_algorithm: univariate, percent_features_to_select: 0.5}\n" +
		"source: {kind: sqlite, dsn: ':memory:', query: 'select ? as entity', args: [entity]}\n"
	cfg, err := Load(writeFile(t, "sql.yaml", yaml), nil)
	require.NoError(t, err)

	producer, closer, err := cfg.Producer()
	require.NoError(t, err)
	defer closer.Close()
	_, ok := producer.(*extract.SQLProducer)
	assert.True(t, ok)
}

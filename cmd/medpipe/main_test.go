package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/matrixio"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		log.SetProvider(log.NewZerologProvider(os.Stderr, log.LevelInfo))
		errors.SetZerologWarnFunc(nil)
	})

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.tab")
	m := table.MustNew(nil,
		table.NewNumeric("age", []float64{40, 60}),
		table.NewCategorical("sex", []string{"F", "M"}),
	)
	require.NoError(t, matrixio.Write(m, path, []string{"m.tab", "Created: 2026-10-16 09:30"}))

	out, err := execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "# m.tab")
	assert.Contains(t, out, "# Created: 2026-10-16 09:30")
	assert.Contains(t, out, "age")
	assert.Contains(t, out, "categorical")
	assert.Contains(t, out, "50")
	assert.Contains(t, out, "(2 rows, 2 columns)")
}

func TestInspectErrors(t *testing.T) {
	_, err := execute(t, "inspect")
	assert.Error(t, err)

	_, err = execute(t, "inspect", filepath.Join(t.TempDir(), "absent.tab"))
	assert.Error(t, err)
}

const runYAML = `
run:
  entity: LABK
  rows: 200
  algorithms: [l2-logistic-regression]
  summary_workbook: false
plan:
  outcome_label: label
  selection_problem: classification
  selection_algorithm: univariate
  percent_features_to_select: 0.2
  features_to_remove: [pat_id, order_time, sex]
log:
  level: error
`

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(runYAML), 0o644))

	out, err := execute(t, "run", "--config", path, "--data-root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ANALYZED")
	assert.Contains(t, out, "l2-logistic-regression")
	assert.Contains(t, out, "(cached: false)")
	assert.FileExists(t, filepath.Join(dir, "data", "LABK", "LABK-prediction-report.tab"))
	assert.NoFileExists(t, filepath.Join(dir, "data", "LABK", "LABK-prediction-report.xlsx"))

	out, err = execute(t, "run", "--config", path, "--data-root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed matrix:")
	assert.Contains(t, out, "(cached: true)")
	assert.Contains(t, out, "(reused)")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(runYAML), 0o644))

	_, err := execute(t, "run", "--config", path, "--data-root", dir, "--rows=-5")
	assert.Error(t, err)

	_, err = execute(t, "run", "extra-arg")
	assert.Error(t, err)
}

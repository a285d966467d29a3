// Package pipeline drives a prediction task from a raw feature matrix to
// per-algorithm evaluation reports, caching the raw and processed matrices.
package pipeline

import (
	"context"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/preprocessing"
)

// Producer builds the raw matrix for an entity. It must be deterministic for
// a given seed.
type Producer interface {
	Produce(ctx context.Context, entity string, rows int, seed int64) (*table.Table, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context, entity string, rows int, seed int64) (*table.Table, error)

// Produce calls f.
func (f ProducerFunc) Produce(ctx context.Context, entity string, rows int, seed int64) (*table.Table, error) {
	return f(ctx, entity, rows, seed)
}

// Task is everything specific to one prediction task.
type Task struct {
	// Name identifies the pipeline in provenance headers.
	Name   string
	Entity string
	// Params are extra key=value pairs shown on the "Command:" header line.
	Params []string

	Producer Producer
	Layout   Layout
	Plan     preprocessing.Plan

	// Hyperparams is the template for every algorithm; Algorithm is
	// overwritten per run. Bifurcated algorithms use its Bifurcator fields.
	Hyperparams learn.Hyperparams
}

// Validate checks the task before any file is touched.
func (t Task) Validate() error {
	if t.Name == "" {
		return errors.NewValidationError("name", "task name is required", t.Name)
	}
	if strings.TrimSpace(t.Entity) == "" {
		return errors.NewValidationError("entity", "entity identifier is required", t.Entity)
	}
	if t.Producer == nil {
		return errors.NewValidationError("producer", "raw matrix producer is required", nil)
	}
	if t.Layout == nil {
		return errors.NewValidationError("layout", "layout is required", nil)
	}
	return t.Plan.Validate()
}

// command renders the invocation line, e.g. Pipeline("LABK", 1000, method=sd).
func (t Task) command(rows int) string {
	args := append([]string{strconv.Quote(t.Entity), strconv.Itoa(rows)}, t.Params...)
	return t.Name + "(" + strings.Join(args, ", ") + ")"
}

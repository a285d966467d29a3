package errors

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Train",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "medpipe: Train: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			wantMsg: "medpipe: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)
			assert.Equal(t, tt.wantMsg, err.Error())

			// スタックトレースがテストファイルを含むこと
			assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")

			var modelErr *ModelError
			assert.True(t, As(err, &modelErr))
		})
	}
}

func TestModelErrorUnwrap(t *testing.T) {
	err := NewModelError("Train", "train failed", ErrInsufficientSamples)
	assert.True(t, Is(err, ErrInsufficientSamples))
}

func TestNewSchemaDriftError(t *testing.T) {
	err := NewSchemaDriftError("Builder.Fit", []string{"age", "sex"})
	assert.Equal(t, "medpipe: Builder.Fit: schema drift, plan references absent columns [age, sex]", err.Error())

	var drift *SchemaDriftError
	require.True(t, As(err, &drift))
	assert.Equal(t, []string{"age", "sex"}, drift.Missing)
}

func TestNewColumnSetMismatchError(t *testing.T) {
	err := NewColumnSetMismatchError("Orchestrator.select", []string{"a", "b"}, []string{"a"})
	assert.Contains(t, err.Error(), "expected [a, b], got [a]")

	var mismatch *ColumnSetMismatchError
	assert.True(t, As(err, &mismatch))
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("/tmp/x.tab")
	assert.Equal(t, "medpipe: /tmp/x.tab: not found", err.Error())

	wrapped := Wrap(err, "load raw matrix")
	var nf *NotFoundError
	require.True(t, As(wrapped, &nf))
	assert.Equal(t, "/tmp/x.tab", nf.Path)
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Transform", 5, 3, 1)
	assert.Equal(t, "medpipe: Transform: dimension mismatch on axis 1 (features). Expected 5, got 3", err.Error())

	err = NewDimensionError("Fit", 10, 8, 0)
	assert.Contains(t, err.Error(), "(rows)")
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("Selector", "Transform")
	assert.Equal(t, "medpipe: Selector: this model is not fitted yet. Call Fit() before using Transform()", err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("target_pct", "must be in (0, 1]", 1.5)
	assert.Equal(t, "medpipe: validation failed for parameter 'target_pct': must be in (0, 1] (got: 1.5)", err.Error())
}

func TestNewValueError(t *testing.T) {
	err := NewValueError("Split", "test fraction out of range")
	assert.Equal(t, "medpipe: Split: test fraction out of range", err.Error())
}

func TestWarnings(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(error) {})

	Warn(NewConvergenceWarning("LogisticRegression", 1024, ""))
	Warn(NewAllValuesMissingWarning("lab.bnp", 42))
	Warn(NewUndefinedMetricWarning("roc_auc", "no positive samples in y_true", math.NaN()))

	require.Len(t, got, 3)
	assert.Contains(t, got[0].Error(), "failed to converge after 1024 iterations")
	assert.Contains(t, got[1].Error(), "'lab.bnp' has no values in 42 rows")
	assert.Contains(t, got[2].Error(), "'roc_auc' is ill-defined")
}

func TestZerologWarnFuncTakesPrecedence(t *testing.T) {
	var handled, routed int
	SetWarningHandler(func(error) { handled++ })
	SetZerologWarnFunc(func(error) { routed++ })
	defer func() {
		SetZerologWarnFunc(nil)
		SetWarningHandler(func(error) {})
	}()

	Warn(NewConvergenceWarning("x", 1, "m"))
	assert.Equal(t, 0, handled)
	assert.Equal(t, 1, routed)
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrEmptyData, "additional context")
	assert.True(t, Is(wrapped, ErrEmptyData))
	assert.Contains(t, wrapped.Error(), "additional context")

	wrapped = Wrapf(ErrSingularMatrix, "fit %s", "ridge")
	assert.True(t, Is(wrapped, ErrSingularMatrix))
	assert.Contains(t, wrapped.Error(), "fit ridge")
}

func TestCheckNumericalStability(t *testing.T) {
	assert.NoError(t, CheckNumericalStability("ok", []float64{1, 2, 3}, 0))

	err := CheckNumericalStability("gradient_update", []float64{1, math.NaN()}, 7)
	require.Error(t, err)
	var ni *NumericalInstabilityError
	require.True(t, As(err, &ni))
	assert.Equal(t, 7, ni.Iteration)
}

func TestCheckMatrix(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, math.Inf(1)})
	err := CheckMatrix("fit_input", m, 2, 2)
	require.Error(t, err)

	var ni *NumericalInstabilityError
	require.True(t, As(err, &ni))
	assert.Equal(t, 1, ni.Iteration)
	assert.Contains(t, err.Error(), "fit_input")
}

func TestSafeDivide(t *testing.T) {
	assert.Equal(t, 0.0, SafeDivide(1, 0))
	assert.Equal(t, 2.0, SafeDivide(4, 2))
}

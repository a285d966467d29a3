package linear_model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

var _ model.ProbabilisticClassifier = (*LogisticRegression)(nil)

func separable() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(6, 2, []float64{
		0.5, 0.5,
		1.0, 1.5,
		1.5, 1.0,
		3.0, 2.5,
		2.5, 3.0,
		3.5, 3.5,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	return X, y
}

// noisy returns rows where only the first of nFeatures columns carries signal
func noisy(n, nFeatures int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, nFeatures, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < nFeatures; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		if 2*X.At(i, 0)+0.5*rng.NormFloat64() > 0 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func TestLogisticRegressionFitPredictBinary(t *testing.T) {
	X, y := separable()
	lr := NewLogisticRegression(WithLRMaxIter(1000))
	require.NoError(t, lr.Fit(X, y))

	predictions, err := lr.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.Equal(t, y.At(i, 0), predictions.At(i, 0), "sample %d", i)
	}

	acc, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)
}

func TestLogisticRegressionPredictProba(t *testing.T) {
	X, y := separable()
	lr := NewLogisticRegression(WithLRMaxIter(1000))
	require.NoError(t, lr.Fit(X, y))

	proba, err := lr.PredictProba(mat.NewDense(2, 2, []float64{1, 1, 3, 3}))
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, c)
	assert.Less(t, proba.At(0, 0), 0.5)
	assert.Greater(t, proba.At(1, 0), 0.5)
}

func TestLogisticRegressionKeepsOriginalLabels(t *testing.T) {
	X, _ := separable()
	y := mat.NewDense(6, 1, []float64{-1, -1, -1, 7, 7, 7})
	lr := NewLogisticRegression(WithLRMaxIter(1000))
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, [2]float64{-1, 7}, lr.Classes())

	pred, err := lr.Predict(mat.NewDense(1, 2, []float64{3.5, 3.5}))
	require.NoError(t, err)
	assert.Equal(t, 7.0, pred.At(0, 0))
}

func TestL1PenaltyZeroesNoiseColumns(t *testing.T) {
	X, y := noisy(300, 6, 11)
	lr := NewLogisticRegression(WithLRPenalty(PenaltyL1), WithLRC(0.05), WithLRMaxIter(2000))
	require.NoError(t, lr.Fit(X, y))

	coef := lr.Coefficients()
	assert.Greater(t, coef[0], 0.1)
	zeros := 0
	for _, w := range coef[1:] {
		if w == 0 {
			zeros++
		}
	}
	assert.GreaterOrEqual(t, zeros, 3, "coef=%v", coef)
}

func TestL2CoefficientsRankSignalFirst(t *testing.T) {
	X, y := noisy(300, 4, 5)
	lr := NewLogisticRegression(WithLRMaxIter(1024))
	require.NoError(t, lr.Fit(X, y))
	coef := lr.Coefficients()
	for _, w := range coef[1:] {
		assert.Greater(t, math.Abs(coef[0]), math.Abs(w))
	}
}

func TestLogisticRegressionIsReproducible(t *testing.T) {
	X, y := noisy(100, 3, 2)
	a := NewLogisticRegression(WithLRRandomState(42))
	b := NewLogisticRegression(WithLRRandomState(42))
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	assert.Equal(t, a.Coefficients(), b.Coefficients())
	assert.Equal(t, a.Intercept(), b.Intercept())
}

func TestLogisticRegressionErrors(t *testing.T) {
	lr := NewLogisticRegression()
	_, err := lr.Predict(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	X, _ := separable()
	err = lr.Fit(X, mat.NewDense(6, 1, []float64{1, 1, 1, 1, 1, 1}))
	assert.True(t, errors.Is(err, errors.ErrInsufficientSamples))

	err = NewLogisticRegression(WithLRPenalty("elasticnet")).Fit(separable())
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	X, y := separable()
	require.NoError(t, lr.Fit(X, y))
	_, err = lr.PredictProba(mat.NewDense(1, 3, nil))
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))
}

func TestConvergenceWarning(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	X, y := noisy(50, 3, 1)
	require.NoError(t, NewLogisticRegression(WithLRMaxIter(1), WithLRTol(0)).Fit(X, y))
	require.Len(t, warnings, 1)
	var cw *errors.ConvergenceWarning
	assert.True(t, errors.As(warnings[0], &cw))
}

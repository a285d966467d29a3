// Package linear_model provides binary logistic regression with L1 or L2
// regularization, used both as a clinical classifier and as the coefficient
// source for recursive feature elimination.
package linear_model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// Penalty names accepted by WithLRPenalty.
const (
	PenaltyL1   = "l1"
	PenaltyL2   = "l2"
	PenaltyNone = "none"
)

// LogisticRegression implements binary logistic regression fitted by
// accelerated proximal gradient descent.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	penalty      string  // "l1", "l2" or "none"
	C            float64 // Inverse regularization strength
	fitIntercept bool
	randomState  int64
	maxIter      int
	tol          float64

	// Model parameters
	coef      []float64
	intercept float64
	classes   [2]float64 // negative, positive label
	nIter     int

	rand *rand.Rand
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      PenaltyL2,
		C:            1.0,
		fitIntercept: true,
		maxIter:      100,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	lr.rand = rand.New(rand.NewSource(lr.randomState))
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRRandomState sets the seed used for the initial weights
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
	}
}

func (lr *LogisticRegression) validate() error {
	switch lr.penalty {
	case PenaltyL1, PenaltyL2, PenaltyNone:
	default:
		return errors.NewValidationError("penalty", "must be l1, l2 or none", lr.penalty)
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", lr.maxIter)
	}
	return nil
}

// Fit trains the model. y must hold exactly two distinct labels; the larger
// one is treated as the positive class.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LogisticRegression.Fit", "y must be a column vector")
	}
	if err := errors.CheckMatrix("LogisticRegression.Fit", X, nSamples, nFeatures); err != nil {
		return err
	}

	target, err := lr.extractClasses(y)
	if err != nil {
		return err
	}
	lr.initializeWeights(nFeatures)
	lr.fitBinary(X, target)
	if err := errors.CheckNumericalStability("LogisticRegression.Fit", lr.coef, lr.nIter); err != nil {
		return err
	}

	lr.state.SetFitted(nFeatures, nSamples)
	return nil
}

// extractClasses maps y onto {0, 1}
func (lr *LogisticRegression) extractClasses(y mat.Matrix) ([]float64, error) {
	rows, _ := y.Dims()
	seen := make(map[float64]bool)
	for i := 0; i < rows; i++ {
		seen[y.At(i, 0)] = true
	}
	if len(seen) != 2 {
		return nil, errors.NewModelError("LogisticRegression.Fit",
			fmt.Sprintf("binary classification needs exactly 2 classes, got %d", len(seen)),
			errors.ErrInsufficientSamples)
	}
	first := true
	for c := range seen {
		if first {
			lr.classes = [2]float64{c, c}
			first = false
			continue
		}
		lr.classes[0] = math.Min(lr.classes[0], c)
		lr.classes[1] = math.Max(lr.classes[1], c)
	}

	target := make([]float64, rows)
	for i := range target {
		if y.At(i, 0) == lr.classes[1] {
			target[i] = 1
		}
	}
	return target, nil
}

// initializeWeights initializes model weights with small random values
func (lr *LogisticRegression) initializeWeights(nFeatures int) {
	lr.coef = make([]float64, nFeatures)
	for j := range lr.coef {
		lr.coef[j] = lr.rand.NormFloat64() * 0.01
	}
	lr.intercept = 0
	lr.nIter = 0
}

// fitBinary minimizes mean log loss + penalty/(C*n) with FISTA. The step
// size is the inverse Lipschitz constant of the smooth part.
func (lr *LogisticRegression) fitBinary(X mat.Matrix, target []float64) {
	nSamples, nFeatures := X.Dims()
	n := float64(nSamples)
	lambda := 1.0 / (lr.C * n)

	lipschitz := 0.25*lipschitzBound(X, lr.fitIntercept)/n + 1e-12
	if lr.penalty == PenaltyL2 {
		lipschitz += lambda
	}
	step := 1 / lipschitz

	w := lr.coef
	b := lr.intercept
	// extrapolated point
	v := append([]float64(nil), w...)
	vb := b
	t := 1.0

	grad := make([]float64, nFeatures)
	prev := make([]float64, nFeatures)
	row := make([]float64, nFeatures)

	converged := false
	for iter := 0; iter < lr.maxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradB := 0.0
		for i := 0; i < nSamples; i++ {
			for j := range row {
				row[j] = X.At(i, j)
			}
			residual := sigmoid(vb+floats.Dot(row, v)) - target[i]
			gradB += residual
			floats.AddScaled(grad, residual, row)
		}
		floats.Scale(1/n, grad)
		gradB /= n
		if lr.penalty == PenaltyL2 {
			floats.AddScaled(grad, lambda, v)
		}

		copy(prev, w)
		prevB := b
		for j := range w {
			w[j] = v[j] - step*grad[j]
			if lr.penalty == PenaltyL1 {
				w[j] = softThreshold(w[j], step*lambda)
			}
		}
		if lr.fitIntercept {
			b = vb - step*gradB
		}

		tNext := (1 + math.Sqrt(1+4*t*t)) / 2
		momentum := (t - 1) / tNext
		for j := range v {
			v[j] = w[j] + momentum*(w[j]-prev[j])
		}
		vb = b + momentum*(b-prevB)
		t = tNext

		lr.nIter = iter + 1
		change := math.Abs(b - prevB)
		for j := range w {
			change = math.Max(change, math.Abs(w[j]-prev[j]))
		}
		if change < lr.tol {
			converged = true
			break
		}
	}

	lr.coef = w
	lr.intercept = b
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.nIter,
			"maximum number of iterations reached before the coefficients converged"))
	}
}

// lipschitzBound estimates the largest eigenvalue of A^T A by power
// iteration, where A is X with an optional column of ones.
func lipschitzBound(X mat.Matrix, withIntercept bool) float64 {
	r, c := X.Dims()
	cols := c
	if withIntercept {
		cols++
	}
	A := mat.NewDense(r, cols, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			A.Set(i, j, X.At(i, j))
		}
		if withIntercept {
			A.Set(i, c, 1)
		}
	}

	v := mat.NewVecDense(cols, nil)
	for j := 0; j < cols; j++ {
		v.SetVec(j, 1)
	}
	var av, atav mat.VecDense
	eig := 0.0
	for k := 0; k < 50; k++ {
		av.MulVec(A, v)
		atav.MulVec(A.T(), &av)
		norm := mat.Norm(&atav, 2)
		if norm == 0 {
			return 0
		}
		eig = norm / mat.Norm(v, 2)
		v.ScaleVec(1/norm, &atav)
	}
	// power iteration converges from below
	return eig * 1.01
}

func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	default:
		return 0
	}
}

// decision returns the linear predictor for every row
func (lr *LogisticRegression) decision(X mat.Matrix, method string) ([]float64, error) {
	nSamples, nFeatures := X.Dims()
	if err := lr.state.RequireFeatures("LogisticRegression", method, nFeatures); err != nil {
		return nil, err
	}
	z := make([]float64, nSamples)
	for i := range z {
		s := lr.intercept
		for j := 0; j < nFeatures; j++ {
			s += X.At(i, j) * lr.coef[j]
		}
		z[i] = s
	}
	return z, nil
}

// Predict returns the predicted class label for every row
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	z, err := lr.decision(X, "Predict")
	if err != nil {
		return nil, err
	}
	predictions := mat.NewDense(len(z), 1, nil)
	for i, s := range z {
		if sigmoid(s) >= 0.5 {
			predictions.Set(i, 0, lr.classes[1])
		} else {
			predictions.Set(i, 0, lr.classes[0])
		}
	}
	return predictions, nil
}

// PredictProba returns the positive-class probability for every row as an
// n×1 matrix
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	z, err := lr.decision(X, "PredictProba")
	if err != nil {
		return nil, err
	}
	for i, s := range z {
		z[i] = sigmoid(s)
	}
	return mat.NewDense(len(z), 1, z), nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples), nil
}

// Coefficients returns a copy of the fitted weights
func (lr *LogisticRegression) Coefficients() []float64 {
	return append([]float64(nil), lr.coef...)
}

// Intercept returns the fitted intercept
func (lr *LogisticRegression) Intercept() float64 {
	return lr.intercept
}

// Classes returns the negative and positive labels seen during Fit
func (lr *LogisticRegression) Classes() [2]float64 {
	return lr.classes
}

// NIter returns the number of iterations run by the last Fit
func (lr *LogisticRegression) NIter() int {
	return lr.nIter
}

// IsFitted reports whether Fit has completed
func (lr *LogisticRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"random_state":  lr.randomState,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// String returns a short description of the model
func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(penalty=%s, C=%g)", lr.penalty, lr.C)
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	if z < 0 {
		e := math.Exp(z)
		return e / (1 + e)
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

func vec(xs ...float64) *mat.VecDense {
	if len(xs) == 0 {
		return nil
	}
	return mat.NewVecDense(len(xs), xs)
}

func silenceWarnings(t *testing.T) *[]error {
	t.Helper()
	var got []error
	errors.SetWarningHandler(func(w error) { got = append(got, w) })
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
	return &got
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		scores  []float64
		want    float64
		wantErr bool
	}{
		{name: "perfect classifier", yTrue: []float64{0, 0, 0, 1, 1, 1}, scores: []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9}, want: 1.0},
		{name: "worst classifier", yTrue: []float64{0, 0, 0, 1, 1, 1}, scores: []float64{0.9, 0.8, 0.7, 0.3, 0.2, 0.1}, want: 0.0},
		{name: "constant scores", yTrue: []float64{0, 1, 0, 1}, scores: []float64{0.5, 0.5, 0.5, 0.5}, want: 0.5},
		{name: "typical case", yTrue: []float64{0, 0, 1, 1}, scores: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.75},
		{name: "only positives", yTrue: []float64{1, 1, 1, 1}, scores: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.5},
		{name: "only negatives", yTrue: []float64{0, 0, 0, 0}, scores: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.5},
		{name: "non-binary labels", yTrue: []float64{0, 0.5, 1}, scores: []float64{0.1, 0.5, 0.9}, wantErr: true},
		{name: "dimension mismatch", yTrue: []float64{0, 1}, scores: []float64{0.5}, wantErr: true},
		{name: "empty vectors", wantErr: true},
	}

	warnings := silenceWarnings(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(vec(tt.yTrue...), vec(tt.scores...))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
	assert.Len(t, *warnings, 2)
}

func TestROCCurveStartsAtOriginAndEndsAtOne(t *testing.T) {
	c, err := ROCCurve(vec(0, 1, 1, 0, 1), vec(0.2, 0.9, 0.6, 0.6, 0.1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.X[0])
	assert.Equal(t, 0.0, c.Y[0])
	assert.Equal(t, 1.0, c.X[len(c.X)-1])
	assert.Equal(t, 1.0, c.Y[len(c.Y)-1])
	// 0.6 の同点は1つの閾値にまとめられる
	assert.Len(t, c.Thresholds, 5)
}

func TestAveragePrecision(t *testing.T) {
	tests := []struct {
		name   string
		yTrue  []float64
		scores []float64
		want   float64
	}{
		{name: "perfect ranking", yTrue: []float64{1, 1, 1, 0, 0}, scores: []float64{5, 4, 3, 2, 1}, want: 1.0},
		{name: "worst ranking", yTrue: []float64{1, 1, 1, 0, 0}, scores: []float64{1, 2, 3, 4, 5}, want: (1.0/3 + 2.0/4 + 3.0/5) / 3},
		{name: "mixed ranking", yTrue: []float64{1, 0, 1, 0, 1}, scores: []float64{0.9, 0.8, 0.7, 0.6, 0.5}, want: (1.0 + 2.0/3 + 3.0/5) / 3},
		{name: "single relevant", yTrue: []float64{0, 0, 1, 0, 0}, scores: []float64{0.1, 0.2, 0.3, 0.4, 0.5}, want: 1.0 / 3},
		{name: "no relevant items", yTrue: []float64{0, 0, 0, 0}, scores: []float64{1, 2, 3, 4}, want: 0},
	}

	silenceWarnings(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AveragePrecision(vec(tt.yTrue...), vec(tt.scores...))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPrecisionAtK(t *testing.T) {
	yTrue := vec(1, 0, 1, 0, 0, 1)
	scores := vec(0.9, 0.8, 0.7, 0.6, 0.5, 0.4)

	p, err := PrecisionAtK(yTrue, scores, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	p, err = PrecisionAtK(yTrue, scores, 4)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)

	p, err = PrecisionAtK(yTrue, scores, 50)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)

	_, err = PrecisionAtK(yTrue, scores, 0)
	assert.Error(t, err)

	curve, err := PrecisionAtKCurve(yTrue, scores)
	require.NoError(t, err)
	assert.Len(t, curve, 6)
	assert.InDelta(t, 2.0/3, curve[2], 1e-12)
}

package selection

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
)

// synthetic は先頭 informative 列だけがラベルと相関するデータを作る。
// 列 j (< informative) の信号の強さは j が小さいほど大きい。
func synthetic(n, features, informative int, seed int64) (*table.Table, *table.Column) {
	rng := rand.New(rand.NewSource(seed))
	y := make([]float64, n)
	for i := range y {
		if rng.Float64() < 0.4 {
			y[i] = 1
		}
	}
	cols := make([]*table.Column, features)
	for j := 0; j < features; j++ {
		x := make([]float64, n)
		for i := range x {
			x[i] = rng.NormFloat64()
			if j < informative {
				x[i] += float64(informative-j) * y[i]
			}
		}
		cols[j] = table.NewNumeric(fmt.Sprintf("f%03d", j), x)
	}
	return table.MustNew(nil, cols...), table.NewNumeric("label", y)
}

func silence(t *testing.T) {
	t.Helper()
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(nil) })
}

func TestTargetCount(t *testing.T) {
	assert.Equal(t, 10, TargetCount(0.05, 200))
	assert.Equal(t, 1, TargetCount(0.01, 20))
	assert.Equal(t, 7, TargetCount(0.75, 10))
	assert.Equal(t, 5, TargetCount(1, 5))
}

func TestKeptFeatureIsAddedOnTopOfTarget(t *testing.T) {
	X, y := synthetic(300, 200, 10, 1)
	kept := "f150"
	s, err := New(model.Classification, Univariate, WithKeep(kept))
	require.NoError(t, err)

	target := TargetCount(0.05, X.NumCols())
	selected, err := s.Select(context.Background(), X, y, target)
	require.NoError(t, err)

	assert.Greater(t, s.Ranking().Rank(kept), 10)
	assert.Len(t, selected, 11)
	assert.Contains(t, selected, kept)
	for j := 0; j < 10; j++ {
		assert.Contains(t, selected, fmt.Sprintf("f%03d", j))
	}
	assert.Len(t, s.Eliminated(), 189)
	assert.NotContains(t, s.Eliminated(), kept)
}

func TestSelectionIsDeterministic(t *testing.T) {
	silence(t)
	X, y := synthetic(120, 8, 3, 7)
	for _, alg := range []Algorithm{RecursiveElimination, Univariate} {
		t.Run(string(alg), func(t *testing.T) {
			run := func() (*Ranking, []string) {
				s, err := New(model.Classification, alg, WithSeed(DefaultSeed))
				require.NoError(t, err)
				selected, err := s.Select(context.Background(), X, y, 3)
				require.NoError(t, err)
				return s.Ranking(), selected
			}
			r1, s1 := run()
			r2, s2 := run()
			assert.Equal(t, r1, r2)
			assert.Equal(t, s1, s2)
			assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, r1.Ranks)
		})
	}
}

func TestRecursiveEliminationFindsInformativeColumns(t *testing.T) {
	silence(t)
	X, y := synthetic(200, 6, 2, 3)
	s, err := New(model.Classification, RecursiveElimination)
	require.NoError(t, err)
	selected, err := s.Select(context.Background(), X, y, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"f000", "f001"}, selected)
	assert.Equal(t, []string{"f000", "f001"}, s.Ranking().Ordered()[:2])
}

func TestRecursiveEliminationRegressionWithStep(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	n := 150
	cols := make([]*table.Column, 5)
	raw := make([][]float64, 5)
	for j := range raw {
		raw[j] = make([]float64, n)
		for i := range raw[j] {
			raw[j][i] = rng.NormFloat64()
		}
		cols[j] = table.NewNumeric(fmt.Sprintf("x%d", j), raw[j])
	}
	y := make([]float64, n)
	for i := range y {
		y[i] = 5*raw[3][i] - 2*raw[1][i] + 0.1*rng.NormFloat64()
	}
	X := table.MustNew(nil, cols...)

	s, err := New(model.Regression, RecursiveElimination, WithStep(2))
	require.NoError(t, err)
	_, err = s.Select(context.Background(), X, table.NewNumeric("y", y), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Ranking().Rank("x3"))
	assert.Equal(t, 2, s.Ranking().Rank("x1"))
}

func TestTiesFavourEarlierColumns(t *testing.T) {
	same := []float64{1, 2, 3, 4, 5, 6}
	X := table.MustNew(nil,
		table.NewNumeric("a", same),
		table.NewNumeric("b", same),
		table.NewNumeric("c", same),
	)
	y := table.NewNumeric("y", []float64{0, 0, 0, 1, 1, 1})
	s, err := New(model.Classification, Univariate)
	require.NoError(t, err)
	r, err := s.Rank(context.Background(), X, y)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, r.Ranks)
}

func TestTransformReplaysSelectionOntoTestData(t *testing.T) {
	X, y := synthetic(100, 10, 2, 4)
	test, _ := synthetic(40, 10, 2, 5)
	s, err := New(model.Classification, Univariate, WithKeep("f009"))
	require.NoError(t, err)
	_, err = s.Select(context.Background(), X, y, 2)
	require.NoError(t, err)

	trainOut, err := s.Transform(X)
	require.NoError(t, err)
	testOut, err := s.Transform(test)
	require.NoError(t, err)
	assert.Equal(t, trainOut.Names(), testOut.Names())
	assert.Contains(t, testOut.Names(), "f009")

	_, err = s.Transform(test.Drop("f009"))
	var mismatch *errors.ColumnSetMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestSelectorErrors(t *testing.T) {
	_, err := New(model.Problem("ranking"), Univariate)
	assert.Error(t, err)
	_, err = New(model.Classification, Algorithm("lasso"))
	assert.Error(t, err)
	_, err = New(model.Classification, Univariate, WithStep(0))
	assert.Error(t, err)

	X, y := synthetic(20, 3, 1, 1)
	s, err := New(model.Classification, Univariate, WithKeep("ghost"))
	require.NoError(t, err)
	_, err = s.Select(context.Background(), X, y, 1)
	var drift *errors.SchemaDriftError
	assert.True(t, errors.As(err, &drift))

	_, err = s.Transform(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	s, err = New(model.Classification, Univariate)
	require.NoError(t, err)
	_, err = s.Select(context.Background(), X, y, 4)
	assert.Error(t, err)
}

func TestRecursiveEliminationHonoursCancellation(t *testing.T) {
	X, y := synthetic(50, 4, 1, 2)
	s, err := New(model.Classification, RecursiveElimination)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Rank(ctx, X, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectLogsSummary(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	X, y := synthetic(60, 5, 1, 8)
	s, err := New(model.Classification, Univariate, WithLogger(logger))
	require.NoError(t, err)
	_, err = s.Select(context.Background(), X, y, 2)
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("features selected"))
	assert.True(t, logger.ContainsField(log.FeaturesKey, 2))
}

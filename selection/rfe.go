package selection

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/linear"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
	"github.com/YuminosukeSato/medpipe/preprocessing"
	"github.com/YuminosukeSato/medpipe/sklearn/linear_model"
)

// estimator は係数の比較に使う線形モデルを作る
func (s *Selector) estimator() model.LinearModel {
	if s.problem == model.Classification {
		return linear_model.NewLogisticRegression(
			linear_model.WithLRPenalty(linear_model.PenaltyL2),
			linear_model.WithLRRandomState(s.seed),
			linear_model.WithLRMaxIter(s.maxIter),
		)
	}
	return linear.NewLinearRegression(linear.WithAlpha(1))
}

// recursiveElimination は標準化したデータに線形モデルを当てはめ、
// |係数| が最小の列を step 個ずつ除く。最後まで残った列が1位。
func (s *Selector) recursiveElimination(ctx context.Context, X *mat.Dense, y []float64) ([]int, error) {
	nSamples, nFeatures := X.Dims()
	scaled, err := preprocessing.NewStandardScaler().FitTransform(X)
	if err != nil {
		return nil, err
	}
	target := mat.NewDense(nSamples, 1, y)

	remaining := make([]int, nFeatures)
	for j := range remaining {
		remaining[j] = j
	}
	ranks := make([]int, nFeatures)
	next := nFeatures

	for iter := 0; len(remaining) > 1; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		est := s.estimator()
		if err := est.Fit(columns(scaled, remaining), target); err != nil {
			return nil, errors.Wrapf(err, "recursive elimination with %d features", len(remaining))
		}
		coef := est.Coefficients()

		// 重要度の昇順。同点なら後ろの列を先に除く。
		order := make([]int, len(remaining))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			wa, wb := math.Abs(coef[order[a]]), math.Abs(coef[order[b]])
			if wa != wb {
				return wa < wb
			}
			return order[a] > order[b]
		})

		k := s.step
		if k > len(remaining)-1 {
			k = len(remaining) - 1
		}
		dropped := make(map[int]bool, k)
		for _, pos := range order[:k] {
			ranks[remaining[pos]] = next
			next--
			dropped[pos] = true
		}
		kept := remaining[:0]
		for pos, col := range remaining {
			if !dropped[pos] {
				kept = append(kept, col)
			}
		}
		remaining = kept

		s.logger.Debug("elimination step",
			log.IterationKey, iter,
			log.FeaturesKey, len(remaining),
		)
	}
	ranks[remaining[0]] = 1
	return ranks, nil
}

// columns は指定した列だけからなる行列を返す
func columns(X mat.Matrix, idx []int) *mat.Dense {
	r, _ := X.Dims()
	out := mat.NewDense(r, len(idx), nil)
	for j, c := range idx {
		for i := 0; i < r; i++ {
			out.Set(i, j, X.At(i, c))
		}
	}
	return out
}

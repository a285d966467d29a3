package selection

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/core/parallel"
)

// univariate は列ごとのF統計量（分類は一元配置分散分析、回帰は相関）で順位付けする
func (s *Selector) univariate(ctx context.Context, X *mat.Dense, y []float64) ([]int, error) {
	_, nFeatures := X.Dims()
	score := regressionF
	if s.problem == model.Classification {
		score = anovaF
	}
	scores, err := parallel.Map(ctx, nFeatures, 0, func(_ context.Context, j int) (float64, error) {
		col := mat.Col(nil, j, X)
		f := score(col, y)
		// 定数列などで定義できない場合は最下位
		if math.IsNaN(f) {
			f = 0
		}
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return ranksByScore(scores), nil
}

// anovaF はクラス間分散とクラス内分散の比を返す
func anovaF(x, y []float64) float64 {
	groups := make(map[float64][]float64)
	for i, label := range y {
		groups[label] = append(groups[label], x[i])
	}
	k, n := float64(len(groups)), float64(len(x))
	if k < 2 || n <= k {
		return math.NaN()
	}
	grand := stat.Mean(x, nil)
	var between, within float64
	for _, g := range groups {
		m := stat.Mean(g, nil)
		between += float64(len(g)) * (m - grand) * (m - grand)
		for _, v := range g {
			within += (v - m) * (v - m)
		}
	}
	if within == 0 {
		if between == 0 {
			return math.NaN()
		}
		return math.Inf(1)
	}
	return (between / (k - 1)) / (within / (n - k))
}

// regressionF は相関係数 r から r²/(1-r²)·(n-2) を返す
func regressionF(x, y []float64) float64 {
	n := float64(len(x))
	if n < 3 {
		return math.NaN()
	}
	r := stat.Correlation(x, y, nil)
	r2 := r * r
	if r2 >= 1 {
		return math.Inf(1)
	}
	return r2 / (1 - r2) * (n - 2)
}

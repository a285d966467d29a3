package linear

import (
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// episodeMatrix は検査エピソード行列を模したデータを作る。
// 先頭の informative 列だけが目的変数に効き、残りはノイズ列。
func episodeMatrix(episodes, features, informative int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(42, 7))

	X := mat.NewDense(episodes, features, nil)
	y := mat.NewDense(episodes, 1, nil)
	for i := 0; i < episodes; i++ {
		v := 4.0
		for j := 0; j < features; j++ {
			x := rng.NormFloat64()
			X.Set(i, j, x)
			if j < informative {
				v += 0.8 * x
			}
		}
		y.Set(i, 0, v+0.05*rng.NormFloat64())
	}
	return X, y
}

// BenchmarkLinearRegressionFit は行数による並列化の効果を見る（閾値未満は逐次）
func BenchmarkLinearRegressionFit(b *testing.B) {
	cases := []struct {
		name     string
		episodes int
		features int
	}{
		{"sequential_500x40", 500, 40},
		{"parallel_5000x40", 5000, 40},
		{"parallel_20000x200", 20000, 200},
	}
	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			X, y := episodeMatrix(tc.episodes, tc.features, 4)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := NewLinearRegression().Fit(X, y); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkRidgeEliminationRound は再帰的特徴量削減の1ラウンド分の再学習に相当する
func BenchmarkRidgeEliminationRound(b *testing.B) {
	X, y := episodeMatrix(5000, 200, 10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := NewLinearRegression(WithAlpha(1)).Fit(X, y); err != nil {
			b.Fatal(err)
		}
	}
}

package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// checkPair は評価指標の入力ベクトルの長さを検証し、要素数を返す
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var diff mat.VecDense
	diff.SubVec(yTrue, yPred)
	return mat.Dot(&diff, &diff) / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	diff := make([]float64, n)
	floats.SubTo(diff, rawCopy(yTrue), rawCopy(yPred))
	return floats.Norm(diff, 1) / float64(n), nil
}

// R2Score は決定係数（R²）を計算する。
// yTrue が定数の場合は定義できないため UndefinedMetricWarning を出して 0 を返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	truth := rawCopy(yTrue)
	mean := stat.Mean(truth, nil)

	var tss, rss float64
	for i := 0; i < n; i++ {
		tss += (truth[i] - mean) * (truth[i] - mean)
		r := truth[i] - yPred.AtVec(i)
		rss += r * r
	}
	if tss == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("r2", "no variance in y_true", 0))
		return 0, nil
	}
	return 1 - rss/tss, nil
}

// rawCopy はストライドを考慮してベクトルの値を複製する
func rawCopy(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

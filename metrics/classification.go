package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// Curve は閾値ごとの2次元曲線（ROC・PR曲線）を表す
type Curve struct {
	X          []float64
	Y          []float64
	Thresholds []float64
}

// rankedCounts はスコア降順に並べたときの、各異なる閾値での累積TP/FPを返す
func rankedCounts(op string, yTrue, scores *mat.VecDense) (tps, fps, thresholds []float64, nPos, nNeg float64, err error) {
	n, err := checkPair(op, yTrue, scores)
	if err != nil {
		return nil, nil, nil, 0, 0, err
	}
	order := make([]int, n)
	for i := range order {
		y := yTrue.AtVec(i)
		if y != 0 && y != 1 {
			return nil, nil, nil, 0, 0, errors.NewValidationError("y_true", "labels must be binary 0/1", y)
		}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores.AtVec(order[a]) > scores.AtVec(order[b])
	})

	var tp, fp float64
	for i, idx := range order {
		if yTrue.AtVec(idx) == 1 {
			tp++
		} else {
			fp++
		}
		// 同じスコアの行はまとめて1つの閾値として扱う
		if i+1 < n && scores.AtVec(order[i+1]) == scores.AtVec(idx) {
			continue
		}
		tps = append(tps, tp)
		fps = append(fps, fp)
		thresholds = append(thresholds, scores.AtVec(idx))
	}
	return tps, fps, thresholds, tp, fp, nil
}

// ROCCurve はROC曲線（X=偽陽性率、Y=真陽性率）を計算する。
// 陽性または陰性が存在しない場合、対応する軸は0のままになる。
func ROCCurve(yTrue, scores *mat.VecDense) (Curve, error) {
	tps, fps, thresholds, nPos, nNeg, err := rankedCounts("ROCCurve", yTrue, scores)
	if err != nil {
		return Curve{}, err
	}
	c := Curve{
		X:          make([]float64, 0, len(tps)+1),
		Y:          make([]float64, 0, len(tps)+1),
		Thresholds: make([]float64, 0, len(tps)+1),
	}
	c.X = append(c.X, 0)
	c.Y = append(c.Y, 0)
	c.Thresholds = append(c.Thresholds, math.Inf(1))
	for i := range tps {
		c.X = append(c.X, errors.SafeDivide(fps[i], nNeg))
		c.Y = append(c.Y, errors.SafeDivide(tps[i], nPos))
		c.Thresholds = append(c.Thresholds, thresholds[i])
	}
	return c, nil
}

// AUC はROC曲線下面積を台形則で計算する。
// 片方のクラスしか存在しない場合は定義できないため、警告を出して0.5を返す。
func AUC(yTrue, scores *mat.VecDense) (float64, error) {
	c, err := ROCCurve(yTrue, scores)
	if err != nil {
		return 0, err
	}
	last := len(c.X) - 1
	if c.X[last] == 0 || c.Y[last] == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	var area float64
	for i := 1; i < len(c.X); i++ {
		area += (c.X[i] - c.X[i-1]) * (c.Y[i] + c.Y[i-1]) / 2
	}
	return area, nil
}

// PrecisionRecallCurve は適合率-再現率曲線（X=再現率、Y=適合率）を計算する
func PrecisionRecallCurve(yTrue, scores *mat.VecDense) (Curve, error) {
	tps, fps, thresholds, nPos, _, err := rankedCounts("PrecisionRecallCurve", yTrue, scores)
	if err != nil {
		return Curve{}, err
	}
	c := Curve{
		X:          make([]float64, len(tps)),
		Y:          make([]float64, len(tps)),
		Thresholds: thresholds,
	}
	for i := range tps {
		c.X[i] = errors.SafeDivide(tps[i], nPos)
		c.Y[i] = errors.SafeDivide(tps[i], tps[i]+fps[i])
	}
	return c, nil
}

// AveragePrecision は平均適合率 Σ(R_n - R_{n-1}) P_n を計算する。
// 陽性が存在しない場合は警告を出して0を返す。
func AveragePrecision(yTrue, scores *mat.VecDense) (float64, error) {
	c, err := PrecisionRecallCurve(yTrue, scores)
	if err != nil {
		return 0, err
	}
	if c.X[len(c.X)-1] == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("average_precision", "no positive samples in y_true", 0))
		return 0, nil
	}
	var ap, prevRecall float64
	for i := range c.X {
		ap += (c.X[i] - prevRecall) * c.Y[i]
		prevRecall = c.X[i]
	}
	return ap, nil
}

// PrecisionAtK はスコア上位k行に含まれる陽性の割合を計算する。
// k が行数を超える場合は全行を対象にする。同点はもとの行順で並べる。
func PrecisionAtK(yTrue, scores *mat.VecDense, k int) (float64, error) {
	curve, err := PrecisionAtKCurve(yTrue, scores)
	if err != nil {
		return 0, err
	}
	if k <= 0 {
		return 0, errors.NewValidationError("k", "must be positive", k)
	}
	if k > len(curve) {
		k = len(curve)
	}
	return curve[k-1], nil
}

// PrecisionAtKCurve は k = 1..n それぞれの precision@k を返す
func PrecisionAtKCurve(yTrue, scores *mat.VecDense) ([]float64, error) {
	n, err := checkPair("PrecisionAtK", yTrue, scores)
	if err != nil {
		return nil, err
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores.AtVec(order[a]) > scores.AtVec(order[b])
	})
	out := make([]float64, n)
	var hits float64
	for i, idx := range order {
		if yTrue.AtVec(idx) == 1 {
			hits++
		}
		out[i] = hits / float64(i+1)
	}
	return out, nil
}

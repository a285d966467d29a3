package learn

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/linear"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/pkg/log"
	"github.com/YuminosukeSato/medpipe/preprocessing"
	"github.com/YuminosukeSato/medpipe/sklearn/linear_model"
)

// Status は学習の結果
type Status string

const (
	// Trained は学習に成功した
	Trained Status = "TRAINED"
	// InsufficientSamples はクラスごとのサンプル数が足りず学習しなかった
	InsufficientSamples Status = "INSUFFICIENT_SAMPLES"
)

// 対応するアルゴリズム
const (
	L1LogisticRegression = "l1-logistic-regression"
	L2LogisticRegression = "l2-logistic-regression"
	LinearRegression     = "linear-regression"
	RidgeRegression      = "ridge-regression"

	// BifurcatedPrefix を付けた分類アルゴリズムは2つの部分モデルを学習する
	BifurcatedPrefix = "bifurcated-"
)

// DefaultMaxIter は反復法の既定の最大反復回数
const DefaultMaxIter = 1024

// DefaultMinSamplesPerClass は学習に必要なクラスごとの最小サンプル数
const DefaultMinSamplesPerClass = 2

// Hyperparams は1回の学習の設定
type Hyperparams struct {
	Algorithm           string  `koanf:"algorithm"`
	MaxIter             int     `koanf:"max_iter"`
	Seed                int64   `koanf:"seed"`
	C                   float64 `koanf:"c"`
	Alpha               float64 `koanf:"alpha"`
	Bifurcator          string  `koanf:"bifurcator"`
	BifurcationStrategy string  `koanf:"bifurcation_strategy"`
	BifurcationValue    float64 `koanf:"bifurcation_value"`
}

func (hp Hyperparams) withDefaults() Hyperparams {
	if hp.MaxIter <= 0 {
		hp.MaxIter = DefaultMaxIter
	}
	if hp.C <= 0 {
		hp.C = 1
	}
	if hp.Alpha <= 0 {
		hp.Alpha = 1
	}
	return hp
}

// Trainer は既定の学習器
type Trainer struct {
	problem            model.Problem
	minSamplesPerClass int
	logger             log.Logger
}

// TrainerOption は Trainer の設定関数
type TrainerOption func(*Trainer)

// WithMinSamplesPerClass はクラスごとの最小サンプル数を設定する
func WithMinSamplesPerClass(n int) TrainerOption {
	return func(t *Trainer) {
		t.minSamplesPerClass = n
	}
}

// WithLogger はログ出力先を設定する
func WithLogger(l log.Logger) TrainerOption {
	return func(t *Trainer) {
		t.logger = l
	}
}

// NewTrainer は問題の種類に応じた学習器を作成する
func NewTrainer(problem model.Problem, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		problem:            problem,
		minSamplesPerClass: DefaultMinSamplesPerClass,
		logger:             log.GetLoggerWithName("learn"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train は予測器を学習する。サンプル数が足りない場合は予測器なしで
// InsufficientSamples を返し、エラーにはしない。
func (t *Trainer) Train(ctx context.Context, X *table.Table, y *table.Column, hp Hyperparams) (Predictor, Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if y.Len() != X.NumRows() {
		return nil, "", errors.NewDimensionError("Trainer.Train", X.NumRows(), y.Len(), 0)
	}
	if y.Kind == table.Categorical || y.CountMissing() > 0 {
		return nil, "", errors.NewValidationError(y.Name, "outcome must be numeric without missing values", y.Kind.String())
	}
	hp = hp.withDefaults()
	logger := t.logger.With(log.AlgorithmKey, hp.Algorithm)

	var (
		p      Predictor
		status Status
	)
	err := errors.SafeExecute("Trainer.Train", func() error {
		var err error
		p, status, err = t.train(X, y, hp)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	if status == InsufficientSamples {
		logger.Warn("insufficient samples", log.ClassCountsKey, FormatClassCounts(y))
		return nil, status, nil
	}
	logger.Info("predictor trained",
		log.SamplesKey, X.NumRows(),
		log.FeaturesKey, X.NumCols(),
		log.ModelNameKey, p.String(),
	)
	return p, status, nil
}

func (t *Trainer) train(X *table.Table, y *table.Column, hp Hyperparams) (Predictor, Status, error) {
	switch t.problem {
	case model.Classification:
		if strings.HasPrefix(hp.Algorithm, BifurcatedPrefix) {
			return t.trainBifurcated(X, y, hp)
		}
		if !t.enoughSamples(y) {
			return nil, InsufficientSamples, nil
		}
		p, err := t.fitLinear(X, y, hp.Algorithm, hp)
		if err != nil {
			return nil, "", err
		}
		return p, Trained, nil
	case model.Regression:
		if y.Len() < 2 {
			return nil, InsufficientSamples, nil
		}
		p, err := t.fitLinear(X, y, hp.Algorithm, hp)
		if err != nil {
			return nil, "", err
		}
		return p, Trained, nil
	}
	return nil, "", errors.NewValidationError("problem", "must be classification or regression", t.problem)
}

func (t *Trainer) trainBifurcated(X *table.Table, y *table.Column, hp Hyperparams) (Predictor, Status, error) {
	split := Bifurcation{Column: hp.Bifurcator, Strategy: hp.BifurcationStrategy, Value: hp.BifurcationValue}
	if err := split.validate(); err != nil {
		return nil, "", err
	}
	base := strings.TrimPrefix(hp.Algorithm, BifurcatedPrefix)
	match, rest, err := split.partition(X)
	if err != nil {
		return nil, "", err
	}

	yt := table.MustNew(nil, y)
	parts := make([]*LinearPredictor, 2)
	for k, rows := range [][]int{match, rest} {
		subY := yt.Rows(rows).ColumnAt(0)
		if !t.enoughSamples(subY) {
			return nil, InsufficientSamples, nil
		}
		if parts[k], err = t.fitLinear(X.Rows(rows), subY, base, hp); err != nil {
			return nil, "", errors.Wrapf(err, "bifurcated partition %d", k)
		}
	}
	return &BifurcatedPredictor{
		Columns:   X.Names(),
		Algorithm: hp.Algorithm,
		Split:     split,
		Match:     parts[0],
		Rest:      parts[1],
	}, Trained, nil
}

// fitLinear は標準化したデータで学習し、係数を元の尺度に戻す
func (t *Trainer) fitLinear(X *table.Table, y *table.Column, algorithm string, hp Hyperparams) (*LinearPredictor, error) {
	var est model.LinearModel
	switch {
	case t.problem == model.Classification && algorithm == L1LogisticRegression:
		est = linear_model.NewLogisticRegression(
			linear_model.WithLRPenalty(linear_model.PenaltyL1),
			linear_model.WithLRC(hp.C),
			linear_model.WithLRMaxIter(hp.MaxIter),
			linear_model.WithLRRandomState(hp.Seed),
		)
	case t.problem == model.Classification && algorithm == L2LogisticRegression:
		est = linear_model.NewLogisticRegression(
			linear_model.WithLRPenalty(linear_model.PenaltyL2),
			linear_model.WithLRC(hp.C),
			linear_model.WithLRMaxIter(hp.MaxIter),
			linear_model.WithLRRandomState(hp.Seed),
		)
	case t.problem == model.Regression && algorithm == LinearRegression:
		est = linear.NewLinearRegression()
	case t.problem == model.Regression && algorithm == RidgeRegression:
		est = linear.NewLinearRegression(linear.WithAlpha(hp.Alpha))
	default:
		return nil, errors.NewValidationError("algorithm",
			fmt.Sprintf("unsupported for %s", t.problem), algorithm)
	}

	dense, err := X.Dense()
	if err != nil {
		return nil, err
	}
	scaler := preprocessing.NewStandardScaler()
	scaled, err := scaler.FitTransform(dense)
	if err != nil {
		return nil, err
	}
	target := mat.NewDense(y.Len(), 1, y.Floats())
	if err := est.Fit(scaled, target); err != nil {
		return nil, err
	}

	scaledCoef := est.Coefficients()
	coef := make([]float64, len(scaledCoef))
	bias := est.Intercept()
	for j, w := range scaledCoef {
		coef[j] = w / scaler.Scale[j]
		bias -= coef[j] * scaler.Mean[j]
	}
	p := &LinearPredictor{
		Columns:   X.Names(),
		Kind:      t.problem,
		Algorithm: algorithm,
		Coef:      coef,
		Bias:      bias,
	}
	if lr, ok := est.(*linear_model.LogisticRegression); ok {
		p.Classes = lr.Classes()
	}
	return p, nil
}

func (t *Trainer) enoughSamples(y *table.Column) bool {
	counts := ClassCounts(y)
	if len(counts) < 2 {
		return false
	}
	for _, c := range counts {
		if c.Count < t.minSamplesPerClass {
			return false
		}
	}
	return true
}

// ClassCount は1クラスの行数
type ClassCount struct {
	Label string
	Count int
}

// ClassCounts はラベル列のクラスごとの行数をラベル順に返す。
// 数値・真偽値ラベルは 0/1 のように数値で表記し、数値順に並べる。
func ClassCounts(y *table.Column) []ClassCount {
	counts := make(map[string]int)
	order := make(map[string]float64)
	for _, v := range y.Values {
		label := classLabel(v, y.Kind)
		counts[label]++
		order[label] = v.Num
	}
	out := make([]ClassCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, ClassCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if y.Kind != table.Categorical && out[i].Label != "" && out[j].Label != "" {
			return order[out[i].Label] < order[out[j].Label]
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func classLabel(v table.Value, kind table.Kind) string {
	if !v.Valid || kind == table.Categorical {
		return v.Format(kind)
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// FormatClassCounts は "0: 75, 1: 25" の形式で行数を返す
func FormatClassCounts(y *table.Column) string {
	parts := make([]string, 0, 2)
	for _, c := range ClassCounts(y) {
		parts = append(parts, fmt.Sprintf("%s: %d", c.Label, c.Count))
	}
	return strings.Join(parts, ", ")
}

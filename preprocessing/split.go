package preprocessing

import (
	"math"
	"math/rand"
	"sort"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// DefaultTestFraction は既定のテストデータの割合
const DefaultTestFraction = 0.25

// TrainTestSplit は行を seed で決まる乱数順列により学習用とテスト用に分割する。
// テスト行数は ceil(testFraction*n)。順列の先頭 n_test 個の位置がテスト用になる。
// 各部分は元の行順を保つ。
func TrainTestSplit(t *table.Table, testFraction float64, seed int64) (train, test *table.Table, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, errors.NewValidationError("test_fraction", "must be in (0, 1)", testFraction)
	}
	n := t.NumRows()
	nTest := int(math.Ceil(testFraction * float64(n)))
	if n < 2 || nTest >= n {
		return nil, nil, errors.NewModelError("TrainTestSplit",
			"too few rows to split", errors.ErrInsufficientSamples)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	testPos := append([]int(nil), perm[:nTest]...)
	trainPos := append([]int(nil), perm[nTest:]...)
	sort.Ints(testPos)
	sort.Ints(trainPos)
	return t.Rows(trainPos), t.Rows(testPos), nil
}

// Split は特徴量とラベルに分けた学習用・テスト用のデータ
type Split struct {
	XTrain *table.Table
	XTest  *table.Table
	YTrain *table.Column
	YTest  *table.Column
}

// SplitXY は学習用・テスト用の Table から outcome 列をラベルとして取り出す
func SplitXY(train, test *table.Table, outcome string) (*Split, error) {
	yTrain, xTrain, err := train.Pop(outcome)
	if err != nil {
		return nil, err
	}
	yTest, xTest, err := test.Pop(outcome)
	if err != nil {
		return nil, err
	}
	return &Split{XTrain: xTrain, XTest: xTest, YTrain: yTrain, YTest: yTest}, nil
}

// Reassemble は特徴量とラベルを結合し、学習行とテスト行を元の行順に並べ直す
func (s *Split) Reassemble() (*table.Table, error) {
	train, err := s.XTrain.WithColumn(s.YTrain)
	if err != nil {
		return nil, err
	}
	test, err := s.XTest.WithColumn(s.YTest)
	if err != nil {
		return nil, err
	}
	all, err := train.Concat(test)
	if err != nil {
		return nil, err
	}
	return all.SortByIndex(), nil
}

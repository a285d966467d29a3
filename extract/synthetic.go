package extract

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// Column names emitted by Synthetic besides the numbered features.
const (
	SyntheticOutcome = "label"
	SyntheticCurrent = "ord_num_value"
)

// Synthetic generates a clinical-like raw matrix that depends only on the
// seed and the row count. One row is one order episode.
type Synthetic struct {
	// Features is the number of numeric features f01..fNN.
	Features int
	// Informative is how many of the leading features drive the outcome.
	Informative int
	// MissingRate is the share of feature cells left missing.
	MissingRate float64
	// Previous names the previous-measurement column. Empty means
	// "{entity}.-14_0.last".
	Previous string
}

// NewSynthetic returns a generator with 20 features, 4 of them informative.
func NewSynthetic() *Synthetic {
	return &Synthetic{Features: 20, Informative: 4, MissingRate: 0.05}
}

// Produce generates rows episodes for entity.
func (s *Synthetic) Produce(ctx context.Context, entity string, rows int, seed int64) (*table.Table, error) {
	if rows <= 0 {
		return nil, errors.NewValidationError("rows", "must be positive", rows)
	}
	if s.Features < s.Informative || s.Informative < 0 {
		return nil, errors.NewValidationError("informative", "must be within [0, features]", s.Informative)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	uniform := func() float64 {
		return (float64(rng.Int63n(1<<53)) + 0.5) / (1 << 53)
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1}
	age := distuv.Normal{Mu: 62, Sigma: 16}
	lab := distuv.LogNormal{Mu: 1.4, Sigma: 0.25}
	orders := distuv.Exponential{Rate: 0.5}

	slug := strings.Join(strings.Fields(entity), "-")
	previous := s.Previous
	if previous == "" {
		previous = slug + ".-14_0.last"
	}

	ids := make([]float64, rows)
	times := make([]string, rows)
	ages := make([]float64, rows)
	sex := make([]string, rows)
	pre := make([]float64, rows)
	prev := make([]table.Value, rows)
	cur := make([]float64, rows)
	empty := make([]table.Value, rows)
	label := make([]table.Value, rows)
	feats := make([][]table.Value, s.Features)
	for j := range feats {
		feats[j] = make([]table.Value, rows)
	}

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		ids[i] = float64(100000 + i)
		times[i] = base.Add(time.Duration(rng.Int63n(365*24)) * time.Hour).Format("2006-01-02 15:04:05")
		ages[i] = math.Round(math.Max(18, age.Quantile(uniform())))
		if uniform() < 0.5 {
			sex[i] = "F"
		} else {
			sex[i] = "M"
		}
		pre[i] = math.Floor(orders.Quantile(uniform()))

		z := -0.5
		for j := range feats {
			v := normal.Quantile(uniform())
			if j < s.Informative {
				w := 1.5
				if j%2 == 1 {
					w = -1.0
				}
				z += w * v
			}
			if uniform() < s.MissingRate {
				feats[j][i] = table.Missing
				continue
			}
			feats[j][i] = table.Float(v)
		}
		label[i] = table.Bool(uniform() < 1/(1+math.Exp(-z)))

		p := lab.Quantile(uniform())
		cur[i] = p + 0.3*normal.Quantile(uniform())
		if uniform() < 0.1 {
			prev[i] = table.Missing
		} else {
			prev[i] = table.Float(p)
		}
	}

	cols := []*table.Column{
		table.NewNumeric("pat_id", ids),
		table.NewCategorical("order_time", times),
		table.NewNumeric("age", ages),
		table.NewCategorical("sex", sex),
		table.NewNumeric(slug+".pre", pre),
		table.NewColumn(previous, table.Numeric, prev),
		table.NewNumeric(SyntheticCurrent, cur),
		table.NewColumn("unused_lab.last", table.Numeric, empty),
	}
	for j := range feats {
		cols = append(cols, table.NewColumn(fmt.Sprintf("f%02d", j+1), table.Numeric, feats[j]))
	}
	cols = append(cols, table.NewColumn(SyntheticOutcome, table.Boolean, label))
	return table.New(nil, cols...)
}

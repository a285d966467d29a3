package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// Metrics records stage timings, cache lookups and per-algorithm outcomes.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on reg. A nil reg gets a fresh
// registry so that several orchestrators can live in one process.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medpipe",
			Name:      "stage_duration_seconds",
			Help:      "Time spent reaching each pipeline state.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medpipe",
			Name:      "cache_lookups_total",
			Help:      "Matrix cache lookups by checkpoint and result.",
		}, []string{"checkpoint", "result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medpipe",
			Name:      "algorithm_outcomes_total",
			Help:      "Terminal state reached by each trained algorithm.",
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{m.stageDuration, m.cacheLookups, m.outcomes} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register pipeline metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observeStage(s State, since time.Time) {
	m.stageDuration.WithLabelValues(string(s)).Observe(time.Since(since).Seconds())
}

func (m *Metrics) cacheLookup(checkpoint string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(checkpoint, result).Inc()
}

func (m *Metrics) outcome(s State) {
	m.outcomes.WithLabelValues(string(s)).Inc()
}

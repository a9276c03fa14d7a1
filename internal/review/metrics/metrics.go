package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the review workflow. All methods are
// nil-safe so tests can pass a nil receiver.
type Metrics struct {
	// Token validity outcomes seen at the public boundary.
	TokenValidity *prometheus.CounterVec

	// Decisions by action.
	DecisionOutcome *prometheus.CounterVec

	// Rejected submissions against stale snapshots.
	SnapshotMismatch prometheus.Counter

	// Write-path latency, lock to commit.
	SubmitLatency prometheus.Histogram
}

// New creates and registers all review metrics.
func New() *Metrics {
	return &Metrics{
		TokenValidity: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worksign_token_validity_total",
			Help: "Token validity outcomes observed on the public review surface",
		}, []string{"state"}),

		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worksign_decision_outcomes_total",
			Help: "Recorded customer decisions by action",
		}, []string{"action"}),

		SnapshotMismatch: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worksign_snapshot_mismatch_total",
			Help: "Decision submissions rejected because the snapshot hash was stale",
		}),

		SubmitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worksign_submit_duration_seconds",
			Help:    "Duration of the decision write path including the transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) ObserveTokenValidity(state string) {
	if m != nil {
		m.TokenValidity.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) IncrementDecision(action string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncrementSnapshotMismatch() {
	if m != nil {
		m.SnapshotMismatch.Inc()
	}
}

func (m *Metrics) ObserveSubmitLatency(d time.Duration) {
	if m != nil {
		m.SubmitLatency.Observe(d.Seconds())
	}
}

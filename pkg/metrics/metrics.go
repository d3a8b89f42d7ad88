// Package metrics exposes the Prometheus instrumentation for
// clusterver: the active cluster version as a gauge, plus counters and
// histograms describing the reconciler loop's behavior.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveVersion records the active version this node's reconciler
	// last published. It is set only on a successful publish, so it is
	// not updated on nodes that never publish (followers).
	ActiveVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clusterver_active_version",
			Help: "Current cluster-wide active logical version",
		},
	)

	// RaftIsLeader reports whether this node currently holds raft
	// leadership for the controller group (1 = leader, 0 = follower).
	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clusterver_raft_is_leader",
			Help: "Whether this node is the raft leader for the controller group",
		},
	)

	// ReplicateDuration times each consensus-log Replicate call,
	// whether it succeeds, loses leadership, or errors.
	ReplicateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clusterver_replicate_duration_seconds",
			Help:    "Time taken for a consensus-log replicate-and-wait call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconciliationDuration times one full advanceOnce attempt,
	// successful or not.
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clusterver_reconciliation_duration_seconds",
			Help:    "Time taken for one reconciliation attempt",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconciliationOutcomesTotal counts reconciliation attempts by
	// outcome: "advance", "defer", or "transient".
	ReconciliationOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterver_reconciliation_outcomes_total",
			Help: "Total reconciliation attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(ActiveVersion)
	prometheus.MustRegister(RaftIsLeader)
	prometheus.MustRegister(ReplicateDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationOutcomesTotal)
}

// Handler returns the Prometheus HTTP handler for the /metrics
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer starts a new Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram
// vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

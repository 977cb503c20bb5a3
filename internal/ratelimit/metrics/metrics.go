package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAllowed  = "allowed"
	resultRejected = "rejected"
)

type Metrics struct {
	Checks          *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	FallbackChecks  *prometheus.CounterVec
	Rollbacks       prometheus.Counter
	RollbackFailed  prometheus.Counter
	StoreProbes     *prometheus.CounterVec
	StoreErrors     prometheus.Counter
	CounterDuration prometheus.Histogram
}

// New registers the rate limit metrics with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdash_ratelimit_checks_total",
			Help: "Total number of tier checks by outcome",
		}, []string{"tier", "result"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdash_ratelimit_rejections_total",
			Help: "Total number of requests rejected with 429, by denying tier",
		}, []string{"tier"}),
		FallbackChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdash_ratelimit_fallback_total",
			Help: "Total number of tier checks served by the in-memory fallback counter",
		}, []string{"tier"}),
		Rollbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "crmdash_ratelimit_rollbacks_total",
			Help: "Total number of speculative window entries removed after a denial",
		}),
		RollbackFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "crmdash_ratelimit_rollback_failures_total",
			Help: "Total number of compensating removals that failed",
		}),
		StoreProbes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crmdash_ratelimit_store_probe_total",
			Help: "Shared store liveness probes by result",
		}, []string{"result"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "crmdash_ratelimit_store_errors_total",
			Help: "Shared counter operations that failed and fell back",
		}),
		CounterDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crmdash_ratelimit_counter_duration_ms",
			Help:    "Latency of shared window counter round trips in milliseconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}),
	}
}

func (m *Metrics) RecordCheck(tier string, allowed bool) {
	result := resultAllowed
	if !allowed {
		result = resultRejected
	}
	m.Checks.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) RecordRejection(tier string) {
	m.Rejections.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordFallback(tier string) {
	m.FallbackChecks.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordRollback(ok bool) {
	if ok {
		m.Rollbacks.Inc()
		return
	}
	m.RollbackFailed.Inc()
}

func (m *Metrics) RecordProbe(healthy bool) {
	if healthy {
		m.StoreProbes.WithLabelValues("up").Inc()
		return
	}
	m.StoreProbes.WithLabelValues("down").Inc()
}

func (m *Metrics) RecordStoreError() {
	m.StoreErrors.Inc()
}

func (m *Metrics) ObserveCounterDuration(ms float64) {
	m.CounterDuration.Observe(ms)
}

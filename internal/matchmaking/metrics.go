package matchmaking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Abandon reasons for pairing attempts that found a candidate but did not commit.
const (
	AbandonLeftQueue  = "left_queue"
	AbandonHookFailed = "hook_failed"
)

// Metrics groups the matchmaking collectors.
type Metrics struct {
	Matches    prometheus.Counter
	Abandoned  *prometheus.CounterVec
	Evictions  *prometheus.CounterVec
	TickErrors *prometheus.CounterVec
	QueueSize  prometheus.Gauge
	PreMatch   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Matches: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chatroulette",
			Subsystem: "matchmaking",
			Name:      "matches_total",
			Help:      "Committed matches.",
		}),
		Abandoned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatroulette",
			Subsystem: "matchmaking",
			Name:      "attempts_abandoned_total",
			Help:      "Pairing attempts dropped before commit.",
		}, []string{"reason"}),
		Evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatroulette",
			Subsystem: "matchmaking",
			Name:      "evictions_total",
			Help:      "Queue entries removed by the cleanup sweeper.",
		}, []string{"reason"}),
		TickErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatroulette",
			Subsystem: "matchmaking",
			Name:      "tick_errors_total",
			Help:      "Failed or panicked scheduler ticks.",
		}, []string{"loop"}),
		QueueSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatroulette",
			Subsystem: "matchmaking",
			Name:      "queue_size",
			Help:      "Entries in the waiting pool at the last pairing tick.",
		}),
		PreMatch: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatroulette",
			Subsystem: "matchmaking",
			Name:      "pre_match_seconds",
			Help:      "Wall time spent in pre-match hooks.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

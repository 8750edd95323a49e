package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricirt/feedrelay/internal/domain"
	"github.com/ricirt/feedrelay/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	FeedRequests     *prometheus.CounterVec
	ItemsEnqueued    *prometheus.CounterVec
	PublishAttempts  *prometheus.CounterVec
	ItemsForwarded   *prometheus.CounterVec
	ItemsFailed      *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	RateLimitPauses  prometheus.Counter
	RateLimitedUntil prometheus.Gauge
	CycleDuration    *prometheus.HistogramVec
	CyclesSkipped    *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrelay_feed_requests_total",
			Help: "Feed page requests by target and outcome.",
		}, []string{"target", "outcome"}),

		ItemsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrelay_items_enqueued_total",
			Help: "Items admitted to the forwarding queue.",
		}, []string{"target"}),

		PublishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrelay_publish_attempts_total",
			Help: "Publish attempts by outcome.",
		}, []string{"outcome"}),

		ItemsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrelay_items_forwarded_total",
			Help: "Items delivered (or marked delivered in dry-run mode).",
		}, []string{"target"}),

		ItemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrelay_items_failed_total",
			Help: "Items given up on after exhausting their attempts.",
		}, []string{"target"}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedrelay_queue_depth",
			Help: "Current number of items in the forwarding queue.",
		}),

		RateLimitPauses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedrelay_rate_limit_pauses_total",
			Help: "Times the publish upstream paused the whole queue.",
		}),

		RateLimitedUntil: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedrelay_rate_limited_until_seconds",
			Help: "Unix time before which the queue is not drained.",
		}),

		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedrelay_cycle_duration_seconds",
			Help:    "Duration of poll and drain cycles.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cycle"}),

		CyclesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrelay_cycles_skipped_total",
			Help: "Ticks skipped because the previous cycle was still running.",
		}, []string{"cycle"}),
	}

	reg.MustRegister(
		m.FeedRequests,
		m.ItemsEnqueued,
		m.PublishAttempts,
		m.ItemsForwarded,
		m.ItemsFailed,
		m.QueueDepth,
		m.RateLimitPauses,
		m.RateLimitedUntil,
		m.CycleDuration,
		m.CyclesSkipped,
	)

	return m
}

// feedOutcome buckets a feed error into a low-cardinality label.
func feedOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsAuthError(err):
		return "unauthorized"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

// PipelineHooks returns the callbacks the worker package reports through.
// Centralises the prometheus observation calls so the pipeline stays
// import-free.
func (m *Metrics) PipelineHooks() worker.Hooks {
	return worker.Hooks{
		OnFeedRequest: func(target string, err error) {
			m.FeedRequests.WithLabelValues(target, feedOutcome(err)).Inc()
		},
		OnEnqueued: func(target string, n int) {
			m.ItemsEnqueued.WithLabelValues(target).Add(float64(n))
		},
		OnPublish: func(outcome string) {
			m.PublishAttempts.WithLabelValues(outcome).Inc()
		},
		OnForwarded: func(target string) {
			m.ItemsForwarded.WithLabelValues(target).Inc()
		},
		OnFailed: func(target string) {
			m.ItemsFailed.WithLabelValues(target).Inc()
		},
		OnQueueDepth: func(n int) {
			m.QueueDepth.Set(float64(n))
		},
		OnRateLimited: func(until time.Time) {
			m.RateLimitPauses.Inc()
			m.RateLimitedUntil.Set(float64(until.Unix()))
		},
		OnCycle: func(kind string, d time.Duration) {
			m.CycleDuration.WithLabelValues(kind).Observe(d.Seconds())
		},
		OnCycleSkipped: func(kind string) {
			m.CyclesSkipped.WithLabelValues(kind).Inc()
		},
	}
}

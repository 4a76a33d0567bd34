package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink receives pipeline observations. It is injected into the publisher and
// validator services rather than imported as ambient global state, so tests
// can assert on emitted events and alternative backends stay substitutable.
// Counts recorded here are best-effort observability data, not a correctness
// mechanism; the durable usage counter lives in the record store.
type Sink interface {
	PublishResult(result string)
	ValidationResult(result string)
	CacheEvent(event string)
	RateLimitDrop()
}

// Result labels shared by both pipelines.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

// PrometheusSink implements Sink on top of Prometheus counters.
type PrometheusSink struct {
	publishes   *prometheus.CounterVec
	validations *prometheus.CounterVec
	cacheEvents *prometheus.CounterVec
	rateDrops   prometheus.Counter
}

// NewPrometheusSink registers the keygate collectors on the default registry.
// Call it once per process; duplicate registration panics by Prometheus design.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		publishes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_publishes_total",
				Help: "Total number of key publish attempts",
			},
			[]string{"result"},
		),
		validations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_validations_total",
				Help: "Total number of key validation attempts",
			},
			[]string{"result"},
		),
		cacheEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_cache_events_total",
				Help: "Cache lookups by outcome",
			},
			[]string{"event"},
		),
		rateDrops: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "keygate_rate_limited_total",
				Help: "Requests rejected by the sliding-window rate limiter",
			},
		),
	}
}

func (s *PrometheusSink) PublishResult(result string) {
	s.publishes.WithLabelValues(result).Inc()
}

func (s *PrometheusSink) ValidationResult(result string) {
	s.validations.WithLabelValues(result).Inc()
}

func (s *PrometheusSink) CacheEvent(event string) {
	s.cacheEvents.WithLabelValues(event).Inc()
}

func (s *PrometheusSink) RateLimitDrop() {
	s.rateDrops.Inc()
}

// APILatency measures HTTP request latencies; fed by the metrics middleware.
var APILatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "keygate_api_latency_seconds",
		Help:    "API endpoint latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// NopSink discards all observations.
type NopSink struct{}

func (NopSink) PublishResult(string)    {}
func (NopSink) ValidationResult(string) {}
func (NopSink) CacheEvent(string)       {}
func (NopSink) RateLimitDrop()          {}

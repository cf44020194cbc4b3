package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the wallet client.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	backendErrors   *prometheus.CounterVec
	staleResponses  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	operations      *prometheus.CounterVec
}

// Snapshot is a point-in-time read of the client counters.
type Snapshot struct {
	Operations     float64
	Failures       float64
	BackendErrors  float64
	StaleResponses float64
	CacheHits      float64
	CacheMisses    float64
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// client metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_client_request_duration_seconds",
				Help:    "Duration of backend calls by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		backendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_client_backend_errors_total",
				Help: "Total failed backend calls by operation and kind.",
			},
			[]string{"operation", "kind"},
		),
		staleResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_client_stale_responses_total",
				Help: "Responses discarded because a newer request or another session superseded them.",
			},
			[]string{"resource"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_client_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_client_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_client_operations_total",
				Help: "User-initiated operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
	}
}

// RecordRequestDuration records the duration of a backend call.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrBackendError increments the backend error counter.
// kind is one of "network", "rejected", "circuit_open".
func (m *Metrics) IncrBackendError(operation, kind string) {
	m.backendErrors.WithLabelValues(operation, kind).Inc()
}

// IncrStaleResponse counts a discarded response.
func (m *Metrics) IncrStaleResponse(resource string) {
	m.staleResponses.WithLabelValues(resource).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrOperation counts a user-initiated operation.
// outcome is one of "success", "invalid", "failure".
func (m *Metrics) IncrOperation(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// OperationCount returns the current count for one operation/outcome pair.
func (m *Metrics) OperationCount(operation, outcome string) float64 {
	return counterValue(m.operations.WithLabelValues(operation, outcome))
}

// StaleCount returns how many responses were discarded for resource.
func (m *Metrics) StaleCount(resource string) float64 {
	return counterValue(m.staleResponses.WithLabelValues(resource))
}

// GetSnapshot sums every counter across its labels.
func (m *Metrics) GetSnapshot() Snapshot {
	s := Snapshot{
		BackendErrors:  sumCounterVec(m.backendErrors),
		StaleResponses: sumCounterVec(m.staleResponses),
		CacheHits:      sumCounterVec(m.cacheHits),
		CacheMisses:    sumCounterVec(m.cacheMisses),
	}

	ch := make(chan prometheus.Metric)
	go func() {
		m.operations.Collect(ch)
		close(ch)
	}()
	for metric := range ch {
		pb := &dto.Metric{}
		if err := metric.Write(pb); err != nil || pb.Counter == nil {
			continue
		}
		v := pb.Counter.GetValue()
		s.Operations += v
		for _, label := range pb.GetLabel() {
			if label.GetName() == "outcome" && label.GetValue() == "failure" {
				s.Failures += v
			}
		}
	}
	return s
}

// counterValue extracts the current float64 value from a single counter.
func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		pb := &dto.Metric{}
		if err := metric.Write(pb); err != nil || pb.Counter == nil {
			continue
		}
		total += pb.Counter.GetValue()
	}
	return total
}

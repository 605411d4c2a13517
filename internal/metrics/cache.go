package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics counts listing cache traffic. An "error" outcome means the
// cache backend failed and the read fell through to the database.
type CacheMetrics struct {
	operations *prometheus.CounterVec
}

// NewCacheMetrics creates the cache counter family. Returns nil if metrics
// are not enabled.
func NewCacheMetrics() *CacheMetrics {
	if !IsEnabled() {
		return nil
	}
	return &CacheMetrics{
		operations: promauto.With(GetRegistry()).NewCounterVec(prometheus.CounterOpts{
			Name: "skyvault_cache_operations_total",
			Help: "Total cache operations by kind and outcome",
		}, []string{"op", "outcome"}), // op: get, set, del; outcome: hit, miss, ok, error
	}
}

// Observe records one cache operation outcome.
func (m *CacheMetrics) Observe(op, outcome string) {
	if m != nil {
		m.operations.WithLabelValues(op, outcome).Inc()
	}
}

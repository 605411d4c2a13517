package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuditMetrics counts audit trail job outcomes. Every emitted event either
// lands as a processed row or shows up under a failure reason, which is
// what makes the trail auditable end to end.
type AuditMetrics struct {
	enqueued  prometheus.Counter
	processed prometheus.Counter
	failed    *prometheus.CounterVec
}

// NewAuditMetrics creates the audit counter family. Returns nil if metrics
// are not enabled.
func NewAuditMetrics() *AuditMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &AuditMetrics{
		enqueued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "skyvault_audit_jobs_enqueued_total",
			Help: "Total audit jobs submitted to the queue",
		}),
		processed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "skyvault_audit_jobs_processed_total",
			Help: "Total audit jobs successfully written to the database",
		}),
		failed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "skyvault_audit_jobs_failed_total",
			Help: "Total audit job failures by reason",
		}, []string{"reason"}), // validation, integrity, other
	}
}

// ObserveEnqueued records one submitted job.
func (m *AuditMetrics) ObserveEnqueued() {
	if m != nil {
		m.enqueued.Inc()
	}
}

// ObserveProcessed records one job written to the database.
func (m *AuditMetrics) ObserveProcessed() {
	if m != nil {
		m.processed.Inc()
	}
}

// ObserveFailed records one failed job under its reason.
func (m *AuditMetrics) ObserveFailed(reason string) {
	if m != nil {
		m.failed.WithLabelValues(reason).Inc()
	}
}

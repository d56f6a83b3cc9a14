package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	AuditEntriesRecorded *prometheus.CounterVec
	ConsentDecisions     *prometheus.CounterVec
	ExportRequests       *prometheus.CounterVec
	ExportTransitions    *prometheus.CounterVec
	ConsentCacheHits     prometheus.Counter
	ConsentCacheMisses   prometheus.Counter
	OutboxPublished      prometheus.Counter
	OutboxPublishErrors  prometheus.Counter
	RequestDuration      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AuditEntriesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_audit_entries_recorded_total",
			Help: "Total audit entries recorded, by action.",
		}, []string{"action"}),
		ConsentDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_consent_decisions_total",
			Help: "Total consent records written, by status.",
		}, []string{"status"}),
		ExportRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_export_requests_total",
			Help: "Total data export requests created, by type.",
		}, []string{"type"}),
		ExportTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_export_transitions_total",
			Help: "Total export request status transitions, by target status.",
		}, []string{"status"}),
		ConsentCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_consent_cache_hits_total",
			Help: "Consent validity lookups served from cache.",
		}),
		ConsentCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_consent_cache_misses_total",
			Help: "Consent validity lookups that fell through to the store.",
		}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_audit_outbox_published_total",
			Help: "Outbox entries published to the audit topic.",
		}),
		OutboxPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_audit_outbox_publish_errors_total",
			Help: "Failed outbox publish attempts.",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodia_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

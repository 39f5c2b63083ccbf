// Package metrics registers the process-wide Prometheus instruments for
// the transport, CDC, hook, migration, and LRU layers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every instrument the server exposes on its metrics
// endpoint. It is constructed once per process and threaded to every
// component via constructor injection.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	ResponsesTotal *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec

	CDCEventsProcessed *prometheus.CounterVec
	CDCBatchesFlushed  *prometheus.CounterVec
	CDCBytesWritten    *prometheus.CounterVec
	CDCErrors          *prometheus.CounterVec

	HookExecutions    *prometheus.CounterVec
	HookLatency       *prometheus.HistogramVec

	MigrationCompletions *prometheus.CounterVec
	MigrationRollbacks   *prometheus.CounterVec

	LRUHitRate *prometheus.GaugeVec
}

// New constructs and registers every instrument against the default
// Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githost_requests_total",
			Help: "Smart HTTP requests received, by service",
		}, []string{"repo", "service"}),
		ResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githost_responses_total",
			Help: "Smart HTTP responses sent, by service and status",
		}, []string{"repo", "service", "status"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "githost_request_seconds",
			Help:    "Smart HTTP request handling latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"repo", "service"}),

		CDCEventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githost_cdc_events_processed_total",
			Help: "CDC events accepted into the pipeline, by event type",
		}, []string{"event_type"}),
		CDCBatchesFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githost_cdc_batches_flushed_total",
			Help: "CDC batches successfully written to the sink",
		}, []string{"outcome"}),
		CDCBytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githost_cdc_bytes_written_total",
			Help: "Bytes written to the CDC sink after framing and compression",
		}, []string{"sink"}),
		CDCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githost_cdc_errors_total",
			Help: "CDC sink write failures, by stage",
		}, []string{"stage"}),

		HookExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githost_hook_executions_total",
			Help: "Hook invocations, by point and outcome",
		}, []string{"point", "outcome"}),
		HookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "githost_hook_seconds",
			Help:    "Hook execution latency, by point",
			Buckets: prometheus.DefBuckets,
		}, []string{"point"}),

		MigrationCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githost_migration_completions_total",
			Help: "Object migrations completed, by source and target tier",
		}, []string{"src_tier", "dst_tier"}),
		MigrationRollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githost_migration_rollbacks_total",
			Help: "Object migrations rolled back after a verification failure",
		}, []string{"src_tier", "dst_tier"}),

		LRUHitRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "githost_lru_hit_rate",
			Help: "Hot-tier LRU cache hit rate, sampled on demand",
		}, []string{"cache"}),
	}

	prometheus.MustRegister(
		m.RequestsTotal,
		m.ResponsesTotal,
		m.RequestLatency,
		m.CDCEventsProcessed,
		m.CDCBatchesFlushed,
		m.CDCBytesWritten,
		m.CDCErrors,
		m.HookExecutions,
		m.HookLatency,
		m.MigrationCompletions,
		m.MigrationRollbacks,
		m.LRUHitRate,
	)
	return m
}

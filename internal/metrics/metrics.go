// Package metrics registers the Prometheus instrumentation for the
// ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline's Prometheus collectors.
type Metrics struct {
	WebhooksReceived *prometheus.CounterVec
	RunsProcessed    *prometheus.CounterVec
	ItemOutcomes     *prometheus.CounterVec
	ItemErrors       prometheus.Counter
	Anomalies        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
}

// New registers the collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WebhooksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coupon_ingest_webhooks_received_total",
			Help: "Webhook deliveries received, by outcome of the synchronous validation.",
		}, []string{"outcome"}),
		RunsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coupon_ingest_runs_processed_total",
			Help: "Background run processing attempts, by result.",
		}, []string{"result"}),
		ItemOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coupon_ingest_items_total",
			Help: "Processed dataset items, by upsert outcome.",
		}, []string{"outcome"}),
		ItemErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "coupon_ingest_item_errors_total",
			Help: "Dataset items that failed parsing or upserting.",
		}),
		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coupon_ingest_anomalies_total",
			Help: "Result-count anomalies flagged per source page, by kind.",
		}, []string{"kind"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coupon_ingest_run_duration_seconds",
			Help:    "Wall time spent processing one run end to end.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
}

// NewNop returns metrics backed by a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

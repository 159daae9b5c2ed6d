package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	ScrapeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadex",
			Name:      "scrape_requests_total",
			Help:      "Total number of place search requests",
		},
		[]string{"country", "status"},
	)

	ScrapeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leadex",
			Name:      "scrape_request_duration_seconds",
			Help:      "Place search request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"country"},
	)

	ScrapeListingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadex",
			Name:      "scrape_listings_total",
			Help:      "Listings harvested, split by fresh vs seen within the dedup window",
		},
		[]string{"country", "result"}, // "fresh" / "seen"
	)

	DedupeRecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "leadex",
			Name:      "dedupe_records",
			Help:      "Record counts of the last resolution run",
		},
		[]string{"stage"}, // "input" / "canonical" / "skipped"
	)

	DedupePairsComparedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leadex",
			Name:      "dedupe_pairs_compared_total",
			Help:      "Candidate pairs scored across all resolution runs",
		},
	)

	DedupeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "leadex",
			Name:      "dedupe_duration_seconds",
			Help:      "Entity resolution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
	)

	ClassifyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadex",
			Name:      "classify_requests_total",
			Help:      "Total number of classification requests",
		},
		[]string{"model", "status"},
	)

	ClassifyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadex",
			Name:      "classify_errors_total",
			Help:      "Total classification errors",
		},
		[]string{"model", "error_type"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ScrapeRequestsTotal)
	prometheus.MustRegister(ScrapeRequestDuration)
	prometheus.MustRegister(ScrapeListingsTotal)
	prometheus.MustRegister(DedupeRecordsTotal)
	prometheus.MustRegister(DedupePairsComparedTotal)
	prometheus.MustRegister(DedupeDuration)
	prometheus.MustRegister(ClassifyRequestsTotal)
	prometheus.MustRegister(ClassifyErrorsTotal)
	pipelineMetricsRegistered = true
}

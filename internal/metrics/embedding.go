package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsift",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsift",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsift",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsift",
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors by kind",
		},
		[]string{"provider", "model", "kind"},
	)

	EmbeddingDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsift",
			Name:      "embedding_degraded_slots_total",
			Help:      "Batch slots that degraded to a zero vector",
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsift",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result",
		},
		[]string{"result"},
	)

	EmbeddingBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docsift",
			Name:      "embedding_budget_tokens_remaining",
			Help:      "Tokens remaining in the embedding budget",
		},
		[]string{"provider", "window"},
	)
)

// RegisterEmbeddingMetrics registers embedding metrics explicitly (no init()).
func RegisterEmbeddingMetrics() {
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingDegradedTotal,
		EmbeddingCacheTotal,
		EmbeddingBudgetTokensRemaining,
	)
}

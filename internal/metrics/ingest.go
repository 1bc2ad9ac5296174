package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion and retrieval Prometheus metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsift",
			Name:      "ingest_documents_total",
			Help:      "Documents processed by the embedding orchestrator",
		},
		[]string{"outcome"}, // embedded, deduplicated, error
	)

	IngestChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docsift",
			Name:      "ingest_chunks_total",
			Help:      "Chunks stored in the vector index",
		},
	)

	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsift",
			Name:      "retrieval_requests_total",
			Help:      "Hybrid retrieval requests by status",
		},
		[]string{"status"},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docsift",
			Name:      "retrieval_duration_seconds",
			Help:      "Hybrid retrieval duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// RegisterIngestMetrics registers ingestion and retrieval metrics explicitly.
func RegisterIngestMetrics() {
	prometheus.MustRegister(
		IngestDocumentsTotal,
		IngestChunksTotal,
		RetrievalRequestsTotal,
		RetrievalDuration,
	)
}

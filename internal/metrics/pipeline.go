package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding and retrieval pipeline metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "preciorag",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "preciorag",
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors",
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "preciorag",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	QuestionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "preciorag",
			Name:      "questions_total",
			Help:      "Total questions asked",
		},
	)

	AbstentionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "preciorag",
			Name:      "abstentions_total",
			Help:      "Questions answered with the no-data response",
		},
	)

	RecordsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "preciorag",
			Name:      "records_ingested_total",
			Help:      "Catalog records written to the vector store",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingErrorsTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(QuestionsTotal)
	prometheus.MustRegister(AbstentionsTotal)
	prometheus.MustRegister(RecordsIngestedTotal)
	pipelineMetricsRegistered = true
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters the chat and ingestion paths report to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Turns           *prometheus.CounterVec
	TurnLatency     prometheus.Histogram
	IngestedChunks  prometheus.Counter
	IngestedDocs    *prometheus.CounterVec
	SpeechFailures  prometheus.Counter
	RetrievalMisses prometheus.Counter
}

// New registers all metrics on reg. Passing a fresh prometheus.NewRegistry
// keeps tests independent of the global registry.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicerag_chat_turns_total",
			Help: "Chat turns by outcome",
		}, []string{"status"}),
		TurnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicerag_chat_turn_duration_seconds",
			Help:    "Chat turn latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		IngestedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicerag_ingested_chunks_total",
			Help: "Chunks embedded and written to the vector store",
		}),
		IngestedDocs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicerag_ingested_documents_total",
			Help: "Ingest attempts by outcome",
		}, []string{"status"}),
		SpeechFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicerag_speech_failures_total",
			Help: "Replies whose speech synthesis failed",
		}),
		RetrievalMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicerag_retrieval_empty_total",
			Help: "Retrievals that returned no context",
		}),
	}
}

func (m *Metrics) ObserveTurn(status string, cost time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(status).Inc()
	m.TurnLatency.Observe(cost.Seconds())
}

func (m *Metrics) ObserveIngest(status string, chunks int) {
	if m == nil {
		return
	}
	m.IngestedDocs.WithLabelValues(status).Inc()
	if chunks > 0 {
		m.IngestedChunks.Add(float64(chunks))
	}
}

func (m *Metrics) IncSpeechFailure() {
	if m == nil {
		return
	}
	m.SpeechFailures.Inc()
}

func (m *Metrics) IncRetrievalMiss() {
	if m == nil {
		return
	}
	m.RetrievalMisses.Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

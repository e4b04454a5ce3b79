package rag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the assistant.
//
// Metrics exposed (all namespaced with "ragd_"):
//
//  1. questions_total (counter): Questions answered.
//     Labels: status (success/error), cache (hit/miss).
//
//  2. question_latency_seconds (histogram): End-to-end answer latency.
//     Labels: stage (embed/retrieve/chat/total).
//
//  3. documents_indexed_total (counter): Documents processed during
//     indexing. Labels: source (drive/web), outcome (indexed/skipped/failed).
//
//  4. chunks_upserted_total (counter): Chunks written to the vector
//     store.
//
//  5. embedding_cache_events_total (counter): Embedding cache activity.
//     Labels: result (hit/miss).
//
//  6. inflight_requests (gauge): Requests currently being served.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: Prometheus metric types are safe for concurrent use.
type Metrics struct {
	questions       *prometheus.CounterVec
	questionLatency *prometheus.HistogramVec
	documents       *prometheus.CounterVec
	chunksUpserted  prometheus.Counter
	embedCache      *prometheus.CounterVec
	inflight        prometheus.Gauge
}

// NewMetrics creates and registers all assistant metrics with the
// provided registry. A nil registry uses the global default.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &Metrics{}

	m.questions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ragd",
		Name:      "questions_total",
		Help:      "Questions answered, by outcome and answer cache result",
	}, []string{"status", "cache"})

	m.questionLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ragd",
		Name:      "question_latency_seconds",
		Help:      "Answer latency by pipeline stage",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	m.documents = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ragd",
		Name:      "documents_indexed_total",
		Help:      "Documents processed during indexing, by source and outcome",
	}, []string{"source", "outcome"})

	m.chunksUpserted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "ragd",
		Name:      "chunks_upserted_total",
		Help:      "Chunks written to the vector store",
	})

	m.embedCache = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ragd",
		Name:      "embedding_cache_events_total",
		Help:      "Embedding cache lookups, by result",
	}, []string{"result"})

	m.inflight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "ragd",
		Name:      "inflight_requests",
		Help:      "Requests currently being served",
	})

	return m
}

// ObserveQuestion records one answered question.
func (m *Metrics) ObserveQuestion(status, cache string, latency time.Duration) {
	if m == nil {
		return
	}
	m.questions.WithLabelValues(status, cache).Inc()
	m.questionLatency.WithLabelValues("total").Observe(latency.Seconds())
}

// ObserveStage records the latency of a single pipeline stage.
func (m *Metrics) ObserveStage(stage string, latency time.Duration) {
	if m == nil {
		return
	}
	m.questionLatency.WithLabelValues(stage).Observe(latency.Seconds())
}

// CountDocument records one document's indexing outcome.
func (m *Metrics) CountDocument(source, outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(source, outcome).Inc()
}

// CountChunks records chunks written to the vector store.
func (m *Metrics) CountChunks(n int) {
	if m == nil {
		return
	}
	m.chunksUpserted.Add(float64(n))
}

// EmbedCacheHit records an embedding cache hit.
func (m *Metrics) EmbedCacheHit() {
	if m == nil {
		return
	}
	m.embedCache.WithLabelValues("hit").Inc()
}

// EmbedCacheMiss records an embedding cache miss.
func (m *Metrics) EmbedCacheMiss() {
	if m == nil {
		return
	}
	m.embedCache.WithLabelValues("miss").Inc()
}

// RequestStarted increments the in-flight gauge.
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// RequestFinished decrements the in-flight gauge.
func (m *Metrics) RequestFinished() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

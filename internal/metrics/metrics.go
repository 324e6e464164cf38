// Package metrics exposes Prometheus instrumentation for the pipeline.
// Every method is safe on a nil *Metrics so callers never need to guard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsdigest"

// Metrics holds the pipeline collectors.
type Metrics struct {
	articles     *prometheus.CounterVec
	chunks       *prometheus.CounterVec
	compositions *prometheus.CounterVec
	stages       *prometheus.HistogramVec
	gatherer     prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Articles processed by ingestion, by result.",
		}, []string{"result"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks processed by ingestion, by result.",
		}, []string{"result"}),
		compositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compositions_total",
			Help:      "Composition runs by terminal state.",
		}, []string{"state"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of composition stages.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		gatherer: reg,
	}
	reg.MustRegister(m.articles, m.chunks, m.compositions, m.stages)
	return m
}

// ArticleIndexed counts an article that produced at least one indexed chunk.
func (m *Metrics) ArticleIndexed() {
	if m == nil {
		return
	}
	m.articles.WithLabelValues("indexed").Inc()
}

// ArticleSkipped counts an article dropped by ingestion.
func (m *Metrics) ArticleSkipped() {
	if m == nil {
		return
	}
	m.articles.WithLabelValues("skipped").Inc()
}

// ChunksIndexed adds n indexed chunks.
func (m *Metrics) ChunksIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunks.WithLabelValues("indexed").Add(float64(n))
}

// ChunkFailed counts a chunk whose embedding or write failed.
func (m *Metrics) ChunkFailed() {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues("failed").Inc()
}

// Composition counts a run reaching a terminal state.
func (m *Metrics) Composition(state string) {
	if m == nil {
		return
	}
	m.compositions.WithLabelValues(state).Inc()
}

// ObserveStage records how long a stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

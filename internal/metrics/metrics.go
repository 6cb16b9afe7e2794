// Package metrics provides Prometheus instrumentation for the MCP server
// and the retrieval pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelTool   = "tool"
	labelStage  = "stage"
	labelKind   = "kind"
	labelSource = "source"
)

// Metrics tracks tool and pipeline instrumentation. All collectors are
// registered on the injected registerer, so tests can use isolated
// registries.
type Metrics struct {
	toolCalls   *prometheus.CounterVec
	toolErrors  *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec

	pipelineRuns     prometheus.Counter
	pipelineFailures *prometheus.CounterVec
	stageLatency     *prometheus.HistogramVec
	seedsExtracted   prometheus.Histogram
	mergedNodes      prometheus.Histogram
	viewNodes        *prometheus.HistogramVec

	graphQueries    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	activeSessions  prometheus.Gauge
	embeddingCalls  *prometheus.CounterVec
	embeddingErrors *prometheus.CounterVec
}

// New creates the collectors on the given registerer. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magma",
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls, labeled by tool name",
		}, []string{labelTool}),
		toolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magma",
			Name:      "tool_errors_total",
			Help:      "Total number of tool errors, labeled by tool name",
		}, []string{labelTool}),
		toolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "magma",
			Name:      "tool_latency_seconds",
			Help:      "Tool execution latency in seconds, labeled by tool name",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{labelTool}),

		pipelineRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "magma",
			Name:      "pipeline_runs_total",
			Help:      "Total number of retrieval pipeline executions",
		}),
		pipelineFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magma",
			Name:      "pipeline_failures_total",
			Help:      "Pipeline failures labeled by error kind",
		}, []string{labelKind}),
		stageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "magma",
			Name:      "pipeline_stage_latency_seconds",
			Help:      "Pipeline stage latency in seconds (semantic, seeds, expansion, merge)",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{labelStage}),
		seedsExtracted: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "magma",
			Name:      "seeds_extracted",
			Help:      "Entity seeds extracted per pipeline run",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}),
		mergedNodes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "magma",
			Name:      "merged_nodes",
			Help:      "Merged subgraph size per pipeline run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		viewNodes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "magma",
			Name:      "view_nodes",
			Help:      "Nodes contributed per graph view",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{labelSource}),

		graphQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magma",
			Name:      "graph_queries_total",
			Help:      "Graph queries issued, labeled by outcome",
		}, []string{"outcome"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "magma",
			Name:      "query_cache_hits_total",
			Help:      "Query cache hits",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "magma",
			Name:      "query_cache_misses_total",
			Help:      "Query cache misses",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "magma",
			Name:      "active_sessions",
			Help:      "Currently active MCP sessions",
		}),
		embeddingCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magma",
			Name:      "embedding_calls_total",
			Help:      "Embedding provider calls, labeled by model",
		}, []string{"model"}),
		embeddingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magma",
			Name:      "embedding_errors_total",
			Help:      "Embedding provider failures, labeled by error code",
		}, []string{labelKind}),
	}
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(tool string, success bool, latency time.Duration) {
	m.toolCalls.WithLabelValues(tool).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(latency.Seconds())
	if !success {
		m.toolErrors.WithLabelValues(tool).Inc()
	}
}

// RecordPipelineRun records one executor run with its stage timings (in
// milliseconds) and result sizes.
func (m *Metrics) RecordPipelineRun(semanticMs, seedMs, expansionMs, mergeMs int64, seeds, merged int) {
	m.pipelineRuns.Inc()
	m.stageLatency.WithLabelValues("semantic").Observe(float64(semanticMs) / 1000)
	m.stageLatency.WithLabelValues("seeds").Observe(float64(seedMs) / 1000)
	m.stageLatency.WithLabelValues("expansion").Observe(float64(expansionMs) / 1000)
	m.stageLatency.WithLabelValues("merge").Observe(float64(mergeMs) / 1000)
	m.seedsExtracted.Observe(float64(seeds))
	m.mergedNodes.Observe(float64(merged))
}

// RecordPipelineFailure records a fatal pipeline error by kind.
func (m *Metrics) RecordPipelineFailure(kind string) {
	m.pipelineFailures.WithLabelValues(kind).Inc()
}

// RecordViewSize records the node count one graph view contributed.
func (m *Metrics) RecordViewSize(source string, nodes int) {
	m.viewNodes.WithLabelValues(source).Observe(float64(nodes))
}

// RecordGraphQuery records a storage query outcome.
func (m *Metrics) RecordGraphQuery(success bool) {
	if success {
		m.graphQueries.WithLabelValues("ok").Inc()
	} else {
		m.graphQueries.WithLabelValues("error").Inc()
	}
}

// RecordCacheHit and RecordCacheMiss track query cache effectiveness.
func (m *Metrics) RecordCacheHit()  { m.cacheHits.Inc() }
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Inc() }

// SetActiveSessions updates the session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// RecordEmbeddingCall records one embedding provider invocation.
func (m *Metrics) RecordEmbeddingCall(model string, errCode string) {
	m.embeddingCalls.WithLabelValues(model).Inc()
	if errCode != "" {
		m.embeddingErrors.WithLabelValues(errCode).Inc()
	}
}

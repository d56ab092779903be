// Package metrics owns the Prometheus registry for graph building,
// clustering runs and the HTTP API.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metrics for the application
type Registry struct {
	// Ingestion
	RecordsParsedTotal  prometheus.Counter
	RecordsSkippedTotal *prometheus.CounterVec

	// Graph construction
	GraphsBuiltTotal   prometheus.Counter
	GraphBuildDuration prometheus.Histogram
	GraphNodes         *prometheus.GaugeVec
	GraphEdges         *prometheus.GaugeVec

	// Clustering
	ClusteringRunsTotal   *prometheus.CounterVec
	ClusteringDuration    *prometheus.HistogramVec
	ClusteringLevels      *prometheus.GaugeVec
	ClusteringCommunities *prometheus.GaugeVec
	ClusteringModularity  *prometheus.GaugeVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.initIngestMetrics()
	r.initGraphMetrics()
	r.initClusteringMetrics()
	r.initHTTPMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

func (r *Registry) initIngestMetrics() {
	r.RecordsParsedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "mortality_records_parsed_total",
			Help: "Total number of records accepted from input tables",
		},
	)

	r.RecordsSkippedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortality_records_skipped_total",
			Help: "Total number of input rows skipped",
		},
		[]string{"reason"},
	)
}

func (r *Registry) initGraphMetrics() {
	r.GraphsBuiltTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "mortality_graphs_built_total",
			Help: "Total number of similarity graphs built",
		},
	)

	r.GraphBuildDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mortality_graph_build_duration_seconds",
			Help:    "Similarity graph construction time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	r.GraphNodes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mortality_graph_nodes",
			Help: "Number of nodes in the latest graph of each group",
		},
		[]string{"group"},
	)

	r.GraphEdges = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mortality_graph_edges",
			Help: "Number of undirected edges in the latest graph of each group",
		},
		[]string{"group"},
	)
}

func (r *Registry) initClusteringMetrics() {
	r.ClusteringRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortality_clustering_runs_total",
			Help: "Total number of clustering runs",
		},
		[]string{"algorithm", "status"},
	)

	r.ClusteringDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mortality_clustering_duration_seconds",
			Help:    "Clustering time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm"},
	)

	r.ClusteringLevels = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mortality_clustering_levels",
			Help: "Levels (Louvain) or iterations (label propagation) of the latest run per group",
		},
		[]string{"group", "algorithm"},
	)

	r.ClusteringCommunities = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mortality_clustering_communities",
			Help: "Number of communities found in the latest run per group",
		},
		[]string{"group", "algorithm"},
	)

	r.ClusteringModularity = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mortality_clustering_modularity",
			Help: "Modularity of the latest partition per group",
		},
		[]string{"group", "algorithm"},
	)
}

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mortality_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mortality_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
}

// RecordParse records one parsed table
func (r *Registry) RecordParse(records, short, malformed, invalid int) {
	r.RecordsParsedTotal.Add(float64(records))
	r.RecordsSkippedTotal.WithLabelValues("short").Add(float64(short))
	r.RecordsSkippedTotal.WithLabelValues("malformed").Add(float64(malformed))
	r.RecordsSkippedTotal.WithLabelValues("invalid").Add(float64(invalid))
}

// RecordGraph records one built similarity graph
func (r *Registry) RecordGraph(group string, nodes, edges int, duration time.Duration) {
	r.GraphsBuiltTotal.Inc()
	r.GraphBuildDuration.Observe(duration.Seconds())
	r.GraphNodes.WithLabelValues(group).Set(float64(nodes))
	r.GraphEdges.WithLabelValues(group).Set(float64(edges))
}

// RecordClustering records one clustering run
func (r *Registry) RecordClustering(group, algorithm, status string, levels, communities int, modularity float64, duration time.Duration) {
	r.ClusteringRunsTotal.WithLabelValues(algorithm, status).Inc()
	r.ClusteringDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
	if status != "success" {
		return
	}
	r.ClusteringLevels.WithLabelValues(group, algorithm).Set(float64(levels))
	r.ClusteringCommunities.WithLabelValues(group, algorithm).Set(float64(communities))
	r.ClusteringModularity.WithLabelValues(group, algorithm).Set(modularity)
}

// RecordHTTPRequest records an HTTP request
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// WriteTextfile writes the current metrics in the text exposition format,
// for the node exporter textfile collector
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

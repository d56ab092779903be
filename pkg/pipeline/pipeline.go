// Package pipeline runs graph construction and clustering over every
// sub-population of a mortality table, and writes the results.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/mortality-clustering-service/pkg/analysis"
	"github.com/gilchrisn/mortality-clustering-service/pkg/config"
	"github.com/gilchrisn/mortality-clustering-service/pkg/export"
	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/grouping"
	"github.com/gilchrisn/mortality-clustering-service/pkg/labelprop"
	"github.com/gilchrisn/mortality-clustering-service/pkg/louvain"
	"github.com/gilchrisn/mortality-clustering-service/pkg/metrics"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
	"github.com/gilchrisn/mortality-clustering-service/pkg/similarity"
)

// ErrUnknownAlgorithm is returned for an algorithm name other than
// louvain or labelprop
var ErrUnknownAlgorithm = errors.New("unknown clustering algorithm")

// Algorithms lists the accepted algorithm names
var Algorithms = []string{config.AlgorithmLouvain, config.AlgorithmLabelProp}

// Clustering is the outcome of one algorithm run on one graph
type Clustering struct {
	Algorithm      string          `json:"algorithm" yaml:"algorithm"`
	Partition      graph.Partition `json:"partition" yaml:"-"`
	Modularity     float64         `json:"modularity" yaml:"modularity"`
	NumCommunities int             `json:"num_communities" yaml:"num_communities"`
	Levels         int             `json:"levels" yaml:"levels"` // iterations for label propagation
	Converged      bool            `json:"converged" yaml:"converged"`
	StopReason     string          `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	RuntimeMS      int64           `json:"runtime_ms" yaml:"runtime_ms"`

	Louvain   *louvain.Result   `json:"louvain,omitempty" yaml:"louvain,omitempty"`
	LabelProp *labelprop.Result `json:"labelprop,omitempty" yaml:"labelprop,omitempty"`
}

// GroupResult holds everything produced for one sub-population
type GroupResult struct {
	Group      grouping.Group             `json:"group" yaml:"group"`
	Records    int                        `json:"records" yaml:"records"`
	Clustering Clustering                 `json:"clustering" yaml:"clustering"`
	Summary    analysis.ClusteringSummary `json:"summary" yaml:"summary"`
	Files      []string                   `json:"files,omitempty" yaml:"files,omitempty"`

	graph *graph.Graph
}

// Graph returns the similarity graph of the group
func (r *GroupResult) Graph() *graph.Graph {
	return r.graph
}

// Report is the outcome of one pipeline run
type Report struct {
	RunID     string         `json:"run_id" yaml:"run_id"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	Algorithm string         `json:"algorithm" yaml:"algorithm"`
	Records   int            `json:"records" yaml:"records"`
	Groups    []*GroupResult `json:"groups" yaml:"groups"`
	RuntimeMS int64          `json:"runtime_ms" yaml:"runtime_ms"`
}

// Pipeline builds and clusters one graph per group
type Pipeline struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Registry
	builder *similarity.Builder
}

// New creates a pipeline. A nil config uses defaults and a nil registry
// disables metrics.
func New(cfg *config.Config, logger zerolog.Logger, reg *metrics.Registry) *Pipeline {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		builder: similarity.NewBuilder(cfg, logger),
	}
}

// Run partitions records into groups and clusters each one with the
// configured algorithm. Groups whose graph is empty produce empty results.
func (p *Pipeline) Run(ctx context.Context, records []models.Record) (*Report, error) {
	return p.RunWith(ctx, records, p.cfg.Algorithm())
}

// ProgressFunc is told after each finished group
type ProgressFunc func(done, total int, group string)

// RunWith is Run with an explicit algorithm
func (p *Pipeline) RunWith(ctx context.Context, records []models.Record, algorithm string) (*Report, error) {
	return p.RunWithProgress(ctx, records, algorithm, nil)
}

// RunWithProgress is RunWith reporting progress to fn, which may be nil
func (p *Pipeline) RunWithProgress(ctx context.Context, records []models.Record, algorithm string, fn ProgressFunc) (*Report, error) {
	if err := ValidateAlgorithm(algorithm); err != nil {
		return nil, err
	}

	startTime := time.Now()
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: startTime,
		Algorithm: algorithm,
		Records:   len(records),
		Groups:    make([]*GroupResult, 0),
	}
	logger := p.logger.With().Str("run_id", report.RunID).Logger()

	groups := grouping.Partition(records, logger)
	logger.Info().
		Int("records", len(records)).
		Int("groups", len(groups)).
		Str("algorithm", algorithm).
		Msg("Starting pipeline")

	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := p.runGroup(ctx, group, algorithm, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "group %s", group.Name)
		}
		report.Groups = append(report.Groups, result)
		if fn != nil {
			fn(i+1, len(groups), group.Name)
		}
	}

	report.RuntimeMS = time.Since(startTime).Milliseconds()
	logger.Info().
		Int("groups", len(report.Groups)).
		Int64("runtime_ms", report.RuntimeMS).
		Msg("Pipeline completed")

	return report, nil
}

func (p *Pipeline) runGroup(ctx context.Context, group grouping.Group, algorithm string, logger zerolog.Logger) (*GroupResult, error) {
	logger = logger.With().Str("group", group.Name).Logger()

	buildStart := time.Now()
	g, err := p.builder.Build(ctx, group.Records)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build similarity graph")
	}
	if p.metrics != nil {
		p.metrics.RecordGraph(group.Name, g.NumNodes(), g.NumEdges(), time.Since(buildStart))
	}

	clustering, err := p.Cluster(g, algorithm, logger)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordClustering(group.Name, algorithm, status, clustering.Levels,
			clustering.NumCommunities, clustering.Modularity, time.Duration(clustering.RuntimeMS)*time.Millisecond)
	}
	if err != nil {
		return nil, err
	}

	return &GroupResult{
		Group:      group,
		Records:    len(group.Records),
		Clustering: clustering,
		Summary:    analysis.Summarize(g, clustering.Partition, group.Records),
		graph:      g,
	}, nil
}

// Cluster runs the named algorithm on g. An empty graph gives an empty,
// converged clustering rather than an error.
func (p *Pipeline) Cluster(g *graph.Graph, algorithm string, logger zerolog.Logger) (Clustering, error) {
	out := Clustering{Algorithm: algorithm, Partition: graph.Partition{}}

	switch algorithm {
	case config.AlgorithmLouvain:
		result, err := louvain.Run(g, p.cfg, logger)
		if err != nil && !errors.Is(err, louvain.ErrEmptyGraph) {
			return out, errors.Wrap(err, "louvain failed")
		}
		out.Louvain = result
		out.Partition = result.Partition
		out.Modularity = result.Modularity
		out.Levels = result.NumLevels
		out.Converged = result.State == louvain.StateConverged
		out.StopReason = result.StopReason
		out.RuntimeMS = result.Statistics.RuntimeMS

	case config.AlgorithmLabelProp:
		result, err := labelprop.Run(g, p.cfg, logger)
		if err != nil && !errors.Is(err, labelprop.ErrEmptyGraph) {
			return out, errors.Wrap(err, "label propagation failed")
		}
		out.LabelProp = result
		out.Partition = result.Partition
		out.Modularity = result.Modularity
		out.Levels = result.Iterations
		out.Converged = result.Converged
		out.RuntimeMS = result.RuntimeMS

	default:
		return out, errors.Wrapf(ErrUnknownAlgorithm, "%q", algorithm)
	}

	out.NumCommunities = out.Partition.NumCommunities()
	return out, nil
}

// ValidateAlgorithm reports ErrUnknownAlgorithm for unsupported names
func ValidateAlgorithm(algorithm string) error {
	for _, name := range Algorithms {
		if name == algorithm {
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownAlgorithm, "%q", algorithm)
}

// Save writes the enabled outputs of report under the configured output
// directory, in a sub-directory named after the run id. Per-group files go
// into one directory per group. Paths written are recorded on the report.
func (p *Pipeline) Save(report *Report) (string, error) {
	dir := filepath.Join(p.cfg.OutputDir(), report.RunID)

	for _, result := range report.Groups {
		groupDir := filepath.Join(dir, result.Group.Name)
		result.Files = result.Files[:0]

		if p.cfg.WriteGraphs() && result.graph != nil {
			path := filepath.Join(groupDir, "graph.csv")
			if err := export.SaveEdgesCSV(path, result.graph); err != nil {
				return dir, err
			}
			result.Files = append(result.Files, path)
		}
		if p.cfg.WritePartitions() {
			path := filepath.Join(groupDir, "partition.csv")
			if err := export.SavePartitionCSV(path, result.Clustering.Partition); err != nil {
				return dir, err
			}
			result.Files = append(result.Files, path)
		}
		if p.cfg.WriteCommunityGraphs() && result.graph != nil {
			path := filepath.Join(groupDir, "communities.csv")
			coarse := louvain.Aggregate(result.graph, result.Clustering.Partition)
			if err := export.SaveEdgesCSV(path, coarse); err != nil {
				return dir, err
			}
			result.Files = append(result.Files, path)
		}
	}

	if p.cfg.WriteReport() {
		if err := export.SaveReport(filepath.Join(dir, "report.yaml"), report); err != nil {
			return dir, err
		}
	}

	p.logger.Info().
		Str("run_id", report.RunID).
		Str("dir", dir).
		Msg("Results written")

	return dir, nil
}

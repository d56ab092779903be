// Package labelprop implements synchronous weighted label propagation as a
// lighter alternative to Louvain.
//
// Every node starts with its own label. In each iteration all nodes adopt,
// at once, the label carrying the most incident weight. A node also votes
// for its current label with the weight of its strongest edge, which stops
// two-node graphs from swapping labels forever. Ties go to the lowest label.
package labelprop

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/mortality-clustering-service/pkg/config"
	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/louvain"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// ErrEmptyGraph is returned by Run for a graph without nodes
var ErrEmptyGraph = louvain.ErrEmptyGraph

// Result represents the algorithm output
type Result struct {
	Partition  graph.Partition `json:"partition" yaml:"-"`
	Modularity float64         `json:"modularity" yaml:"modularity"`
	Iterations int             `json:"iterations" yaml:"iterations"`
	Converged  bool            `json:"converged" yaml:"converged"`
	Changes    []int           `json:"changes" yaml:"changes"` // relabeled nodes per iteration
	RuntimeMS  int64           `json:"runtime_ms" yaml:"runtime_ms"`
}

type neighbor struct {
	index  int
	weight float64
}

// Detect runs label propagation with default settings
func Detect(g *graph.Graph) graph.Partition {
	result, _ := Run(g, nil, zerolog.Nop())
	return result.Partition
}

// Run propagates labels until no node changes or the iteration ceiling is
// hit. A nil config uses defaults.
func Run(g *graph.Graph, cfg *config.Config, logger zerolog.Logger) (*Result, error) {
	startTime := time.Now()
	if cfg == nil {
		cfg = config.NewConfig()
	}

	result := &Result{Partition: graph.Partition{}, Changes: make([]int, 0)}
	if g == nil || g.NumNodes() == 0 {
		result.Converged = true
		return result, ErrEmptyGraph
	}

	ids := g.SortedNodes()
	index := make(map[models.NodeID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	adjacency := make([][]neighbor, len(ids))
	selfWeight := make([]float64, len(ids))
	for i, id := range ids {
		for _, e := range g.Neighbors(id) {
			j, exists := index[e.To]
			if !exists {
				continue
			}
			adjacency[i] = append(adjacency[i], neighbor{index: j, weight: e.Weight})
			if e.Weight > selfWeight[i] {
				selfWeight[i] = e.Weight
			}
		}
	}

	current := make([]int, len(ids))
	next := make([]int, len(ids))
	for i := range current {
		current[i] = i
	}

	maxIterations := cfg.LabelPropMaxIterations()
	logger.Info().
		Int("nodes", len(ids)).
		Int("max_iterations", maxIterations).
		Msg("Starting label propagation")

	votes := make(map[int]float64)
	for result.Iterations < maxIterations {
		result.Iterations++
		changed := 0

		for i := range current {
			for label := range votes {
				delete(votes, label)
			}
			votes[current[i]] = selfWeight[i]
			for _, n := range adjacency[i] {
				votes[current[n.index]] += n.weight
			}

			best, bestWeight := current[i], -1.0
			for label, weight := range votes {
				if weight > bestWeight || (weight == bestWeight && label < best) {
					best, bestWeight = label, weight
				}
			}

			next[i] = best
			if best != current[i] {
				changed++
			}
		}

		current, next = next, current
		result.Changes = append(result.Changes, changed)

		logger.Debug().
			Int("iteration", result.Iterations).
			Int("changed", changed).
			Msg("Label propagation iteration")

		if changed == 0 {
			result.Converged = true
			break
		}
	}

	p := make(graph.Partition, len(ids))
	for i, id := range ids {
		p[id] = current[i]
	}
	result.Partition = p.Normalize()
	result.Modularity = louvain.Modularity(g, result.Partition)
	result.RuntimeMS = time.Since(startTime).Milliseconds()

	if !result.Converged {
		logger.Warn().Int("iterations", result.Iterations).Msg("Label propagation hit the iteration ceiling")
	}
	logger.Info().
		Int("iterations", result.Iterations).
		Int("communities", result.Partition.NumCommunities()).
		Float64("modularity", result.Modularity).
		Bool("converged", result.Converged).
		Msg("Label propagation completed")

	return result, nil
}

// Package louvain implements multi-level modularity optimization (the
// Louvain method) over similarity graphs.
//
// Each level runs local-move passes to a local optimum, then collapses the
// communities into a coarser graph and repeats. Aggregation drops
// intra-community edges instead of turning them into self-loops, so level
// graphs beyond the first only carry cross-community weight. Because of
// that, a level is only accepted when the composed partition raises the
// modularity of the original graph by at least the configured epsilon.
package louvain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/mortality-clustering-service/pkg/config"
	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// ErrEmptyGraph is returned by Run for a graph without nodes
var ErrEmptyGraph = errors.New("graph has no nodes")

// State is the driver's lifecycle state
type State int

const (
	StateInitializing State = iota
	StateOptimizing
	StateConverged
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateOptimizing:
		return "optimizing"
	case StateConverged:
		return "converged"
	default:
		return "unknown"
	}
}

// Reasons the driver stops
const (
	StopNoMoves      = "no_moves"
	StopBelowEpsilon = "below_epsilon"
	StopMaxLevels    = "max_levels"
	StopEmptyGraph   = "empty_graph"
)

// Result represents the algorithm output
type Result struct {
	Partition  graph.Partition `json:"partition" yaml:"-"`
	Modularity float64         `json:"modularity" yaml:"modularity"`
	NumLevels  int             `json:"num_levels" yaml:"num_levels"`
	State      State           `json:"-" yaml:"-"`
	StopReason string          `json:"stop_reason" yaml:"stop_reason"`
	Levels     []LevelInfo     `json:"levels" yaml:"levels"`
	Statistics Statistics      `json:"statistics" yaml:"statistics"`
}

// LevelInfo contains information about each hierarchical level
type LevelInfo struct {
	Level             int     `json:"level" yaml:"level"`
	NumNodes          int     `json:"num_nodes" yaml:"num_nodes"`
	NumCommunities    int     `json:"num_communities" yaml:"num_communities"`
	Passes            int     `json:"passes" yaml:"passes"`
	Moves             int     `json:"moves" yaml:"moves"`
	InitialModularity float64 `json:"initial_modularity" yaml:"initial_modularity"` // on this level's graph
	FinalModularity   float64 `json:"final_modularity" yaml:"final_modularity"`     // on this level's graph
	BaseModularity    float64 `json:"base_modularity" yaml:"base_modularity"`       // composed partition on the input graph
	Accepted          bool    `json:"accepted" yaml:"accepted"`
	RuntimeMS         int64   `json:"runtime_ms" yaml:"runtime_ms"`

	// Communities maps original node ids to their community at this level.
	// Only set for accepted levels.
	Communities graph.Partition `json:"communities,omitempty" yaml:"-"`
}

// Statistics contains algorithm performance metrics
type Statistics struct {
	TotalPasses   int   `json:"total_passes" yaml:"total_passes"`
	TotalMoves    int   `json:"total_moves" yaml:"total_moves"`
	DanglingEdges int   `json:"dangling_edges" yaml:"dangling_edges"`
	RuntimeMS     int64 `json:"runtime_ms" yaml:"runtime_ms"`
}

// Detect runs Louvain with default settings and returns the flat mapping
// from node id to community id. An empty graph gives an empty mapping.
func Detect(g *graph.Graph) graph.Partition {
	result, _ := Run(g, nil, zerolog.Nop())
	return result.Partition
}

// Run executes the complete Louvain algorithm. A nil config uses defaults.
// For an empty graph it returns an empty result together with ErrEmptyGraph.
func Run(g *graph.Graph, cfg *config.Config, logger zerolog.Logger) (*Result, error) {
	startTime := time.Now()
	if cfg == nil {
		cfg = config.NewConfig()
	}

	result := &Result{
		Partition:  graph.Partition{},
		State:      StateInitializing,
		Levels:     make([]LevelInfo, 0),
		Statistics: Statistics{},
	}

	if g == nil || g.NumNodes() == 0 {
		result.State = StateConverged
		result.StopReason = StopEmptyGraph
		return result, ErrEmptyGraph
	}

	maxLevels := cfg.MaxLevels()
	maxPasses := cfg.MaxPasses()
	epsilon := cfg.MinModularityGain()

	base, ids, dangling := fromGraph(g)
	result.Statistics.DanglingEdges = dangling
	if dangling > 0 {
		logger.Debug().Int("dangling", dangling).Msg("Ignoring edges to missing neighbors")
	}

	logger.Info().
		Int("nodes", base.NumNodes).
		Float64("total_weight", base.TotalWeight).
		Msg("Starting Louvain algorithm")

	// chain[i] = node of the current level that original node i belongs to
	chain := make([]int, base.NumNodes)
	for i := range chain {
		chain[i] = i
	}
	bestModularity := levelModularity(base, chain)

	current := base
	for level := 0; ; level++ {
		if level >= maxLevels {
			result.StopReason = StopMaxLevels
			break
		}
		result.State = StateOptimizing
		levelStart := time.Now()

		comm := NewCommunity(current)
		initialMod := levelModularity(current, comm.NodeToCommunity)
		passes, moves := newOptimizer(current, comm).run(maxPasses)
		finalMod := levelModularity(current, comm.NodeToCommunity)

		labels, numCommunities := comm.Relabel()
		candidate := make([]int, len(chain))
		for i, node := range chain {
			candidate[i] = labels[node]
		}
		candidateMod := levelModularity(base, candidate)

		info := LevelInfo{
			Level:             level,
			NumNodes:          current.NumNodes,
			NumCommunities:    numCommunities,
			Passes:            passes,
			Moves:             moves,
			InitialModularity: initialMod,
			FinalModularity:   finalMod,
			BaseModularity:    candidateMod,
		}
		result.Statistics.TotalPasses += passes
		result.Statistics.TotalMoves += moves

		logger.Debug().
			Int("level", level).
			Int("nodes", current.NumNodes).
			Int("passes", passes).
			Int("moves", moves).
			Float64("initial_modularity", initialMod).
			Float64("final_modularity", finalMod).
			Float64("base_modularity", candidateMod).
			Msg("Level optimized")

		if moves == 0 {
			result.StopReason = StopNoMoves
			info.RuntimeMS = time.Since(levelStart).Milliseconds()
			result.Levels = append(result.Levels, info)
			break
		}
		if candidateMod-bestModularity < epsilon {
			result.StopReason = StopBelowEpsilon
			info.RuntimeMS = time.Since(levelStart).Milliseconds()
			result.Levels = append(result.Levels, info)
			break
		}

		chain = candidate
		bestModularity = candidateMod
		info.Accepted = true
		info.Communities = flatten(ids, chain)
		info.RuntimeMS = time.Since(levelStart).Milliseconds()
		result.Levels = append(result.Levels, info)

		current = aggregate(current, labels, numCommunities)
	}

	result.State = StateConverged
	result.Partition = flatten(ids, chain)
	result.Modularity = Modularity(g, result.Partition)
	result.NumLevels = len(result.Levels)
	result.Statistics.RuntimeMS = time.Since(startTime).Milliseconds()

	logger.Info().
		Int("levels", result.NumLevels).
		Int("communities", result.Partition.NumCommunities()).
		Float64("final_modularity", result.Modularity).
		Str("stop_reason", result.StopReason).
		Int64("runtime_ms", result.Statistics.RuntimeMS).
		Msg("Louvain algorithm completed")

	return result, nil
}

// flatten resolves the chain into a node id partition with contiguous
// community ids in sorted node order
func flatten(ids []models.NodeID, chain []int) graph.Partition {
	p := make(graph.Partition, len(ids))
	for i, id := range ids {
		p[id] = chain[i]
	}
	return p.Normalize()
}

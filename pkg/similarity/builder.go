// Package similarity turns mortality records into a weighted similarity graph.
//
// Two records are linked when they share a label, period or age-bracket code;
// the edge weight compares their estimates relative to the larger one:
//
//	hi = max(a, b)
//	w  = 1 - |a/hi - b/hi|
//
// Comparison is pairwise, O(n²) in the number of records. That is fine for
// the low thousands of rows a single sub-population holds and is the scaling
// limit of this package.
package similarity

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gilchrisn/mortality-clustering-service/pkg/config"
	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// Weight returns the similarity of two estimates. Both must be positive.
func Weight(a, b float64) float64 {
	hi := math.Max(a, b)
	return 1 - math.Abs(a/hi-b/hi)
}

// BuildSimilarityGraph builds the graph sequentially. Records without a
// finite non-zero estimate are left out entirely, and of several records
// canonicalizing to the same node id only the first is kept. It never
// returns nil.
func BuildSimilarityGraph(records []models.Record) *graph.Graph {
	g, err := NewBuilder(nil, zerolog.Nop()).Build(context.Background(), records)
	if err != nil {
		return graph.New()
	}
	return g
}

// Builder builds similarity graphs, optionally evaluating pairs in parallel.
type Builder struct {
	parallel   bool
	numWorkers int
	chunkSize  int
	logger     zerolog.Logger
}

// NewBuilder creates a builder. A nil config gives a sequential builder.
func NewBuilder(cfg *config.Config, logger zerolog.Logger) *Builder {
	b := &Builder{numWorkers: 1, chunkSize: 64, logger: logger}
	if cfg != nil {
		b.parallel = cfg.SimilarityParallel()
		b.numWorkers = cfg.NumWorkers()
		b.chunkSize = cfg.ChunkSize()
	}
	if b.numWorkers <= 0 {
		b.numWorkers = 1
	}
	if b.chunkSize <= 0 {
		b.chunkSize = 64
	}
	return b
}

type pairEdge struct {
	u, v   models.NodeID
	weight float64
}

// Build converts records into a graph. The result is identical whether or
// not pairs are evaluated in parallel: candidate edges are gathered per
// chunk of rows and merged in row order.
func (b *Builder) Build(ctx context.Context, records []models.Record) (*graph.Graph, error) {
	kept := make([]models.Record, 0, len(records))
	seen := make(map[models.NodeID]bool, len(records))
	duplicates := 0
	for _, r := range records {
		if !r.HasEstimate() {
			continue
		}
		id := r.ID()
		if seen[id] {
			duplicates++
			continue
		}
		seen[id] = true
		kept = append(kept, r)
	}
	if duplicates > 0 {
		b.logger.Warn().Int("duplicates", duplicates).Msg("Records with duplicate node ids skipped")
	}

	g := graph.New()
	for _, r := range kept {
		g.AddNode(r.ID())
	}

	var chunks [][]pairEdge
	if b.parallel && b.numWorkers > 1 && len(kept) > b.chunkSize {
		var err error
		chunks, err = b.evaluateParallel(ctx, kept)
		if err != nil {
			return nil, err
		}
	} else {
		chunks = [][]pairEdge{evaluateRows(kept, 0, len(kept))}
	}

	for _, chunk := range chunks {
		for _, e := range chunk {
			if err := g.AddEdge(e.u, e.v, e.weight); err != nil {
				return nil, err
			}
		}
	}

	b.logger.Debug().
		Int("records", len(records)).
		Int("kept", len(kept)).
		Int("nodes", g.NumNodes()).
		Int("edges", g.NumEdges()).
		Msg("Similarity graph built")

	return g, nil
}

func (b *Builder) evaluateParallel(ctx context.Context, records []models.Record) ([][]pairEdge, error) {
	numChunks := (len(records) + b.chunkSize - 1) / b.chunkSize
	chunks := make([][]pairEdge, numChunks)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.numWorkers)

	for c := 0; c < numChunks; c++ {
		c := c
		start := c * b.chunkSize
		end := min(start+b.chunkSize, len(records))
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			chunks[c] = evaluateRows(records, start, end)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// evaluateRows compares every row in [start, end) with all later rows
func evaluateRows(records []models.Record, start, end int) []pairEdge {
	edges := make([]pairEdge, 0)
	for i := start; i < end; i++ {
		a := records[i]
		for j := i + 1; j < len(records); j++ {
			other := records[j]
			if !a.SharesCode(other) {
				continue
			}
			w := Weight(a.Estimate, other.Estimate)
			if !(w >= 0) {
				continue
			}
			edges = append(edges, pairEdge{u: a.ID(), v: other.ID(), weight: w})
		}
	}
	return edges
}

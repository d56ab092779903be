package louvain

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/community"

	"github.com/gilchrisn/mortality-clustering-service/pkg/config"
	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

type weightedEdge struct {
	From, To models.NodeID
	Weight   float64
}

func buildGraph(t testing.TB, edges []weightedEdge, isolated ...models.NodeID) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, id := range isolated {
		g.AddNode(id)
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e.From, e.To, e.Weight))
	}
	return g
}

func twoTriangles(t testing.TB) *graph.Graph {
	return buildGraph(t, []weightedEdge{
		{"a", "b", 1}, {"b", "c", 1}, {"c", "a", 1},
		{"d", "e", 1}, {"e", "f", 1}, {"f", "d", 1},
	})
}

func bridgedTriangles(t testing.TB) *graph.Graph {
	g := twoTriangles(t)
	require.NoError(t, g.AddEdge("c", "d", 1))
	return g
}

// triangle of the three-record example: 20.2, 19.9 and 20.9 sharing a label
func exampleTriangle(t testing.TB) *graph.Graph {
	w := func(a, b float64) float64 {
		hi := math.Max(a, b)
		return 1 - math.Abs(a/hi-b/hi)
	}
	return buildGraph(t, []weightedEdge{
		{"4.13-12-0", "4.13-13-0", w(20.2, 19.9)},
		{"4.13-12-0", "4.13-14-0", w(20.2, 20.9)},
		{"4.13-13-0", "4.13-14-0", w(19.9, 20.9)},
	})
}

func allInOne(g *graph.Graph) graph.Partition {
	p := graph.Partition{}
	for _, id := range g.Nodes() {
		p[id] = 0
	}
	return p
}

func TestModularityHalvesTotalWeight(t *testing.T) {
	// two disjoint edges, each its own community
	g := buildGraph(t, []weightedEdge{{"a", "b", 1}, {"c", "d", 1}})
	p := graph.Partition{"a": 0, "b": 0, "c": 1, "d": 1}

	require.InDelta(t, 2.0, g.TotalWeight(), 1e-12)
	// m = 2: 2 * (2/4 - (2/4)^2) = 0.5. Using the doubled total gives 0.375.
	assert.InDelta(t, 0.5, Modularity(g, p), 1e-12)
}

func TestModularityDegenerateGraphs(t *testing.T) {
	assert.Equal(t, 0.0, Modularity(nil, nil))
	assert.Equal(t, 0.0, Modularity(graph.New(), graph.Partition{}))

	single := graph.New()
	single.AddNode("only")
	assert.Equal(t, 0.0, Modularity(single, graph.Partition{"only": 0}))
}

func TestModularityTwoTriangles(t *testing.T) {
	g := twoTriangles(t)

	split := graph.Partition{"a": 0, "b": 0, "c": 0, "d": 1, "e": 1, "f": 1}
	assert.InDelta(t, 0.5, Modularity(g, split), 1e-12)
	assert.InDelta(t, 0.0, Modularity(g, allInOne(g)), 1e-12)
	assert.InDelta(t, -1.0/6.0, Modularity(g, graph.Singletons(g)), 1e-12)
}

func TestModularityTreatsMissingNeighborsAsZero(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddHalfEdge("a", "b", 1))
	require.NoError(t, g.AddHalfEdge("b", "a", 1))
	require.NoError(t, g.AddHalfEdge("a", "ghost", 5))

	clean := buildGraph(t, []weightedEdge{{"a", "b", 1}})
	p := graph.Partition{"a": 0, "b": 1}

	assert.InDelta(t, Modularity(clean, p), Modularity(g, p), 1e-12)
}

func TestModularityUnassignedNodesAreSingletons(t *testing.T) {
	g := twoTriangles(t)
	partial := graph.Partition{"a": 0, "b": 0, "c": 0}
	full := graph.Partition{"a": 0, "b": 0, "c": 0, "d": 1, "e": 2, "f": 3}

	assert.InDelta(t, Modularity(g, full), Modularity(g, partial), 1e-12)
}

func TestModularityMatchesGonum(t *testing.T) {
	g := bridgedTriangles(t)
	gg, index := graph.ToGonum(g)

	for _, p := range []graph.Partition{
		graph.Singletons(g),
		allInOne(g),
		{"a": 0, "b": 0, "c": 0, "d": 1, "e": 1, "f": 1},
		{"a": 0, "b": 1, "c": 0, "d": 1, "e": 2, "f": 2},
	} {
		want := community.Q(gg, graph.GonumCommunities(p, index), 1)
		assert.InDelta(t, want, Modularity(g, p), 1e-12)
	}
}

func TestRunTwoDisconnectedTriangles(t *testing.T) {
	g := twoTriangles(t)

	result, err := Run(g, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, graph.Partition{"a": 0, "b": 0, "c": 0, "d": 1, "e": 1, "f": 1}, result.Partition)
	assert.Equal(t, 2, result.Partition.NumCommunities())
	assert.Greater(t, result.Modularity, Modularity(g, allInOne(g)))
	assert.InDelta(t, 0.5, result.Modularity, 1e-12)
	assert.Equal(t, StateConverged, result.State)
	assert.Equal(t, StopNoMoves, result.StopReason)
}

func TestRunRejectsLevelThatLowersBaseModularity(t *testing.T) {
	// Without self-loops the level-1 graph is a single edge whose endpoints
	// merge, which would collapse both triangles into one community.
	g := bridgedTriangles(t)

	result, err := Run(g, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, graph.Partition{"a": 0, "b": 0, "c": 0, "d": 1, "e": 1, "f": 1}, result.Partition)
	assert.Equal(t, StopBelowEpsilon, result.StopReason)
	require.Len(t, result.Levels, 2)
	assert.True(t, result.Levels[0].Accepted)
	assert.False(t, result.Levels[1].Accepted)
	assert.InDelta(t, 5.0/14.0, result.Modularity, 1e-12)
}

func TestRunExampleTriangle(t *testing.T) {
	g := exampleTriangle(t)

	result, err := Run(g, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Partition.NumCommunities())
	assert.Len(t, result.Partition, 3)
	// a dense triangle gains over its singletons, and a one-community
	// partition of a connected graph scores exactly zero. The per-edge form
	// that would score it positive also breaks the two-triangle ordering.
	assert.Greater(t, result.Modularity, Modularity(g, graph.Singletons(g)))
	assert.InDelta(t, 0.0, result.Modularity, 1e-12)
}

func TestRunSingleNode(t *testing.T) {
	g := graph.New()
	g.AddNode("lonely")

	result, err := Run(g, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, graph.Partition{"lonely": 0}, result.Partition)
	assert.Equal(t, 0.0, result.Modularity)
	assert.Equal(t, 0.0, Modularity(g, result.Partition))
}

func TestRunEmptyGraph(t *testing.T) {
	result, err := Run(graph.New(), nil, zerolog.Nop())

	assert.True(t, errors.Is(err, ErrEmptyGraph))
	require.NotNil(t, result)
	assert.Empty(t, result.Partition)
	assert.Equal(t, StopEmptyGraph, result.StopReason)

	assert.Empty(t, Detect(graph.New()))
	assert.Empty(t, Detect(nil))
}

func TestRunIsolatedNodesKeepOwnCommunities(t *testing.T) {
	g := buildGraph(t, []weightedEdge{{"a", "b", 1}}, "x", "y")

	p := Detect(g)

	assert.Len(t, p, 4)
	assert.Equal(t, p["a"], p["b"])
	assert.NotEqual(t, p["x"], p["y"])
	assert.NotEqual(t, p["a"], p["x"])
}

func TestRunHonoursLevelCeiling(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Set("algorithm.max_levels", 0)

	g := twoTriangles(t)
	result, err := Run(g, cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, StopMaxLevels, result.StopReason)
	assert.Equal(t, graph.Singletons(g), result.Partition)
}

func TestRunHonoursPassCeiling(t *testing.T) {
	lg, _, _ := fromGraph(bridgedTriangles(t))
	passes, moves := newOptimizer(lg, NewCommunity(lg)).run(1)
	require.Equal(t, 1, passes)
	require.Greater(t, moves, 0)

	cfg := config.NewConfig()
	cfg.Set("algorithm.max_passes", 1)

	result, err := Run(bridgedTriangles(t), cfg, zerolog.Nop())
	require.NoError(t, err)

	require.NotEmpty(t, result.Levels)
	for _, level := range result.Levels {
		assert.LessOrEqual(t, level.Passes, 1)
	}
	assert.Equal(t, len(result.Levels), result.Statistics.TotalPasses)
	assert.Len(t, result.Partition, 6)
}

func TestRunIsDeterministic(t *testing.T) {
	edges := []weightedEdge{
		{"n1", "n2", 0.875}, {"n2", "n3", 0.75}, {"n3", "n1", 0.625},
		{"n4", "n5", 0.875}, {"n5", "n6", 0.9375}, {"n6", "n4", 0.5},
		{"n3", "n4", 0.25}, {"n7", "n1", 0.5}, {"n7", "n8", 0.875},
	}
	// dyadic weights keep sums exact whatever the neighbor order
	reversed := make([]weightedEdge, len(edges))
	for i, e := range edges {
		reversed[len(edges)-1-i] = weightedEdge{From: e.To, To: e.From, Weight: e.Weight}
	}

	first := Detect(buildGraph(t, edges))
	second := Detect(buildGraph(t, edges))
	third := Detect(buildGraph(t, reversed))

	assert.True(t, first.Equal(second))
	assert.True(t, first.Equal(third))
}

func TestLocalMoveIsIdempotentAfterConvergence(t *testing.T) {
	lg, _, _ := fromGraph(bridgedTriangles(t))
	comm := NewCommunity(lg)
	opt := newOptimizer(lg, comm)

	passes, moves := opt.run(100)
	require.Less(t, passes, 100)
	require.Greater(t, moves, 0)

	before := append([]int(nil), comm.NodeToCommunity...)
	assert.Equal(t, 0, opt.onePass())
	assert.Equal(t, before, comm.NodeToCommunity)
}

func TestLocalMoveTieBreaksToLowestCommunity(t *testing.T) {
	// node 0 is equally attracted to nodes 1 and 2
	lg := newLevelGraph(3)
	lg.addEdge(0, 1, 1)
	lg.addEdge(0, 2, 1)
	comm := NewCommunity(lg)

	moves := newOptimizer(lg, comm).onePass()

	assert.Greater(t, moves, 0)
	assert.Equal(t, 1, comm.NodeToCommunity[0])
}

func TestLocalMoveKeepsDegreeAccumulators(t *testing.T) {
	lg, _, _ := fromGraph(bridgedTriangles(t))
	comm := NewCommunity(lg)
	newOptimizer(lg, comm).run(100)

	want := make([]float64, lg.NumNodes)
	for node, c := range comm.NodeToCommunity {
		want[c] += lg.Degrees[node]
	}
	for c := range want {
		assert.InDelta(t, want[c], comm.CommunityDegrees[c], 1e-9)
	}
}

func TestAggregateConservesCrossWeight(t *testing.T) {
	g := bridgedTriangles(t)
	p := graph.Partition{"a": 0, "b": 0, "c": 0, "d": 1, "e": 1, "f": 1}

	agg := Aggregate(g, p)

	assert.Equal(t, 2, agg.NumNodes())
	assert.InDelta(t, 1.0, agg.TotalWeight(), 1e-12)
	assert.InDelta(t, 1.0, agg.Weight("0", "1"), 1e-12)
	assert.Equal(t, 0.0, agg.Weight("0", "0"))
	assert.NoError(t, agg.Validate())
}

func TestAggregateKeepsIsolatedCommunities(t *testing.T) {
	g := twoTriangles(t)
	p := graph.Partition{"a": 4, "b": 4, "c": 4, "d": 9, "e": 9, "f": 9}

	agg := Aggregate(g, p)

	assert.ElementsMatch(t, []models.NodeID{"4", "9"}, agg.Nodes())
	assert.Equal(t, 0, agg.NumEdges())
}

func TestAggregateIgnoresDanglingEntries(t *testing.T) {
	g := buildGraph(t, []weightedEdge{{"a", "b", 1}, {"b", "c", 2}, {"c", "d", 1}})
	require.NoError(t, g.AddHalfEdge("a", "ghost", 5))
	p := graph.Partition{"a": 0, "b": 0, "c": 1, "d": 1}

	agg := Aggregate(g, p)

	assert.Equal(t, 2, agg.NumNodes())
	assert.InDelta(t, 2.0, agg.TotalWeight(), 1e-12)
	assert.Equal(t, 0, agg.DanglingCount())
	assert.NoError(t, agg.Validate())

	result, err := Run(g, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Statistics.DanglingEdges)
	assert.Len(t, result.Partition, 4)
	assert.NotContains(t, result.Partition, models.NodeID("ghost"))
}

func TestAggregateGivesUnassignedNodesFreshCommunities(t *testing.T) {
	// node "1" is not in the partition and shares its name with community 1
	g := buildGraph(t, []weightedEdge{{"a", "b", 1}, {"b", "c", 1}, {"1", "a", 3}})
	p := graph.Partition{"a": 0, "b": 0, "c": 1}

	agg := Aggregate(g, p)

	assert.ElementsMatch(t, []models.NodeID{"0", "1", "2"}, agg.Nodes())
	assert.InDelta(t, 4.0, agg.TotalWeight(), 1e-12)
	assert.InDelta(t, 1.0, agg.Weight("0", "1"), 1e-12)
	assert.InDelta(t, 3.0, agg.Weight("0", "2"), 1e-12)
	assert.NoError(t, agg.Validate())
}

type edgeSpec struct {
	U, V int
	W    float64
}

func genGraph() gopter.Gen {
	edge := gen.Struct(reflect.TypeOf(edgeSpec{}), map[string]gopter.Gen{
		"U": gen.IntRange(0, 9),
		"V": gen.IntRange(0, 9),
		"W": gen.Float64Range(0.01, 1),
	})
	return gen.SliceOf(edge).Map(func(specs []edgeSpec) *graph.Graph {
		g := graph.New()
		for _, s := range specs {
			if s.U == s.V {
				continue
			}
			_ = g.AddEdge(models.NodeID(fmt.Sprintf("n%d", s.U)), models.NodeID(fmt.Sprintf("n%d", s.V)), s.W)
		}
		return g
	})
}

func genLabels() gopter.Gen {
	return gen.SliceOfN(10, gen.IntRange(0, 3))
}

func partitionFrom(g *graph.Graph, labels []int) graph.Partition {
	p := graph.Partition{}
	for _, id := range g.Nodes() {
		var n int
		fmt.Sscanf(string(id), "n%d", &n)
		p[id] = labels[n]
	}
	return p
}

func TestLouvainProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("modularity stays within [-1, 1]", prop.ForAll(
		func(g *graph.Graph, labels []int) bool {
			q := Modularity(g, partitionFrom(g, labels))
			return q >= -1 && q <= 1
		},
		genGraph(), genLabels(),
	))

	properties.Property("modularity agrees with gonum", prop.ForAll(
		func(g *graph.Graph, labels []int) bool {
			if g.TotalWeight() == 0 {
				return true
			}
			p := partitionFrom(g, labels)
			gg, index := graph.ToGonum(g)
			want := community.Q(gg, graph.GonumCommunities(p, index), 1)
			return math.Abs(want-Modularity(g, p)) < 1e-9
		},
		genGraph(), genLabels(),
	))

	properties.Property("aggregation conserves cross-community weight", prop.ForAll(
		func(g *graph.Graph, labels []int) bool {
			p := partitionFrom(g, labels)
			cross := 0.0
			for _, e := range g.Edges() {
				if p[e.Source] != p[e.Target] {
					cross += e.Weight
				}
			}
			agg := Aggregate(g, p)
			return math.Abs(agg.TotalWeight()-cross) < 1e-9 && agg.Validate() == nil
		},
		genGraph(), genLabels(),
	))

	properties.Property("runs are deterministic and never lose modularity", prop.ForAll(
		func(g *graph.Graph) bool {
			if g.NumNodes() == 0 {
				return true
			}
			first, err := Run(g, nil, zerolog.Nop())
			if err != nil {
				return false
			}
			second, _ := Run(g.Clone(), nil, zerolog.Nop())
			if !first.Partition.Equal(second.Partition) || len(first.Partition) != g.NumNodes() {
				return false
			}
			return first.Modularity >= Modularity(g, graph.Singletons(g))-1e-12
		},
		genGraph(),
	))

	properties.TestingRun(t)
}

func BenchmarkRun(b *testing.B) {
	g := graph.New()
	for c := 0; c < 20; c++ {
		for i := 0; i < 10; i++ {
			for j := i + 1; j < 10; j++ {
				_ = g.AddEdge(models.NodeID(fmt.Sprintf("c%d-%d", c, i)), models.NodeID(fmt.Sprintf("c%d-%d", c, j)), 1)
			}
		}
		_ = g.AddEdge(models.NodeID(fmt.Sprintf("c%d-0", c)), models.NodeID(fmt.Sprintf("c%d-0", (c+1)%20)), 0.1)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Run(g, nil, zerolog.Nop())
	}
}

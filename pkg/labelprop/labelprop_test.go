package labelprop

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mortality-clustering-service/pkg/config"
	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/louvain"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

func bridgedTriangles(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	pairs := [][2]models.NodeID{
		{"a", "b"}, {"b", "c"}, {"c", "a"},
		{"d", "e"}, {"e", "f"}, {"f", "d"},
		{"c", "d"},
	}
	for _, p := range pairs {
		require.NoError(t, g.AddEdge(p[0], p[1], 1))
	}
	return g
}

func TestRunSeparatesBridgedTriangles(t *testing.T) {
	g := bridgedTriangles(t)

	result, err := Run(g, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, graph.Partition{"a": 0, "b": 0, "c": 0, "d": 1, "e": 1, "f": 1}, result.Partition)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, 0, result.Changes[len(result.Changes)-1])
	assert.InDelta(t, louvain.Modularity(g, result.Partition), result.Modularity, 1e-12)
}

func TestRunPairDoesNotOscillate(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddEdge("x", "y", 0.5))

	result, err := Run(g, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, graph.Partition{"x": 0, "y": 0}, result.Partition)
}

func TestRunIsolatedNodesKeepLabels(t *testing.T) {
	g := graph.New()
	g.AddNode("solo")
	g.AddNode("other")

	p := Detect(g)

	assert.Equal(t, graph.Partition{"other": 0, "solo": 1}, p)
}

func TestRunEmptyGraph(t *testing.T) {
	result, err := Run(graph.New(), nil, zerolog.Nop())

	assert.True(t, errors.Is(err, ErrEmptyGraph))
	assert.True(t, errors.Is(err, louvain.ErrEmptyGraph))
	assert.Empty(t, result.Partition)
	assert.Empty(t, Detect(nil))
}

func TestRunHonoursIterationCeiling(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Set("labelprop.max_iterations", 1)

	g := bridgedTriangles(t)
	result, err := Run(g, cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.False(t, result.Converged)
	assert.Equal(t, 1, result.Iterations)
	assert.Len(t, result.Partition, g.NumNodes())
}

func TestRunIsDeterministic(t *testing.T) {
	g := bridgedTriangles(t)

	assert.True(t, Detect(g).Equal(Detect(g.Clone())))
}

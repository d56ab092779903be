package louvain

import (
	"sort"

	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// levelGraph is the array form of one hierarchy level: node i's neighbors
// are Adjacency[i] with weights Weights[i].
type levelGraph struct {
	NumNodes    int
	Adjacency   [][]int
	Weights     [][]float64
	Degrees     []float64 // weighted degree per node
	TotalWeight float64   // m, each undirected edge counted once
}

func newLevelGraph(numNodes int) *levelGraph {
	return &levelGraph{
		NumNodes:  numNodes,
		Adjacency: make([][]int, numNodes),
		Weights:   make([][]float64, numNodes),
		Degrees:   make([]float64, numNodes),
	}
}

// addEdge adds an undirected edge between two distinct nodes
func (g *levelGraph) addEdge(u, v int, weight float64) {
	g.Adjacency[u] = append(g.Adjacency[u], v)
	g.Weights[u] = append(g.Weights[u], weight)
	g.Adjacency[v] = append(g.Adjacency[v], u)
	g.Weights[v] = append(g.Weights[v], weight)
	g.Degrees[u] += weight
	g.Degrees[v] += weight
	g.TotalWeight += weight
}

// fromGraph indexes g by sorted node id. Entries whose neighbor is not a
// node are dropped and counted. Entries are copied one direction at a time,
// so degrees match graph.Graph.Degree exactly.
func fromGraph(g *graph.Graph) (*levelGraph, []models.NodeID, int) {
	ids := g.SortedNodes()
	index := make(map[models.NodeID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	lg := newLevelGraph(len(ids))
	dangling := 0
	sum := 0.0
	for i, id := range ids {
		for _, e := range g.Neighbors(id) {
			j, exists := index[e.To]
			if !exists {
				dangling++
				continue
			}
			lg.Adjacency[i] = append(lg.Adjacency[i], j)
			lg.Weights[i] = append(lg.Weights[i], e.Weight)
			lg.Degrees[i] += e.Weight
		}
		sum += lg.Degrees[i]
	}
	lg.TotalWeight = sum / 2

	return lg, ids, dangling
}

// aggregate collapses communities into super-nodes. labels must be
// contiguous in [0, numCommunities). Cross-community weight is summed over
// both stored directions and halved; intra-community edges are dropped, so
// the result has no self-loops.
func aggregate(g *levelGraph, labels []int, numCommunities int) *levelGraph {
	superEdges := make(map[[2]int]float64)

	for u := 0; u < g.NumNodes; u++ {
		cu := labels[u]
		for i, v := range g.Adjacency[u] {
			cv := labels[v]
			if cu == cv {
				continue
			}
			key := [2]int{cu, cv}
			if cv < cu {
				key = [2]int{cv, cu}
			}
			superEdges[key] += g.Weights[u][i]
		}
	}

	keys := make([][2]int, 0, len(superEdges))
	for key := range superEdges {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	super := newLevelGraph(numCommunities)
	for _, key := range keys {
		if w := superEdges[key] / 2; w > 0 {
			super.addEdge(key[0], key[1], w)
		}
	}
	return super
}

// Aggregate collapses partition p of g into a graph whose nodes are the
// distinct community ids of p. Cross-community weights are summed and
// intra-community edges dropped. Nodes missing from p become singleton
// communities numbered after the largest id in p; dangling entries
// contribute nothing.
func Aggregate(g *graph.Graph, p graph.Partition) *graph.Graph {
	lg, ids, _ := fromGraph(g)

	next := -1
	for _, c := range p {
		next = max(next, c)
	}
	next++

	labels := make([]int, len(ids))
	names := make([]models.NodeID, 0)
	byCommunity := make(map[int]int)
	for i, id := range ids {
		c, assigned := p[id]
		if !assigned {
			c = next
			next++
		}
		label, exists := byCommunity[c]
		if !exists {
			label = len(names)
			byCommunity[c] = label
			names = append(names, models.CommunityNodeID(c))
		}
		labels[i] = label
	}

	super := aggregate(lg, labels, len(names))

	out := graph.New()
	for _, name := range names {
		out.AddNode(name)
	}
	for u := 0; u < super.NumNodes; u++ {
		for i, v := range super.Adjacency[u] {
			// names are distinct and super-graphs carry no self-loops
			_ = out.AddHalfEdge(names[u], names[v], super.Weights[u][i])
		}
	}
	return out
}

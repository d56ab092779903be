package graph

import (
	gograph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// ToGonum converts g into a gonum weighted undirected graph. Gonum node ids
// follow sorted node order; the returned map translates back. Dangling
// entries are dropped.
func ToGonum(g *Graph) (*simple.WeightedUndirectedGraph, map[models.NodeID]int64) {
	out := simple.NewWeightedUndirectedGraph(0, 0)
	index := make(map[models.NodeID]int64, g.NumNodes())

	for i, id := range g.SortedNodes() {
		index[id] = int64(i)
		out.AddNode(simple.Node(i))
	}

	for _, e := range g.Edges() {
		out.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(index[e.Source]),
			T: simple.Node(index[e.Target]),
			W: e.Weight,
		})
	}

	return out, index
}

// GonumCommunities expresses p as gonum node groups, ordered by community id
func GonumCommunities(p Partition, index map[models.NodeID]int64) [][]gograph.Node {
	groups := p.Communities()
	out := make([][]gograph.Node, 0, len(groups))
	for _, c := range p.CommunityIDs() {
		nodes := make([]gograph.Node, 0, len(groups[c]))
		for _, id := range groups[c] {
			if gid, exists := index[id]; exists {
				nodes = append(nodes, simple.Node(gid))
			}
		}
		out = append(out, nodes)
	}
	return out
}

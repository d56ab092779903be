package louvain

import (
	"sort"

	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
)

// Modularity computes Newman's modularity of partition p over g:
//
//	Q = Σ_c [ in_c/2m − (tot_c/2m)² ]
//
// in_c sums the adjacency entries with both endpoints in c (every internal
// edge appears twice) and tot_c sums the weighted degrees of c's members.
// 2m is the sum of all adjacency entries, so m counts each undirected edge
// once. A graph without edges scores 0. Nodes missing from p score as
// singletons and dangling entries are ignored.
func Modularity(g *graph.Graph, p graph.Partition) float64 {
	if g == nil {
		return 0
	}

	m2 := 0.0
	degrees := make(map[int]float64)
	internal := make(map[int]float64)
	unassigned := 0.0
	for _, u := range g.Nodes() {
		ku := g.Degree(u)
		m2 += ku

		cu, assigned := p[u]
		if !assigned {
			unassigned += ku * ku
			continue
		}
		degrees[cu] += ku
		for _, e := range g.Neighbors(u) {
			if !g.HasNode(e.To) {
				continue
			}
			if cv, ok := p[e.To]; ok && cv == cu {
				internal[cu] += e.Weight
			}
		}
	}

	if m2 == 0 {
		return 0
	}

	comms := make([]int, 0, len(degrees))
	for c := range degrees {
		comms = append(comms, c)
	}
	sort.Ints(comms)

	q := 0.0
	for _, c := range comms {
		tot := degrees[c]
		q += internal[c]/m2 - (tot/m2)*(tot/m2)
	}
	return q - unassigned/(m2*m2)
}

// levelModularity is Modularity over a level graph with array labels
func levelModularity(g *levelGraph, labels []int) float64 {
	if g.TotalWeight == 0 {
		return 0
	}

	m2 := 2.0 * g.TotalWeight
	internal := make([]float64, g.NumNodes)
	total := make([]float64, g.NumNodes)

	for u := 0; u < g.NumNodes; u++ {
		cu := labels[u]
		total[cu] += g.Degrees[u]
		for i, v := range g.Adjacency[u] {
			if labels[v] == cu {
				internal[cu] += g.Weights[u][i]
			}
		}
	}

	q := 0.0
	for c := 0; c < g.NumNodes; c++ {
		if total[c] == 0 && internal[c] == 0 {
			continue
		}
		q += internal[c]/m2 - (total[c]/m2)*(total[c]/m2)
	}
	return q
}

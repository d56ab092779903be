package graph

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

var (
	// ErrSelfLoop is returned when an edge would join a node to itself
	ErrSelfLoop = errors.New("self-loop not allowed")

	// ErrNegativeWeight is returned for negative or NaN edge weights
	ErrNegativeWeight = errors.New("edge weight must be non-negative")

	// ErrMissingNeighbor marks an edge whose neighbor is absent from the node set.
	// Scoring and aggregation treat such edges as weight 0.
	ErrMissingNeighbor = errors.New("edge references missing neighbor")

	// ErrAsymmetric marks an edge without a matching reverse entry
	ErrAsymmetric = errors.New("graph is not symmetric")
)

// Edge is one adjacency entry: the neighbor and the edge weight
type Edge struct {
	To     models.NodeID `json:"to"`
	Weight float64       `json:"weight"`
}

// UndirectedEdge is an edge reported once per unordered pair
type UndirectedEdge struct {
	Source models.NodeID `json:"source"`
	Target models.NodeID `json:"target"`
	Weight float64       `json:"weight"`
}

type edgeKey struct {
	from, to models.NodeID
}

// Graph is a weighted undirected graph keyed by node id. Each undirected
// edge is stored once per endpoint.
type Graph struct {
	adjacency map[models.NodeID][]Edge
	position  map[edgeKey]int // (from, to) -> index in adjacency[from]
	nodes     []models.NodeID // insertion order
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		adjacency: make(map[models.NodeID][]Edge),
		position:  make(map[edgeKey]int),
		nodes:     []models.NodeID{},
	}
}

// AddNode adds an isolated node. It reports whether the node was new.
func (g *Graph) AddNode(id models.NodeID) bool {
	if _, exists := g.adjacency[id]; exists {
		return false
	}
	g.adjacency[id] = []Edge{}
	g.nodes = append(g.nodes, id)
	return true
}

// AddEdge adds an undirected weighted edge. Repeated edges between the
// same pair are merged by summing their weights.
func (g *Graph) AddEdge(u, v models.NodeID, weight float64) error {
	if u == v {
		return errors.Wrapf(ErrSelfLoop, "node %s", u)
	}
	if weight < 0 || math.IsNaN(weight) {
		return errors.Wrapf(ErrNegativeWeight, "edge %s-%s weight %f", u, v, weight)
	}

	g.AddNode(u)
	g.AddNode(v)
	g.addEntry(u, v, weight)
	g.addEntry(v, u, weight)
	return nil
}

// AddHalfEdge records only the from->to entry. Used while a graph is read
// back incrementally; until the reverse entry arrives the edge is one-sided,
// and until "to" is added as a node the entry is dangling.
func (g *Graph) AddHalfEdge(from, to models.NodeID, weight float64) error {
	if from == to {
		return errors.Wrapf(ErrSelfLoop, "node %s", from)
	}
	if weight < 0 || math.IsNaN(weight) {
		return errors.Wrapf(ErrNegativeWeight, "edge %s-%s weight %f", from, to, weight)
	}

	g.AddNode(from)
	g.addEntry(from, to, weight)
	return nil
}

func (g *Graph) addEntry(from, to models.NodeID, weight float64) {
	key := edgeKey{from: from, to: to}
	if idx, exists := g.position[key]; exists {
		g.adjacency[from][idx].Weight += weight
		return
	}
	g.position[key] = len(g.adjacency[from])
	g.adjacency[from] = append(g.adjacency[from], Edge{To: to, Weight: weight})
}

// HasNode reports whether id is in the node set
func (g *Graph) HasNode(id models.NodeID) bool {
	_, exists := g.adjacency[id]
	return exists
}

// NumNodes returns the number of nodes
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// Nodes returns node ids in insertion order
func (g *Graph) Nodes() []models.NodeID {
	out := make([]models.NodeID, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// SortedNodes returns node ids in ascending order
func (g *Graph) SortedNodes() []models.NodeID {
	out := g.Nodes()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Neighbors returns the adjacency entries of a node. The slice is owned by
// the graph and must not be modified.
func (g *Graph) Neighbors(id models.NodeID) []Edge {
	return g.adjacency[id]
}

// Weight returns the weight of the u->v entry, or 0 if absent
func (g *Graph) Weight(u, v models.NodeID) float64 {
	if idx, exists := g.position[edgeKey{from: u, to: v}]; exists {
		return g.adjacency[u][idx].Weight
	}
	return 0
}

// Degree returns the weighted degree of a node. Entries pointing at missing
// neighbors contribute nothing.
func (g *Graph) Degree(id models.NodeID) float64 {
	degree := 0.0
	for _, e := range g.adjacency[id] {
		if g.HasNode(e.To) {
			degree += e.Weight
		}
	}
	return degree
}

// TotalWeight returns m, the sum of edge weights with each undirected edge
// counted once. Adjacency stores every edge twice, hence the halving.
func (g *Graph) TotalWeight() float64 {
	sum := 0.0
	for _, id := range g.nodes {
		sum += g.Degree(id)
	}
	return sum / 2
}

// Edges returns every live undirected edge once, ordered by (source, target).
func (g *Graph) Edges() []UndirectedEdge {
	seen := make(map[edgeKey]bool)
	edges := make([]UndirectedEdge, 0)

	for _, u := range g.nodes {
		for _, e := range g.adjacency[u] {
			if !g.HasNode(e.To) {
				continue
			}
			a, b := u, e.To
			if b < a {
				a, b = b, a
			}
			key := edgeKey{from: a, to: b}
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, UndirectedEdge{Source: a, Target: b, Weight: e.Weight})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

// NumEdges returns the number of live undirected edges
func (g *Graph) NumEdges() int {
	return len(g.Edges())
}

// DanglingCount returns the number of adjacency entries whose neighbor is
// missing from the node set
func (g *Graph) DanglingCount() int {
	count := 0
	for _, u := range g.nodes {
		for _, e := range g.adjacency[u] {
			if !g.HasNode(e.To) {
				count++
			}
		}
	}
	return count
}

// Clone creates a deep copy of the graph
func (g *Graph) Clone() *Graph {
	clone := New()
	for _, id := range g.nodes {
		clone.AddNode(id)
	}
	for _, u := range g.nodes {
		for _, e := range g.adjacency[u] {
			clone.addEntry(u, e.To, e.Weight)
		}
	}
	return clone
}

// Validate checks the invariants of a base-level graph: no self-loops,
// non-negative weights, no dangling entries and symmetric storage.
func (g *Graph) Validate() error {
	for _, u := range g.nodes {
		for _, e := range g.adjacency[u] {
			if e.To == u {
				return errors.Wrapf(ErrSelfLoop, "node %s", u)
			}
			if e.Weight < 0 || math.IsNaN(e.Weight) {
				return errors.Wrapf(ErrNegativeWeight, "edge %s->%s weight %f", u, e.To, e.Weight)
			}
			if !g.HasNode(e.To) {
				return errors.Wrapf(ErrMissingNeighbor, "edge %s->%s", u, e.To)
			}
			reverse, exists := g.position[edgeKey{from: e.To, to: u}]
			if !exists || math.Abs(g.adjacency[e.To][reverse].Weight-e.Weight) > 1e-9 {
				return errors.Wrapf(ErrAsymmetric, "edge %s->%s", u, e.To)
			}
		}
	}
	return nil
}

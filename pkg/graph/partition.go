package graph

import (
	"sort"

	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// Partition maps every node of a graph to a community id
type Partition map[models.NodeID]int

// Singletons assigns each node of g its own community, numbered in sorted
// node order
func Singletons(g *Graph) Partition {
	p := make(Partition, g.NumNodes())
	for i, id := range g.SortedNodes() {
		p[id] = i
	}
	return p
}

// NumCommunities returns the number of distinct community ids
func (p Partition) NumCommunities() int {
	seen := make(map[int]struct{})
	for _, c := range p {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// Communities groups node ids by community, members sorted
func (p Partition) Communities() map[int][]models.NodeID {
	out := make(map[int][]models.NodeID)
	for id, c := range p {
		out[c] = append(out[c], id)
	}
	for c := range out {
		members := out[c]
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	}
	return out
}

// CommunityIDs returns the distinct community ids in ascending order
func (p Partition) CommunityIDs() []int {
	ids := make([]int, 0)
	for c := range p.Communities() {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	return ids
}

// Normalize relabels communities to 0..k-1 in order of first appearance
// over the sorted node ids.
func (p Partition) Normalize() Partition {
	ids := make([]models.NodeID, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	relabel := make(map[int]int)
	out := make(Partition, len(p))
	for _, id := range ids {
		c := p[id]
		next, exists := relabel[c]
		if !exists {
			next = len(relabel)
			relabel[c] = next
		}
		out[id] = next
	}
	return out
}

// Equal reports whether two partitions assign identical ids
func (p Partition) Equal(other Partition) bool {
	if len(p) != len(other) {
		return false
	}
	for id, c := range p {
		if oc, exists := other[id]; !exists || oc != c {
			return false
		}
	}
	return true
}

package louvain

// Community holds the partition of one level (simple arrays): the
// community of each node plus per-community degree and size accumulators,
// kept current on every move.
type Community struct {
	NodeToCommunity  []int     // NodeToCommunity[i] = community of node i
	CommunityDegrees []float64 // sum of weighted degrees of members
	CommunitySizes   []int     // number of members
}

// NewCommunity initializes each node in its own community
func NewCommunity(g *levelGraph) *Community {
	n := g.NumNodes
	comm := &Community{
		NodeToCommunity:  make([]int, n),
		CommunityDegrees: make([]float64, n),
		CommunitySizes:   make([]int, n),
	}
	for i := 0; i < n; i++ {
		comm.NodeToCommunity[i] = i
		comm.CommunityDegrees[i] = g.Degrees[i]
		comm.CommunitySizes[i] = 1
	}
	return comm
}

// remove takes node out of its community, leaving NodeToCommunity stale
// until insert is called
func (c *Community) remove(node int, degree float64) {
	comm := c.NodeToCommunity[node]
	c.CommunityDegrees[comm] -= degree
	c.CommunitySizes[comm]--
}

func (c *Community) insert(node, comm int, degree float64) {
	c.NodeToCommunity[node] = comm
	c.CommunityDegrees[comm] += degree
	c.CommunitySizes[comm]++
}

// NumCommunities counts non-empty communities
func (c *Community) NumCommunities() int {
	count := 0
	for _, size := range c.CommunitySizes {
		if size > 0 {
			count++
		}
	}
	return count
}

// Relabel returns contiguous community labels, numbered by first
// appearance in node order, and the number of communities.
func (c *Community) Relabel() ([]int, int) {
	mapping := make(map[int]int)
	labels := make([]int, len(c.NodeToCommunity))
	for node, comm := range c.NodeToCommunity {
		label, exists := mapping[comm]
		if !exists {
			label = len(mapping)
			mapping[comm] = label
		}
		labels[node] = label
	}
	return labels, len(mapping)
}

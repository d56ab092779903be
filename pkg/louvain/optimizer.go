package louvain

// optimizer runs local-move passes over one level. Scratch buffers are
// reused across nodes and passes.
type optimizer struct {
	graph      *levelGraph
	comm       *Community
	weightTo   []float64 // edge weight from the current node to each community
	touched    []bool
	neighComms []int
}

func newOptimizer(g *levelGraph, comm *Community) *optimizer {
	return &optimizer{
		graph:      g,
		comm:       comm,
		weightTo:   make([]float64, g.NumNodes),
		touched:    make([]bool, g.NumNodes),
		neighComms: make([]int, 0, 16),
	}
}

// gain is the modularity gain, up to a constant factor of 2, of inserting
// a node with degree k and edge weight kIn towards community c into c,
// with the node already removed from its own community:
//
//	kIn/m − k·tot(c)/(2m²)
func (o *optimizer) gain(c int, kIn, k, m float64) float64 {
	return kIn/m - k*o.comm.CommunityDegrees[c]/(2*m*m)
}

// onePass moves every node, in index order, to the neighboring community
// with the highest gain. Ties keep the current community, otherwise go to
// the lowest community id. It returns the number of nodes that moved.
func (o *optimizer) onePass() int {
	g := o.graph
	m := g.TotalWeight
	if m == 0 {
		return 0
	}

	moves := 0
	for node := 0; node < g.NumNodes; node++ {
		oldComm := o.comm.NodeToCommunity[node]
		degree := g.Degrees[node]

		// Group incident weight by neighbor community
		o.neighComms = o.neighComms[:0]
		for i, neighbor := range g.Adjacency[node] {
			if neighbor == node {
				continue
			}
			nComm := o.comm.NodeToCommunity[neighbor]
			if !o.touched[nComm] {
				o.touched[nComm] = true
				o.neighComms = append(o.neighComms, nComm)
			}
			o.weightTo[nComm] += g.Weights[node][i]
		}

		o.comm.remove(node, degree)

		bestComm := oldComm
		bestGain := o.gain(oldComm, o.weightTo[oldComm], degree, m)
		for _, target := range o.neighComms {
			if target == oldComm {
				continue
			}
			gain := o.gain(target, o.weightTo[target], degree, m)
			if gain > bestGain || (gain == bestGain && bestComm != oldComm && target < bestComm) {
				bestComm = target
				bestGain = gain
			}
		}

		o.comm.insert(node, bestComm, degree)
		if bestComm != oldComm {
			moves++
		}

		for _, c := range o.neighComms {
			o.weightTo[c] = 0
			o.touched[c] = false
		}
	}

	return moves
}

// run repeats passes until one moves nothing or maxPasses is reached. It
// returns the number of passes made and the total number of moves.
func (o *optimizer) run(maxPasses int) (int, int) {
	passes, totalMoves := 0, 0
	for passes < maxPasses {
		passes++
		moves := o.onePass()
		totalMoves += moves
		if moves == 0 {
			break
		}
	}
	return passes, totalMoves
}

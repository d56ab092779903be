// Package analysis summarizes clustered similarity graphs.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"

	"github.com/gilchrisn/mortality-clustering-service/pkg/graph"
	"github.com/gilchrisn/mortality-clustering-service/pkg/louvain"
	"github.com/gilchrisn/mortality-clustering-service/pkg/models"
)

// GraphSummary describes the shape of one similarity graph
type GraphSummary struct {
	Nodes            int     `json:"nodes" yaml:"nodes"`
	Edges            int     `json:"edges" yaml:"edges"`
	TotalWeight      float64 `json:"total_weight" yaml:"total_weight"`
	MeanDegree       float64 `json:"mean_degree" yaml:"mean_degree"` // weighted
	Components       int     `json:"components" yaml:"components"`
	LargestComponent int     `json:"largest_component" yaml:"largest_component"`
	DanglingEdges    int     `json:"dangling_edges" yaml:"dangling_edges"`
}

// CommunitySummary describes one community of a partition
type CommunitySummary struct {
	ID             int             `json:"id" yaml:"id"`
	Size           int             `json:"size" yaml:"size"`
	InternalWeight float64         `json:"internal_weight" yaml:"internal_weight"`
	MeanEstimate   float64         `json:"mean_estimate" yaml:"mean_estimate"`
	StdDevEstimate float64         `json:"stddev_estimate" yaml:"stddev_estimate"`
	MinEstimate    float64         `json:"min_estimate" yaml:"min_estimate"`
	MaxEstimate    float64         `json:"max_estimate" yaml:"max_estimate"`
	StubLabels     []float64       `json:"stub_labels" yaml:"stub_labels"`
	Years          []int           `json:"years" yaml:"years"`
	Ages           []int           `json:"ages" yaml:"ages"`
	Members        []models.NodeID `json:"members" yaml:"members"`
}

// ClusteringSummary bundles the graph and community summaries
type ClusteringSummary struct {
	Graph       GraphSummary       `json:"graph" yaml:"graph"`
	Modularity  float64            `json:"modularity" yaml:"modularity"`
	Communities []CommunitySummary `json:"communities" yaml:"communities"`
}

// SummarizeGraph counts nodes, edges and connected components of g
func SummarizeGraph(g *graph.Graph) GraphSummary {
	s := GraphSummary{
		Nodes:         g.NumNodes(),
		Edges:         g.NumEdges(),
		TotalWeight:   g.TotalWeight(),
		DanglingEdges: g.DanglingCount(),
	}
	if s.Nodes == 0 {
		return s
	}

	degrees := make([]float64, 0, s.Nodes)
	for _, id := range g.SortedNodes() {
		degrees = append(degrees, g.Degree(id))
	}
	s.MeanDegree = stat.Mean(degrees, nil)

	gg, _ := graph.ToGonum(g)
	components := topo.ConnectedComponents(gg)
	s.Components = len(components)
	for _, c := range components {
		if len(c) > s.LargestComponent {
			s.LargestComponent = len(c)
		}
	}
	return s
}

// Summarize describes every community of p. records supplies estimates and
// codes by node id; members without a record only count towards size.
func Summarize(g *graph.Graph, p graph.Partition, records []models.Record) ClusteringSummary {
	byID := make(map[models.NodeID]models.Record, len(records))
	for _, r := range records {
		if _, exists := byID[r.ID()]; !exists {
			byID[r.ID()] = r
		}
	}

	groups := p.Communities()
	summaries := make([]CommunitySummary, 0, len(groups))
	for _, c := range p.CommunityIDs() {
		summaries = append(summaries, summarizeCommunity(g, p, c, groups[c], byID))
	}

	return ClusteringSummary{
		Graph:       SummarizeGraph(g),
		Modularity:  louvain.Modularity(g, p),
		Communities: summaries,
	}
}

func summarizeCommunity(g *graph.Graph, p graph.Partition, c int, members []models.NodeID, byID map[models.NodeID]models.Record) CommunitySummary {
	s := CommunitySummary{ID: c, Size: len(members), Members: members}

	labels := make(map[float64]struct{})
	years := make(map[int]struct{})
	ages := make(map[int]struct{})
	estimates := make([]float64, 0, len(members))

	for _, id := range members {
		for _, e := range g.Neighbors(id) {
			if oc, ok := p[e.To]; ok && oc == c && g.HasNode(e.To) {
				s.InternalWeight += e.Weight
			}
		}

		r, exists := byID[id]
		if !exists {
			continue
		}
		estimates = append(estimates, r.Estimate)
		labels[r.StubLabelNum] = struct{}{}
		years[r.YearNum] = struct{}{}
		ages[r.AgeNum] = struct{}{}
	}
	// each internal edge was seen from both ends
	s.InternalWeight /= 2

	if len(estimates) > 0 {
		s.MinEstimate, s.MaxEstimate = math.Inf(1), math.Inf(-1)
		for _, v := range estimates {
			s.MinEstimate = math.Min(s.MinEstimate, v)
			s.MaxEstimate = math.Max(s.MaxEstimate, v)
		}
		if len(estimates) == 1 {
			s.MeanEstimate = estimates[0]
		} else {
			s.MeanEstimate, s.StdDevEstimate = stat.MeanStdDev(estimates, nil)
		}
	}

	s.StubLabels = make([]float64, 0, len(labels))
	for l := range labels {
		s.StubLabels = append(s.StubLabels, l)
	}
	sort.Float64s(s.StubLabels)
	s.Years = sortedInts(years)
	s.Ages = sortedInts(ages)

	return s
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

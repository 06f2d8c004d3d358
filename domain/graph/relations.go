package graph

import (
	"sort"

	"clickchain/domain/telemetry"
)

// Related returns the id together with the ids of every node sharing an edge
// with it, sorted. Visibility is not considered. An unknown or isolated id
// yields just itself.
func (g *Graph) Related(id string) []string {
	neighbours := g.adjacency[id]
	ids := make([]string, 0, len(neighbours)+1)
	ids = append(ids, id)
	for n := range neighbours {
		if n != id {
			ids = append(ids, n)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsRelated reports whether two nodes share an edge or are the same node
func (g *Graph) IsRelated(a, b string) bool {
	if a == b {
		return true
	}
	_, ok := g.adjacency[a][b]
	return ok
}

// RelatedNodes returns the direct neighbours of a node, excluding the node
// itself, in timestamp order with domain nodes first.
func (g *Graph) RelatedNodes(id string) []*Node {
	nodes := make([]*Node, 0, len(g.adjacency[id]))
	for _, rid := range g.Related(id) {
		if rid == id {
			continue
		}
		if n, ok := g.index[rid]; ok {
			nodes = append(nodes, n)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Timestamp == nil || b.Timestamp == nil {
			return a.Timestamp == nil && b.Timestamp != nil
		}
		return a.Timestamp.Before(*b.Timestamp)
	})
	return nodes
}

// Stats summarizes a graph
type Stats struct {
	Nodes     int                         `json:"nodes"`
	Edges     int                         `json:"edges"`
	Domains   int                         `json:"domains"`
	Endpoints int                         `json:"endpoints"`
	Events    int                         `json:"events"`
	Causal    int                         `json:"causal"`
	Temporal  int                         `json:"temporal"`
	Dropped   int                         `json:"dropped"`
	ByType    map[telemetry.EventType]int `json:"byType"`
}

// Stats counts nodes and edges by kind
func (g *Graph) Stats() Stats {
	s := Stats{
		Nodes:   len(g.Nodes),
		Edges:   len(g.Edges),
		Dropped: len(g.Dropped),
		ByType:  make(map[telemetry.EventType]int),
	}
	for _, n := range g.Nodes {
		switch n.Kind {
		case KindDomain:
			s.Domains++
			continue
		case KindEndpoint:
			s.Endpoints++
		case KindEvent:
			s.Events++
		}
		s.ByType[n.EventType]++
	}
	for _, e := range g.Edges {
		switch e.Kind {
		case EdgeCausal:
			s.Causal++
		case EdgeTemporal:
			s.Temporal++
		}
	}
	return s
}

// EventTypes returns the distinct event types present in the graph in node order
func (g *Graph) EventTypes() []telemetry.EventType {
	seen := make(map[telemetry.EventType]bool)
	types := make([]telemetry.EventType, 0)
	for _, n := range g.Nodes {
		if n.IsDomain() || seen[n.EventType] {
			continue
		}
		seen[n.EventType] = true
		types = append(types, n.EventType)
	}
	return types
}

// Package visibility computes which nodes and edges of a graph are visible at
// a playback position under the current event-type filter.
package visibility

import (
	"time"

	"clickchain/domain/graph"
	"clickchain/domain/telemetry"
	"clickchain/domain/timeline"
)

// NodeState is the projected visibility of one node
type NodeState struct {
	ID      string  `json:"id"`
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
}

// EdgeState is the projected visibility of one edge
type EdgeState struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Visible bool   `json:"visible"`
}

// Counts aggregates visibility over non-domain nodes
type Counts struct {
	Total   int `json:"total"`
	Visible int `json:"visible"`
}

// State is the full projection for one (graph, position, filter) triple.
// Nodes and Edges are parallel to the graph's Nodes and Edges.
type State struct {
	Position float64               `json:"position"`
	Cutoff   *time.Time            `json:"cutoff,omitempty"`
	Filter   []telemetry.EventType `json:"filter"`
	Nodes    []NodeState           `json:"nodes"`
	Edges    []EdgeState           `json:"edges"`
	Counts   Counts                `json:"counts"`
}

// VisibleNodeIDs lists the ids of visible nodes in graph order
func (s State) VisibleNodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Visible {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Projector owns the event-type filter and derives visibility from it.
// It is not safe for concurrent use.
type Projector struct {
	filter Filter
}

// NewProjector creates a projector with an empty filter
func NewProjector() *Projector {
	return &Projector{filter: NewFilter()}
}

// ToggleType flips one type in the filter and reports whether it is selected
func (p *Projector) ToggleType(t telemetry.EventType) bool {
	return p.filter.Toggle(t)
}

// ClearFilter deselects every type
func (p *Projector) ClearFilter() {
	p.filter.Clear()
}

// SetFilter replaces the filter
func (p *Projector) SetFilter(f Filter) {
	p.filter = f.Clone()
}

// Filter returns a copy of the current filter
func (p *Projector) Filter() Filter {
	return p.filter.Clone()
}

// Project recomputes visibility from scratch. Domain nodes are always
// visible; other nodes are visible when their timestamp is at or before the
// cutoff and their type passes the filter. An edge is visible when both of
// its ends are.
func (p *Projector) Project(g *graph.Graph, ix *timeline.Index, position float64) State {
	position = timeline.ClampPosition(position)
	state := State{
		Position: position,
		Filter:   p.filter.Types(),
		Nodes:    make([]NodeState, 0),
		Edges:    make([]EdgeState, 0),
	}
	if g == nil {
		return state
	}

	var (
		cutoff    time.Time
		hasCutoff bool
	)
	if ix != nil {
		cutoff, hasCutoff = ix.CutoffTime(position)
	}
	if hasCutoff {
		state.Cutoff = &cutoff
	}

	visible := make(map[string]bool, len(g.Nodes))
	state.Nodes = make([]NodeState, len(g.Nodes))
	for i, n := range g.Nodes {
		v := p.nodeVisible(n, cutoff, hasCutoff)
		visible[n.ID] = v
		state.Nodes[i] = NodeState{ID: n.ID, Visible: v, Opacity: opacity(v)}
		if n.IsDomain() {
			continue
		}
		state.Counts.Total++
		if v {
			state.Counts.Visible++
		}
	}

	state.Edges = make([]EdgeState, len(g.Edges))
	for i, e := range g.Edges {
		state.Edges[i] = EdgeState{
			ID:      e.ID,
			Source:  e.Source,
			Target:  e.Target,
			Visible: visible[e.Source] && visible[e.Target],
		}
	}
	return state
}

func (p *Projector) nodeVisible(n *graph.Node, cutoff time.Time, hasCutoff bool) bool {
	if n.IsDomain() {
		return true
	}
	if !hasCutoff || n.Timestamp == nil {
		return false
	}
	return !n.Timestamp.After(cutoff) && p.filter.Allows(n.EventType)
}

func opacity(visible bool) float64 {
	if visible {
		return 1
	}
	return 0
}

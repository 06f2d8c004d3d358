// Package graph builds the typed node/edge graph for a normalized event batch
// and answers adjacency queries against it.
package graph

import (
	"time"

	"clickchain/domain/telemetry"
)

// NodeKind classifies graph nodes
type NodeKind string

const (
	KindDomain   NodeKind = "domain"
	KindEndpoint NodeKind = "endpoint"
	KindEvent    NodeKind = "event"
)

// EdgeKind classifies graph edges
type EdgeKind string

const (
	EdgeDomainEndpoint EdgeKind = "domain-endpoint"
	EdgeCausal         EdgeKind = "causal"
	EdgeTemporal       EdgeKind = "temporal"
)

// Causal edge labels
const (
	LabelTriggered = "Triggered"
	LabelRelated   = "Related"
)

// Node is a vertex of the event graph. Domain nodes have no timestamp and no
// source event; Endpoint and Event nodes are derived from exactly one event.
type Node struct {
	ID         string              `json:"id"`
	Kind       NodeKind            `json:"kind"`
	Name       string              `json:"name"`
	EventType  telemetry.EventType `json:"eventType,omitempty"`
	Timestamp  *time.Time          `json:"timestamp"`
	Attributes map[string]any      `json:"attributes,omitempty"`

	Source *telemetry.LogEvent `json:"source,omitempty"`

	// Endpoints lists a domain's endpoint events in event order
	Endpoints   []*telemetry.LogEvent `json:"-"`
	EndpointIDs []string              `json:"endpoints,omitempty"`

	// Layout is owned by the renderer. The graph stores it and nothing more.
	Layout any `json:"layout,omitempty"`
}

// IsDomain reports whether the node is a domain node
func (n *Node) IsDomain() bool {
	return n.Kind == KindDomain
}

// Edge connects two nodes of the same graph
type Edge struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Kind      EdgeKind  `json:"kind"`
	Weight    float64   `json:"weight"`
	Label     string    `json:"label,omitempty"`
	Dashed    bool      `json:"dashed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DroppedEvent is a network request left out of the graph because its URL
// did not parse.
type DroppedEvent struct {
	Index  int                 `json:"index"`
	Type   telemetry.EventType `json:"type"`
	URL    string              `json:"url"`
	Reason string              `json:"reason"`
}

// Graph is the immutable result of a build. Callers must not mutate Nodes or
// Edges; visibility lives in a separate projection.
type Graph struct {
	Nodes   []*Node        `json:"nodes"`
	Edges   []Edge         `json:"edges"`
	Dropped []DroppedEvent `json:"dropped"`

	index     map[string]*Node
	adjacency map[string]map[string]struct{}
}

func newGraph() *Graph {
	return &Graph{
		Nodes:     make([]*Node, 0),
		Edges:     make([]Edge, 0),
		Dropped:   make([]DroppedEvent, 0),
		index:     make(map[string]*Node),
		adjacency: make(map[string]map[string]struct{}),
	}
}

func (g *Graph) addNode(n *Node) bool {
	if _, exists := g.index[n.ID]; exists {
		return false
	}
	g.Nodes = append(g.Nodes, n)
	g.index[n.ID] = n
	return true
}

func (g *Graph) addEdge(e Edge) {
	e.ID = e.Source + "->" + e.Target
	g.Edges = append(g.Edges, e)
	g.link(e.Source, e.Target)
	g.link(e.Target, e.Source)
}

func (g *Graph) link(from, to string) {
	set, ok := g.adjacency[from]
	if !ok {
		set = make(map[string]struct{})
		g.adjacency[from] = set
	}
	set[to] = struct{}{}
}

// Node returns the node with the given id
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.index[id]
	return n, ok
}

// IsEmpty reports whether no event produced a node
func (g *Graph) IsEmpty() bool {
	for _, n := range g.Nodes {
		if !n.IsDomain() {
			return false
		}
	}
	return true
}

// AttachLayout stores renderer-owned layout data on a node
func (g *Graph) AttachLayout(id string, layout any) bool {
	n, ok := g.index[id]
	if !ok {
		return false
	}
	n.Layout = layout
	return true
}

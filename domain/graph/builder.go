package graph

import (
	"fmt"
	"strings"
	"time"

	"clickchain/domain/telemetry"

	"go.uber.org/zap"
)

// DefaultCausalWindow is the largest gap between two adjacent events that
// still links them.
const DefaultCausalWindow = 2000 * time.Millisecond

// Builder turns a normalized event sequence into a Graph
type Builder struct {
	window time.Duration
	logger *zap.Logger
}

// NewBuilder creates a builder. A non-positive window selects DefaultCausalWindow.
func NewBuilder(window time.Duration, logger *zap.Logger) *Builder {
	if window <= 0 {
		window = DefaultCausalWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{window: window, logger: logger}
}

// Window returns the causal window in use
func (b *Builder) Window() time.Duration {
	return b.window
}

// Build constructs the graph. Events must already be in ascending timestamp
// order, as produced by the normalizer. Malformed events are skipped; Build
// never fails.
func (b *Builder) Build(events []telemetry.LogEvent) *Graph {
	g := newGraph()

	domains := b.domainPass(g, events)
	nodes := b.nodePass(g, events, domains)
	b.linkPass(g, events, nodes)

	if len(g.Dropped) > 0 {
		b.logger.Warn("Dropped network requests with malformed URLs",
			zap.Int("dropped", len(g.Dropped)),
		)
	}
	b.logger.Debug("Built event graph",
		zap.Int("events", len(events)),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
	)
	return g
}

// domainPass creates one domain node per hostname on first sighting and
// collects each domain's endpoint events.
func (b *Builder) domainPass(g *Graph, events []telemetry.LogEvent) map[string]*Node {
	domains := make(map[string]*Node)
	for i := range events {
		e := &events[i]
		if e.Type != telemetry.TypeNetworkRequest {
			continue
		}
		req := requestOf(e)
		u, err := req.ParseURL()
		if err != nil {
			continue
		}
		host := u.Hostname()
		d, ok := domains[host]
		if !ok {
			d = &Node{
				ID:         DomainNodeID(host),
				Kind:       KindDomain,
				Name:       host,
				Attributes: map[string]any{"hostname": host},
			}
			if !g.addNode(d) {
				continue
			}
			domains[host] = d
		}
		d.Endpoints = append(d.Endpoints, e)
		d.EndpointIDs = append(d.EndpointIDs, EventNodeID(e))
	}
	return domains
}

// nodePass creates one node per event. The returned slice is parallel to
// events and holds nil where no node was produced.
func (b *Builder) nodePass(g *Graph, events []telemetry.LogEvent, domains map[string]*Node) []*Node {
	nodes := make([]*Node, len(events))
	for i := range events {
		e := &events[i]
		ts := e.Timestamp

		if e.Type == telemetry.TypeNetworkRequest {
			req := requestOf(e)
			u, err := req.ParseURL()
			if err != nil {
				g.Dropped = append(g.Dropped, DroppedEvent{
					Index:  e.Index,
					Type:   e.Type,
					URL:    req.URL,
					Reason: err.Error(),
				})
				b.logger.Debug("Skipping network request",
					zap.Int("index", e.Index),
					zap.String("url", req.URL),
				)
				continue
			}
			d := domains[u.Hostname()]
			if d == nil {
				continue
			}
			path := u.Path
			if path == "" {
				path = "/"
			}
			n := &Node{
				ID:        EventNodeID(e),
				Kind:      KindEndpoint,
				Name:      path,
				EventType: e.Type,
				Timestamp: &ts,
				Source:    e,
				Attributes: map[string]any{
					"method":      strings.ToUpper(req.Method),
					"status":      req.Status,
					"statusText":  req.StatusText,
					"statusClass": telemetry.StatusClass(req.Status),
					"path":        path,
					"domain":      d.ID,
					"url":         req.URL,
					"durationMs":  req.DurationMs,
					"preflight":   req.IsPreflight(),
				},
			}
			if !g.addNode(n) {
				continue
			}
			nodes[i] = n
			g.addEdge(Edge{
				Source:    d.ID,
				Target:    n.ID,
				Kind:      EdgeDomainEndpoint,
				Weight:    1,
				Dashed:    req.IsPreflight(),
				Timestamp: ts,
			})
			continue
		}

		name, attrs := describe(e)
		n := &Node{
			ID:         EventNodeID(e),
			Kind:       KindEvent,
			Name:       name,
			EventType:  e.Type,
			Timestamp:  &ts,
			Source:     e,
			Attributes: attrs,
		}
		if !g.addNode(n) {
			b.logger.Warn("Duplicate node id", zap.String("id", n.ID))
			continue
		}
		nodes[i] = n
	}
	return nodes
}

// linkPass joins adjacent events that both produced a node and are closer
// than the causal window.
func (b *Builder) linkPass(g *Graph, events []telemetry.LogEvent, nodes []*Node) {
	for i := 0; i+1 < len(events); i++ {
		from, to := nodes[i], nodes[i+1]
		if from == nil || to == nil {
			continue
		}
		prev, next := &events[i], &events[i+1]
		if next.Timestamp.Sub(prev.Timestamp) >= b.window {
			continue
		}

		edge := Edge{
			Source:    from.ID,
			Target:    to.ID,
			Kind:      EdgeTemporal,
			Weight:    1,
			Dashed:    true,
			Timestamp: prev.Timestamp,
		}
		switch {
		case prev.Type.IsGesture() && next.Type == telemetry.TypeNetworkRequest:
			edge.Kind, edge.Weight, edge.Label, edge.Dashed = EdgeCausal, 2, LabelTriggered, false
		case prev.Type == telemetry.TypeNetworkRequest && next.Type == telemetry.TypeNetworkRequest &&
			sameHost(prev, next):
			edge.Kind, edge.Weight, edge.Label, edge.Dashed = EdgeCausal, 2, LabelRelated, false
		}
		g.addEdge(edge)
	}
}

// EventNodeID derives the deterministic id of an event's node
func EventNodeID(e *telemetry.LogEvent) string {
	return fmt.Sprintf("%s-%d", e.Type, e.Index)
}

// DomainNodeID derives the id of a hostname's domain node
func DomainNodeID(host string) string {
	return "domain:" + host
}

func sameHost(a, b *telemetry.LogEvent) bool {
	ha := requestOf(a).Host()
	return ha != "" && ha == requestOf(b).Host()
}

// requestOf returns the request payload, recovering url and method from the
// raw data when the payload fell back to Generic.
func requestOf(e *telemetry.LogEvent) telemetry.NetworkRequest {
	if req, ok := e.Payload.(telemetry.NetworkRequest); ok {
		return req
	}
	req := telemetry.NetworkRequest{}
	if s, ok := e.Data["url"].(string); ok {
		req.URL = s
	}
	if s, ok := e.Data["method"].(string); ok {
		req.Method = s
	}
	return req
}

func describe(e *telemetry.LogEvent) (string, map[string]any) {
	switch p := e.Payload.(type) {
	case telemetry.Click:
		name := "Click: " + p.Tag
		if p.ID != "" {
			name += " #" + p.ID
		}
		return name, map[string]any{
			"tag":   p.Tag,
			"id":    p.ID,
			"class": p.Class,
			"text":  p.Text,
		}
	case telemetry.Keydown:
		return "Key: " + p.Key, map[string]any{
			"key":    p.Key,
			"target": p.Target,
		}
	case telemetry.Failure:
		return "Error: " + p.Message, map[string]any{
			"message": p.Message,
			"source":  p.Source,
			"stack":   p.Stack,
		}
	default:
		attrs := make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			attrs[k] = v
		}
		return string(e.Type) + " event", attrs
	}
}

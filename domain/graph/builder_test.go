package graph

import (
	"os"
	"testing"
	"time"

	"clickchain/domain/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 5, 19, 10, 6, 26, 0, time.UTC)

func request(index int, at time.Duration, url string, status int) telemetry.LogEvent {
	return telemetry.LogEvent{
		Index:     index,
		Type:      telemetry.TypeNetworkRequest,
		Timestamp: t0.Add(at),
		Payload:   telemetry.NetworkRequest{URL: url, Method: "GET", Status: status},
	}
}

func click(index int, at time.Duration) telemetry.LogEvent {
	return telemetry.LogEvent{
		Index:     index,
		Type:      telemetry.TypeClick,
		Timestamp: t0.Add(at),
		Payload:   telemetry.Click{Tag: "BUTTON", ID: "submit"},
	}
}

func keydown(index int, at time.Duration) telemetry.LogEvent {
	return telemetry.LogEvent{
		Index:     index,
		Type:      telemetry.TypeKeydown,
		Timestamp: t0.Add(at),
		Payload:   telemetry.Keydown{Key: "Enter"},
	}
}

func linkEdges(g *Graph) []Edge {
	edges := make([]Edge, 0)
	for _, e := range g.Edges {
		if e.Kind != EdgeDomainEndpoint {
			edges = append(edges, e)
		}
	}
	return edges
}

func sampleEvents(t *testing.T) []telemetry.LogEvent {
	t.Helper()
	data, err := os.ReadFile("../telemetry/testdata/sample_logs.json")
	require.NoError(t, err)
	raws, err := telemetry.DecodeBatch(data)
	require.NoError(t, err)
	return telemetry.NewNormalizer(nil).Normalize(raws).Events
}

func TestBuild_EndToEndScenario(t *testing.T) {
	events := []telemetry.LogEvent{
		click(0, 0),
		request(1, 500*time.Millisecond, "https://a.example.com/items", 200),
		request(2, 3500*time.Millisecond, "https://a.example.com/items", 404),
	}

	g := NewBuilder(0, nil).Build(events)

	stats := g.Stats()
	assert.Equal(t, 1, stats.Domains)
	assert.Equal(t, 2, stats.Endpoints)
	assert.Equal(t, 1, stats.Events)

	domain, ok := g.Node(DomainNodeID("a.example.com"))
	require.True(t, ok)
	assert.Nil(t, domain.Timestamp)
	assert.Equal(t, []string{"network-request-1", "network-request-2"}, domain.EndpointIDs)

	require.Len(t, g.Edges, 3)
	domainEdges := 0
	for _, e := range g.Edges {
		if e.Kind == EdgeDomainEndpoint {
			domainEdges++
			assert.Equal(t, domain.ID, e.Source)
			assert.Equal(t, 1.0, e.Weight)
		}
	}
	assert.Equal(t, 2, domainEdges)

	links := linkEdges(g)
	require.Len(t, links, 1)
	assert.Equal(t, "click-0", links[0].Source)
	assert.Equal(t, "network-request-1", links[0].Target)
	assert.Equal(t, EdgeCausal, links[0].Kind)
	assert.Equal(t, LabelTriggered, links[0].Label)
	assert.Equal(t, 2.0, links[0].Weight)
	assert.Equal(t, t0, links[0].Timestamp)

	assert.False(t, g.IsRelated("network-request-1", "network-request-2"))
}

func TestBuild_CausalThreshold(t *testing.T) {
	tests := []struct {
		name     string
		gap      time.Duration
		secondTo string
		wantKind EdgeKind
		wantLink bool
	}{
		{"same host within window", 1500 * time.Millisecond, "https://a.example.com/b", EdgeCausal, true},
		{"same host outside window", 2500 * time.Millisecond, "https://a.example.com/b", "", false},
		{"exactly at window", 2000 * time.Millisecond, "https://a.example.com/b", "", false},
		{"other host within window", 1500 * time.Millisecond, "https://b.example.com/b", EdgeTemporal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := []telemetry.LogEvent{
				request(0, 0, "https://a.example.com/a", 200),
				request(1, tt.gap, tt.secondTo, 200),
			}

			g := NewBuilder(DefaultCausalWindow, nil).Build(events)

			links := linkEdges(g)
			if !tt.wantLink {
				assert.Empty(t, links)
				return
			}
			require.Len(t, links, 1)
			assert.Equal(t, tt.wantKind, links[0].Kind)
			if tt.wantKind == EdgeCausal {
				assert.Equal(t, LabelRelated, links[0].Label)
			} else {
				assert.Empty(t, links[0].Label)
				assert.Equal(t, 1.0, links[0].Weight)
			}
		})
	}
}

func TestBuild_GestureTriggersRequest(t *testing.T) {
	tests := []struct {
		name      string
		events    []telemetry.LogEvent
		wantKind  EdgeKind
		wantLabel string
	}{
		{
			name:      "click then request",
			events:    []telemetry.LogEvent{click(0, 0), request(1, 300*time.Millisecond, "https://a.example.com/", 200)},
			wantKind:  EdgeCausal,
			wantLabel: LabelTriggered,
		},
		{
			name:      "keydown then request",
			events:    []telemetry.LogEvent{keydown(0, 0), request(1, 300*time.Millisecond, "https://a.example.com/", 200)},
			wantKind:  EdgeCausal,
			wantLabel: LabelTriggered,
		},
		{
			name:     "request then click",
			events:   []telemetry.LogEvent{request(0, 0, "https://a.example.com/", 200), click(1, 300*time.Millisecond)},
			wantKind: EdgeTemporal,
		},
		{
			name:     "click then click",
			events:   []telemetry.LogEvent{click(0, 0), click(1, 300*time.Millisecond)},
			wantKind: EdgeTemporal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewBuilder(0, nil).Build(tt.events)

			links := linkEdges(g)
			require.Len(t, links, 1)
			assert.Equal(t, tt.wantKind, links[0].Kind)
			assert.Equal(t, tt.wantLabel, links[0].Label)
		})
	}
}

func TestBuild_DropsMalformedURL(t *testing.T) {
	events := []telemetry.LogEvent{
		click(0, 0),
		request(1, 100*time.Millisecond, "not a url", 200),
		request(2, 200*time.Millisecond, "https://a.example.com/ok", 200),
	}

	g := NewBuilder(0, nil).Build(events)

	_, ok := g.Node("network-request-1")
	assert.False(t, ok)
	require.Len(t, g.Dropped, 1)
	assert.Equal(t, 1, g.Dropped[0].Index)
	assert.Equal(t, "not a url", g.Dropped[0].URL)

	for _, n := range g.Nodes {
		for _, id := range g.Related(n.ID) {
			assert.NotEqual(t, "network-request-1", id)
		}
	}
	for _, e := range g.Edges {
		_, okSource := g.Node(e.Source)
		_, okTarget := g.Node(e.Target)
		assert.True(t, okSource && okTarget, "edge %s references a missing node", e.ID)
	}
	assert.Equal(t, []string{"click-0"}, g.Related("click-0"))
}

func TestBuild_GenericNetworkPayloadStillParsesURL(t *testing.T) {
	events := []telemetry.LogEvent{{
		Index:     0,
		Type:      telemetry.TypeNetworkRequest,
		Timestamp: t0,
		Payload:   telemetry.Generic{Type: telemetry.TypeNetworkRequest},
		Data:      map[string]any{"url": "https://a.example.com/x", "status": "teapot"},
	}}

	g := NewBuilder(0, nil).Build(events)

	n, ok := g.Node("network-request-0")
	require.True(t, ok)
	assert.Equal(t, KindEndpoint, n.Kind)
	assert.Equal(t, "/x", n.Name)
}

func TestBuild_EventNodeAttributes(t *testing.T) {
	events := []telemetry.LogEvent{
		click(0, 0),
		keydown(1, 5*time.Second),
		{Index: 2, Type: telemetry.TypeError, Timestamp: t0.Add(10 * time.Second), Payload: telemetry.Failure{Message: "boom", Source: "app.js"}},
		{Index: 3, Type: "scroll", Timestamp: t0.Add(15 * time.Second), Payload: telemetry.Generic{Type: "scroll"}, Data: map[string]any{"y": 120.0}},
		request(4, 20*time.Second, "https://a.example.com", 204),
	}

	g := NewBuilder(0, nil).Build(events)

	tests := []struct {
		id       string
		wantName string
		wantAttr string
		wantVal  any
	}{
		{"click-0", "Click: BUTTON #submit", "tag", "BUTTON"},
		{"keydown-1", "Key: Enter", "key", "Enter"},
		{"error-2", "Error: boom", "source", "app.js"},
		{"scroll-3", "scroll event", "y", 120.0},
		{"network-request-4", "/", "statusClass", "2xx"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			n, ok := g.Node(tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.wantName, n.Name)
			assert.Equal(t, tt.wantVal, n.Attributes[tt.wantAttr])
			require.NotNil(t, n.Timestamp)
			assert.Equal(t, n.Source.Timestamp, *n.Timestamp)
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	events := sampleEvents(t)
	b := NewBuilder(0, nil)

	first := b.Build(events)
	second := b.Build(events)

	ids := func(g *Graph) []string {
		out := make([]string, 0, len(g.Nodes))
		for _, n := range g.Nodes {
			out = append(out, n.ID)
		}
		return out
	}
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, first.Edges, second.Edges)
	assert.Equal(t, first.Stats(), second.Stats())
}

func TestBuild_SampleSession(t *testing.T) {
	g := NewBuilder(0, nil).Build(sampleEvents(t))

	stats := g.Stats()
	assert.Equal(t, 12, stats.Nodes)
	assert.Equal(t, 1, stats.Domains)
	assert.Equal(t, 6, stats.Endpoints)
	assert.Equal(t, 5, stats.Events)
	assert.Equal(t, 16, stats.Edges)
	assert.Equal(t, 5, stats.Causal)
	assert.Equal(t, 5, stats.Temporal)
	assert.Zero(t, stats.Dropped)

	assert.True(t, g.IsRelated("keydown-3", "network-request-0"))
	assert.True(t, g.IsRelated("network-request-0", "network-request-1"))
	assert.True(t, g.IsRelated("click-9", "network-request-10"))

	preflight := 0
	for _, e := range g.Edges {
		switch e.Kind {
		case EdgeTemporal:
			assert.True(t, e.Dashed, e.ID)
		case EdgeCausal:
			assert.False(t, e.Dashed, e.ID)
		default:
			if e.Dashed {
				preflight++
				assert.Equal(t, "network-request-0", e.Target)
			}
		}
	}
	assert.Equal(t, 1, preflight)

	assert.Equal(t,
		[]telemetry.EventType{telemetry.TypeClick, telemetry.TypeKeydown, telemetry.TypeNetworkRequest, telemetry.TypeError},
		g.EventTypes(),
	)
}

func TestBuild_Empty(t *testing.T) {
	g := NewBuilder(0, nil).Build(nil)

	assert.True(t, g.IsEmpty())
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)
}

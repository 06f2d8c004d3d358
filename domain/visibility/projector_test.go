package visibility

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"clickchain/domain/graph"
	"clickchain/domain/telemetry"
	"clickchain/domain/timeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph(t *testing.T) (*graph.Graph, *timeline.Index) {
	t.Helper()
	data, err := os.ReadFile("../telemetry/testdata/sample_logs.json")
	require.NoError(t, err)
	raws, err := telemetry.DecodeBatch(data)
	require.NoError(t, err)
	g := graph.NewBuilder(0, nil).Build(telemetry.NewNormalizer(nil).Normalize(raws).Events)
	return g, timeline.NewIndex(g, timeline.DefaultMarkerCount)
}

func positions() []float64 {
	out := make([]float64, 0, 201)
	for p := 0.0; p <= 100; p += 0.5 {
		out = append(out, p)
	}
	return out
}

func filters() []Filter {
	return []Filter{
		NewFilter(),
		NewFilter(telemetry.TypeClick),
		NewFilter(telemetry.TypeNetworkRequest, telemetry.TypeError),
		NewFilter("scroll"),
	}
}

func TestProject_Monotonic(t *testing.T) {
	g, ix := sampleGraph(t)

	for _, f := range filters() {
		p := NewProjector()
		p.SetFilter(f)

		prev := map[string]bool{}
		for _, pos := range positions() {
			state := p.Project(g, ix, pos)
			for id := range prev {
				assert.Contains(t, state.VisibleNodeIDs(), id, "node %s disappeared at %v", id, pos)
			}
			prev = map[string]bool{}
			for _, id := range state.VisibleNodeIDs() {
				prev[id] = true
			}
		}
	}
}

func TestProject_EdgeConsistency(t *testing.T) {
	g, ix := sampleGraph(t)

	for _, f := range filters() {
		p := NewProjector()
		p.SetFilter(f)
		for _, pos := range positions() {
			state := p.Project(g, ix, pos)
			visible := map[string]bool{}
			for _, n := range state.Nodes {
				visible[n.ID] = n.Visible
			}
			for _, e := range state.Edges {
				assert.Equal(t, visible[e.Source] && visible[e.Target], e.Visible)
			}
		}
	}
}

func TestProject_DomainAlwaysVisible(t *testing.T) {
	g, ix := sampleGraph(t)
	p := NewProjector()
	p.ToggleType(telemetry.TypeClick)

	for _, pos := range []float64{0, 10, 100} {
		state := p.Project(g, ix, pos)
		for i, n := range g.Nodes {
			if n.IsDomain() {
				assert.True(t, state.Nodes[i].Visible)
				assert.Equal(t, 1.0, state.Nodes[i].Opacity)
			}
		}
	}
}

func TestProject_Idempotent(t *testing.T) {
	g, ix := sampleGraph(t)
	p := NewProjector()
	p.ToggleType(telemetry.TypeNetworkRequest)

	first, err := json.Marshal(p.Project(g, ix, 37.5))
	require.NoError(t, err)
	second, err := json.Marshal(p.Project(g, ix, 37.5))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestProject_Counts(t *testing.T) {
	g, ix := sampleGraph(t)
	p := NewProjector()

	start := p.Project(g, ix, 0)
	assert.Equal(t, Counts{Total: 11, Visible: 1}, start.Counts)
	require.NotNil(t, start.Cutoff)
	lo, _, _ := ix.Range()
	assert.Equal(t, lo, *start.Cutoff)

	end := p.Project(g, ix, 100)
	assert.Equal(t, Counts{Total: 11, Visible: 11}, end.Counts)

	p.ToggleType(telemetry.TypeClick)
	clicks := p.Project(g, ix, 100)
	assert.Equal(t, Counts{Total: 11, Visible: 3}, clicks.Counts)
	assert.Equal(t, []telemetry.EventType{telemetry.TypeClick}, clicks.Filter)

	p.ClearFilter()
	assert.Equal(t, end.Counts, p.Project(g, ix, 100).Counts)
}

func TestProject_CutoffIsInclusive(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []telemetry.LogEvent{
		{Index: 0, Type: telemetry.TypeClick, Timestamp: t0, Payload: telemetry.Click{}},
		{Index: 1, Type: telemetry.TypeError, Timestamp: t0.Add(4 * time.Second), Payload: telemetry.Failure{}},
	}
	g := graph.NewBuilder(0, nil).Build(events)
	ix := timeline.NewIndex(g, 5)
	p := NewProjector()

	assert.Equal(t, []string{"click-0"}, p.Project(g, ix, 99.9).VisibleNodeIDs())
	assert.Equal(t, []string{"click-0", "error-1"}, p.Project(g, ix, 100).VisibleNodeIDs())
}

func TestProject_EmptyGraph(t *testing.T) {
	g := graph.NewBuilder(0, nil).Build(nil)
	ix := timeline.NewIndex(g, 5)

	state := NewProjector().Project(g, ix, 50)

	assert.Nil(t, state.Cutoff)
	assert.Empty(t, state.Nodes)
	assert.Equal(t, Counts{}, state.Counts)

	assert.Empty(t, NewProjector().Project(nil, nil, 50).Nodes)
}

func TestFilter(t *testing.T) {
	f := NewFilter()
	assert.True(t, f.Allows(telemetry.TypeClick))

	assert.True(t, f.Toggle(telemetry.TypeError))
	assert.True(t, f.Toggle(telemetry.TypeClick))
	assert.Equal(t, []telemetry.EventType{telemetry.TypeClick, telemetry.TypeError}, f.Types())
	assert.False(t, f.Allows(telemetry.TypeKeydown))

	clone := f.Clone()
	assert.False(t, f.Toggle(telemetry.TypeError))
	assert.True(t, clone.Contains(telemetry.TypeError))

	f.Clear()
	assert.True(t, f.Empty())

	var zero Filter
	assert.True(t, zero.Toggle("scroll"))
}

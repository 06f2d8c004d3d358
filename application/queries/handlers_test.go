package queries

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"clickchain/application/queries/bus"
	"clickchain/application/session"
	"clickchain/domain/telemetry"
	pkgerrors "clickchain/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingMetrics struct {
	calls int
}

func (m *countingMetrics) ObserveDispatch(string, string, time.Duration, error) {
	m.calls++
}

func setup(t *testing.T) (*bus.QueryBus, *countingMetrics) {
	t.Helper()
	manager := session.NewManager(nil, nil, nil, nil)
	ctx := context.Background()
	_, err := manager.CreateWithID(ctx, "demo")
	require.NoError(t, err)

	data, err := os.ReadFile("../../domain/telemetry/testdata/sample_logs.json")
	require.NoError(t, err)
	raws, err := telemetry.DecodeBatch(data)
	require.NoError(t, err)
	_, err = manager.Load(ctx, "demo", raws)
	require.NoError(t, err)

	metrics := &countingMetrics{}
	b := bus.NewQueryBus(bus.NewLoggingMiddleware(zap.NewNop()), bus.NewMetricsMiddleware(metrics))
	require.NoError(t, NewSessionQueryHandler(manager).Register(b))
	return b, metrics
}

func TestQueries(t *testing.T) {
	b, metrics := setup(t)
	ctx := context.Background()

	t.Run("frame without graph", func(t *testing.T) {
		result, err := b.Ask(ctx, GetFrameQuery{SessionID: "demo"})
		require.NoError(t, err)
		frame := result.(*session.Frame)
		assert.Nil(t, frame.Graph)
		assert.Len(t, frame.Markers, 5)
		assert.Equal(t, 11, frame.Counts.Total)
	})

	t.Run("frame with graph", func(t *testing.T) {
		result, err := b.Ask(ctx, GetFrameQuery{SessionID: "demo", IncludeGraph: true})
		require.NoError(t, err)
		assert.NotNil(t, result.(*session.Frame).Graph)
	})

	t.Run("graph", func(t *testing.T) {
		result, err := b.Ask(ctx, GetGraphQuery{SessionID: "demo"})
		require.NoError(t, err)
		graphResult := result.(*GetGraphResult)
		assert.Equal(t, 12, graphResult.Stats.Nodes)
		assert.Empty(t, graphResult.Rejected)
	})

	t.Run("related nodes", func(t *testing.T) {
		result, err := b.Ask(ctx, GetRelatedNodesQuery{SessionID: "demo", NodeID: "click-9"})
		require.NoError(t, err)
		related := result.(*GetRelatedNodesResult)
		assert.Equal(t, []string{"click-9", "network-request-10", "network-request-8"}, related.Related)
		require.Len(t, related.Nodes, 2)
		assert.Equal(t, "network-request-8", related.Nodes[0].ID)
		assert.Equal(t, "network-request-10", related.Nodes[1].ID)
	})

	t.Run("search with limit", func(t *testing.T) {
		result, err := b.Ask(ctx, SearchEventsQuery{SessionID: "demo", Query: "GET", Limit: 2})
		require.NoError(t, err)
		search := result.(*SearchEventsResult)
		assert.Equal(t, 3, search.Total)
		assert.Len(t, search.Events, 2)
		assert.Len(t, search.EventTypes, 4)
	})

	t.Run("list", func(t *testing.T) {
		result, err := b.Ask(ctx, ListSessionsQuery{})
		require.NoError(t, err)
		assert.Len(t, result.(*ListSessionsResult).Sessions, 1)
	})

	assert.Equal(t, 6, metrics.calls)
}

func TestQueries_Errors(t *testing.T) {
	b, _ := setup(t)
	ctx := context.Background()

	_, err := b.Ask(ctx, GetFrameQuery{})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = b.Ask(ctx, GetFrameQuery{SessionID: "other"})
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = b.Ask(ctx, GetRelatedNodesQuery{SessionID: "demo", NodeID: "click-99"})
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = b.Ask(ctx, SearchEventsQuery{SessionID: "demo", Limit: -1})
	assert.True(t, pkgerrors.IsValidation(err))
}

func clickThenRequest(gap time.Duration, withRejected bool) []telemetry.RawEvent {
	t0 := time.Date(2025, 5, 19, 10, 0, 0, 0, time.UTC)
	raws := []telemetry.RawEvent{
		{Type: "click", Timestamp: telemetry.RawTime(t0.Format(time.RFC3339Nano)), Data: map[string]any{"tagName": "BUTTON"}},
		{Type: "network-request", Timestamp: telemetry.RawTime(t0.Add(gap).Format(time.RFC3339Nano)),
			Data: map[string]any{"url": "https://a.example/api", "method": "GET", "status": 200}},
	}
	if withRejected {
		raws = append(raws, telemetry.RawEvent{Type: "click", Timestamp: "yesterday"})
	}
	return raws
}

func TestQueries_ConsistentDuringReload(t *testing.T) {
	manager := session.NewManager(nil, nil, nil, nil)
	t.Cleanup(manager.Close)
	ctx := context.Background()
	_, err := manager.CreateWithID(ctx, "live")
	require.NoError(t, err)

	linked := clickThenRequest(500*time.Millisecond, false)
	apart := clickThenRequest(9*time.Second, true)
	_, err = manager.Load(ctx, "live", linked)
	require.NoError(t, err)

	b := bus.NewQueryBus()
	require.NoError(t, NewSessionQueryHandler(manager).Register(b))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			batch := linked
			if i%2 == 1 {
				batch = apart
			}
			_, _ = manager.Load(ctx, "live", batch)
		}
	}()

	for i := 0; i < 2000; i++ {
		result, err := b.Ask(ctx, GetRelatedNodesQuery{SessionID: "live", NodeID: "click-0"})
		require.NoError(t, err)
		related := result.(*GetRelatedNodesResult)
		require.Len(t, related.Related, len(related.Nodes)+1, "related %v nodes %d", related.Related, len(related.Nodes))

		result, err = b.Ask(ctx, GetGraphQuery{SessionID: "live"})
		require.NoError(t, err)
		graphResult := result.(*GetGraphResult)
		if graphResult.Stats.Causal == 1 {
			require.Empty(t, graphResult.Rejected)
		} else {
			require.Len(t, graphResult.Rejected, 1)
		}
	}
	close(done)
	wg.Wait()
}

package toolserver

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"clickchain/application/commands"
	"clickchain/application/commands/bus"
	"clickchain/application/queries"
	querybus "clickchain/application/queries/bus"
	"clickchain/application/session"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const samplePath = "../../domain/telemetry/testdata/sample_logs.json"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()
	manager := session.NewManager(nil, nil, nil, logger)
	t.Cleanup(manager.Close)

	commandBus := bus.NewCommandBus()
	require.NoError(t, commands.NewSessionHandler(manager, logger).Register(commandBus))
	queryBus := querybus.NewQueryBus()
	require.NoError(t, queries.NewSessionQueryHandler(manager).Register(queryBus))

	return New(commandBus, queryBus, "test", logger)
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func TestLoadEvents(t *testing.T) {
	data, err := os.ReadFile(samplePath)
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    LoadEventsArgs
		wantErr bool
	}{
		{"from path", LoadEventsArgs{SessionID: "demo", Path: samplePath}, false},
		{"inline", LoadEventsArgs{SessionID: "demo", Events: string(data)}, false},
		{"no input", LoadEventsArgs{SessionID: "demo"}, true},
		{"missing file", LoadEventsArgs{SessionID: "demo", Path: "/nonexistent/logs.json"}, true},
		{"garbage", LoadEventsArgs{SessionID: "demo", Events: "{not json"}, true},
		{"no session id", LoadEventsArgs{Path: samplePath}, true},
	}

	s := newTestServer(t)
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := s.loadEvents(ctx, nil, tt.args)
			require.NoError(t, err)
			if tt.wantErr {
				assert.True(t, result.IsError)
				return
			}
			out := decode(t, result)
			assert.Equal(t, "demo", out["session_id"])
			stats := out["stats"].(map[string]any)
			assert.EqualValues(t, 12, stats["nodes"])
		})
	}
}

func TestRelatedNodesAndFrameAt(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, _, err := s.loadEvents(ctx, nil, LoadEventsArgs{SessionID: "demo", Path: samplePath})
	require.NoError(t, err)
	require.False(t, result.IsError)

	t.Run("related nodes", func(t *testing.T) {
		result, _, err := s.relatedNodes(ctx, nil, RelatedNodesArgs{SessionID: "demo", NodeID: "click-9"})
		require.NoError(t, err)
		out := decode(t, result)
		assert.Equal(t, []any{"click-9", "network-request-10", "network-request-8"}, out["related"])
	})

	t.Run("unknown node", func(t *testing.T) {
		result, _, err := s.relatedNodes(ctx, nil, RelatedNodesArgs{SessionID: "demo", NodeID: "click-99"})
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("frame at end shows everything", func(t *testing.T) {
		end := 100.0
		result, _, err := s.frameAt(ctx, nil, FrameAtArgs{SessionID: "demo", Position: &end})
		require.NoError(t, err)
		out := decode(t, result)
		assert.EqualValues(t, 100, out["position"])
		counts := out["counts"].(map[string]any)
		assert.Equal(t, counts["total"], counts["visible"])
	})

	t.Run("frame at start hides later nodes", func(t *testing.T) {
		start := 0.0
		result, _, err := s.frameAt(ctx, nil, FrameAtArgs{SessionID: "demo", Position: &start})
		require.NoError(t, err)
		counts := decode(t, result)["counts"].(map[string]any)
		assert.Less(t, counts["visible"].(float64), counts["total"].(float64))
	})

	t.Run("frame keeps position when omitted", func(t *testing.T) {
		result, _, err := s.frameAt(ctx, nil, FrameAtArgs{SessionID: "demo"})
		require.NoError(t, err)
		assert.EqualValues(t, 0, decode(t, result)["position"])
	})

	t.Run("search", func(t *testing.T) {
		result, _, err := s.searchEvents(ctx, nil, SearchEventsArgs{SessionID: "demo", Query: "GET", Limit: 2})
		require.NoError(t, err)
		out := decode(t, result)
		assert.EqualValues(t, 3, out["total"])
		assert.Len(t, out["events"], 2)
	})

	t.Run("list", func(t *testing.T) {
		result, _, err := s.listSessions(ctx, nil, ListSessionsArgs{})
		require.NoError(t, err)
		assert.Len(t, decode(t, result)["sessions"], 1)
	})
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	pos := 10.0
	result, _, err := s.frameAt(ctx, nil, FrameAtArgs{SessionID: "missing", Position: &pos})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, _, err = s.relatedNodes(ctx, nil, RelatedNodesArgs{SessionID: "missing", NodeID: "click-1"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

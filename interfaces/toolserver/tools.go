package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"clickchain/application/commands"
	"clickchain/application/queries"
	"clickchain/application/session"
	"clickchain/domain/telemetry"
	pkgerrors "clickchain/pkg/errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

type LoadEventsArgs struct {
	SessionID string `json:"session_id" jsonschema:"The session to load into. Created when it does not exist."`
	Path      string `json:"path,omitempty" jsonschema:"Absolute path of a log file, JSON array or NDJSON"`
	Events    string `json:"events,omitempty" jsonschema:"Inline log batch, JSON array or NDJSON. Used when path is empty."`
}

type RelatedNodesArgs struct {
	SessionID string `json:"session_id" jsonschema:"The session to query"`
	NodeID    string `json:"node_id" jsonschema:"The node whose neighbourhood is returned"`
}

type FrameAtArgs struct {
	SessionID string   `json:"session_id" jsonschema:"The session to query"`
	Position  *float64 `json:"position,omitempty" jsonschema:"Playback position from 0 to 100. The current position is kept when omitted."`
}

type SearchEventsArgs struct {
	SessionID string `json:"session_id" jsonschema:"The session to search"`
	Query     string `json:"query" jsonschema:"Substring matched against URL, event type and method"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of events returned"`
}

type ListSessionsArgs struct{}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "load_events",
		Description: "Loads a browser log batch into a session and rebuilds its interaction graph",
	}, s.loadEvents)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "related_nodes",
		Description: "Returns a node together with every node directly connected to it",
	}, s.relatedNodes)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "frame_at",
		Description: "Seeks playback to a position and returns what is visible there",
	}, s.frameAt)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "search_events",
		Description: "Searches a session's events by URL, type or method",
	}, s.searchEvents)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_sessions",
		Description: "Lists the live sessions",
	}, s.listSessions)
}

func (s *Server) loadEvents(ctx context.Context, req *mcp.CallToolRequest, args LoadEventsArgs) (*mcp.CallToolResult, any, error) {
	var data []byte
	switch {
	case args.Path != "":
		b, err := os.ReadFile(args.Path)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to read %s: %v", args.Path, err)), nil, nil
		}
		data = b
	case args.Events != "":
		data = []byte(args.Events)
	default:
		return errorResult("Either path or events is required"), nil, nil
	}

	raws, err := telemetry.DecodeBatch(data)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to decode log batch: %v", err)), nil, nil
	}

	err = s.commands.Send(ctx, commands.CreateSessionCommand{SessionID: args.SessionID})
	if err != nil && !pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict) {
		return errorResult(err.Error()), nil, nil
	}
	if err := s.commands.Send(ctx, commands.LoadEventsCommand{SessionID: args.SessionID, Events: raws}); err != nil {
		return errorResult(err.Error()), nil, nil
	}

	result, err := s.queries.Ask(ctx, queries.GetGraphQuery{SessionID: args.SessionID})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	graphResult := result.(*queries.GetGraphResult)
	s.logger.Debug("Loaded events via tool",
		zap.String("session_id", args.SessionID),
		zap.Int("events", len(raws)),
	)

	summary := map[string]any{
		"session_id": args.SessionID,
		"events":     len(raws),
		"rejected":   len(graphResult.Rejected),
		"stats":      graphResult.Stats,
	}
	return jsonResult(summary), nil, nil
}

func (s *Server) relatedNodes(ctx context.Context, req *mcp.CallToolRequest, args RelatedNodesArgs) (*mcp.CallToolResult, any, error) {
	result, err := s.queries.Ask(ctx, queries.GetRelatedNodesQuery{SessionID: args.SessionID, NodeID: args.NodeID})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return jsonResult(result), nil, nil
}

func (s *Server) frameAt(ctx context.Context, req *mcp.CallToolRequest, args FrameAtArgs) (*mcp.CallToolResult, any, error) {
	if args.Position != nil {
		err := s.commands.Send(ctx, commands.ControlPlaybackCommand{
			SessionID: args.SessionID,
			Action:    commands.ActionSeek,
			Position:  args.Position,
		})
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
	}

	result, err := s.queries.Ask(ctx, queries.GetFrameQuery{SessionID: args.SessionID})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	frame := result.(*session.Frame)

	view := map[string]any{
		"position": frame.Playback.Position,
		"cutoff":   frame.Cutoff,
		"filter":   frame.Visibility.Filter,
		"visible":  frame.Visibility.VisibleNodeIDs(),
		"counts":   frame.Counts,
		"markers":  frame.Markers,
	}
	return jsonResult(view), nil, nil
}

func (s *Server) searchEvents(ctx context.Context, req *mcp.CallToolRequest, args SearchEventsArgs) (*mcp.CallToolResult, any, error) {
	result, err := s.queries.Ask(ctx, queries.SearchEventsQuery{
		SessionID: args.SessionID,
		Query:     args.Query,
		Limit:     args.Limit,
	})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return jsonResult(result), nil, nil
}

func (s *Server) listSessions(ctx context.Context, req *mcp.CallToolRequest, args ListSessionsArgs) (*mcp.CallToolResult, any, error) {
	result, err := s.queries.Ask(ctx, queries.ListSessionsQuery{})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return jsonResult(result), nil, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return textResult(string(jsonBytes))
}

package queries

import (
	"context"
	"fmt"

	"clickchain/application/queries/bus"
	"clickchain/application/session"
)

// SessionQueryHandler answers every session query against a Manager
type SessionQueryHandler struct {
	sessions *session.Manager
}

// NewSessionQueryHandler creates a new handler instance
func NewSessionQueryHandler(sessions *session.Manager) *SessionQueryHandler {
	return &SessionQueryHandler{sessions: sessions}
}

// Register binds the handler to each query type it serves
func (h *SessionQueryHandler) Register(b *bus.QueryBus) error {
	registrations := []struct {
		query   bus.Query
		handler bus.QueryHandlerFunc
	}{
		{GetFrameQuery{}, h.handleGetFrame},
		{GetGraphQuery{}, h.handleGetGraph},
		{GetRelatedNodesQuery{}, h.handleGetRelated},
		{SearchEventsQuery{}, h.handleSearch},
		{ListSessionsQuery{}, h.handleList},
	}
	for _, r := range registrations {
		if err := b.Register(r.query, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func (h *SessionQueryHandler) handleGetFrame(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(GetFrameQuery)
	if !ok {
		return nil, fmt.Errorf("%w: %T", bus.ErrUnexpectedType, q)
	}
	s, err := h.sessions.Get(query.SessionID)
	if err != nil {
		return nil, err
	}
	frame := s.Frame()
	if !query.IncludeGraph {
		frame.Graph = nil
	}
	return &frame, nil
}

func (h *SessionQueryHandler) handleGetGraph(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(GetGraphQuery)
	if !ok {
		return nil, fmt.Errorf("%w: %T", bus.ErrUnexpectedType, q)
	}
	s, err := h.sessions.Get(query.SessionID)
	if err != nil {
		return nil, err
	}
	g, rejected := s.Snapshot()
	return &GetGraphResult{
		Graph:    g,
		Stats:    g.Stats(),
		Rejected: rejected,
	}, nil
}

func (h *SessionQueryHandler) handleGetRelated(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(GetRelatedNodesQuery)
	if !ok {
		return nil, fmt.Errorf("%w: %T", bus.ErrUnexpectedType, q)
	}
	s, err := h.sessions.Get(query.SessionID)
	if err != nil {
		return nil, err
	}
	related, nodes, err := s.Neighbourhood(query.NodeID)
	if err != nil {
		return nil, err
	}
	return &GetRelatedNodesResult{
		NodeID:  query.NodeID,
		Related: related,
		Nodes:   nodes,
	}, nil
}

func (h *SessionQueryHandler) handleSearch(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(SearchEventsQuery)
	if !ok {
		return nil, fmt.Errorf("%w: %T", bus.ErrUnexpectedType, q)
	}
	s, err := h.sessions.Get(query.SessionID)
	if err != nil {
		return nil, err
	}
	matches, types := s.SearchWithTypes(query.Query)
	result := &SearchEventsResult{
		Events:     matches,
		Total:      len(matches),
		EventTypes: types,
	}
	if query.Limit > 0 && len(matches) > query.Limit {
		result.Events = matches[:query.Limit]
	}
	return result, nil
}

func (h *SessionQueryHandler) handleList(ctx context.Context, q bus.Query) (interface{}, error) {
	return &ListSessionsResult{Sessions: h.sessions.List()}, nil
}

package queries

import (
	"clickchain/application/session"
	"clickchain/domain/graph"
	"clickchain/domain/telemetry"
	pkgerrors "clickchain/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func validateStruct(q interface{}) error {
	if err := validate.Struct(q); err != nil {
		return pkgerrors.NewValidationError(err.Error()).WithCause(err)
	}
	return nil
}

// GetFrameQuery retrieves the current frame of a session
type GetFrameQuery struct {
	SessionID    string `json:"session_id" validate:"required"`
	IncludeGraph bool   `json:"include_graph"`
}

func (q GetFrameQuery) Validate() error { return validateStruct(q) }

// GetGraphQuery retrieves the built graph of a session
type GetGraphQuery struct {
	SessionID string `json:"session_id" validate:"required"`
}

func (q GetGraphQuery) Validate() error { return validateStruct(q) }

// GetGraphResult is the graph with its diagnostics
type GetGraphResult struct {
	Graph    *graph.Graph          `json:"graph"`
	Stats    graph.Stats           `json:"stats"`
	Rejected []telemetry.Rejection `json:"rejected"`
}

// GetRelatedNodesQuery retrieves the neighbourhood of a node
type GetRelatedNodesQuery struct {
	SessionID string `json:"session_id" validate:"required"`
	NodeID    string `json:"node_id" validate:"required"`
}

func (q GetRelatedNodesQuery) Validate() error { return validateStruct(q) }

// GetRelatedNodesResult lists the related ids and the neighbour nodes
type GetRelatedNodesResult struct {
	NodeID  string        `json:"node_id"`
	Related []string      `json:"related"`
	Nodes   []*graph.Node `json:"nodes"`
}

// SearchEventsQuery searches a session's events by URL, type or method
type SearchEventsQuery struct {
	SessionID string `json:"session_id" validate:"required"`
	Query     string `json:"query" validate:"max=256"`
	Limit     int    `json:"limit" validate:"min=0,max=10000"`
}

func (q SearchEventsQuery) Validate() error { return validateStruct(q) }

// SearchEventsResult holds the matching events
type SearchEventsResult struct {
	Events     []telemetry.LogEvent  `json:"events"`
	Total      int                   `json:"total"`
	EventTypes []telemetry.EventType `json:"event_types"`
}

// ListSessionsQuery lists live sessions
type ListSessionsQuery struct{}

func (q ListSessionsQuery) Validate() error { return nil }

// ListSessionsResult holds the session summaries
type ListSessionsResult struct {
	Sessions []session.Summary `json:"sessions"`
}

package handlers

import (
	"io"
	"net/http"
	"strconv"

	"clickchain/application/commands"
	"clickchain/application/commands/bus"
	"clickchain/application/queries"
	querybus "clickchain/application/queries/bus"
	"clickchain/domain/telemetry"
	"clickchain/pkg/auth"
	"clickchain/pkg/common"
	pkgerrors "clickchain/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxBatchBytes   = 32 << 20
	maxControlBytes = 4 << 10
)

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	logger     *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		logger:     logger,
	}
}

// CreateSessionRequest is the optional body of POST /sessions
type CreateSessionRequest struct {
	ID string `json:"id"`
}

// PlaybackRequest is the body of POST /sessions/{sessionID}/playback
type PlaybackRequest struct {
	Action   string   `json:"action"`
	Position *float64 `json:"position,omitempty"`
}

// FilterRequest is the body of POST /sessions/{sessionID}/filter
type FilterRequest struct {
	Type  string `json:"type"`
	Clear bool   `json:"clear"`
}

// CreateSession handles POST /sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength > 0 {
		if err := common.ParseJSONBody(w, r, &req, maxControlBytes); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	if err := h.commandBus.Send(r.Context(), commands.CreateSessionCommand{SessionID: req.ID}); err != nil {
		h.respondError(w, r, err)
		return
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		h.logger.Info("Session created by user",
			zap.String("session_id", req.ID),
			zap.String("user_id", claims.UserID),
			zap.Strings("roles", claims.Roles),
		)
	}
	w.Header().Set("Location", "/api/v1/sessions/"+req.ID)
	common.RespondJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// ListSessions handles GET /sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.ListSessionsQuery{})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, result)
}

// DeleteSession handles DELETE /sessions/{sessionID}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	cmd := commands.DeleteSessionCommand{SessionID: chi.URLParam(r, "sessionID")}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadEvents handles PUT /sessions/{sessionID}/events. The body is a JSON
// array of events or newline-delimited JSON.
func (h *SessionHandler) LoadEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err != nil {
		common.RespondError(w, http.StatusRequestEntityTooLarge, common.StandardErrorCodes.PayloadTooLarge, "log batch too large")
		return
	}
	raws, err := telemetry.DecodeBatch(body)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.commandBus.Send(r.Context(), commands.LoadEventsCommand{SessionID: sessionID, Events: raws}); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondFrame(w, r, sessionID, false)
}

// GetFrame handles GET /sessions/{sessionID}/frame
func (h *SessionHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	includeGraph, _ := strconv.ParseBool(r.URL.Query().Get("graph"))
	h.respondFrame(w, r, chi.URLParam(r, "sessionID"), includeGraph)
}

// GetGraph handles GET /sessions/{sessionID}/graph
func (h *SessionHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetGraphQuery{SessionID: chi.URLParam(r, "sessionID")})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, result)
}

// GetRelatedNodes handles GET /sessions/{sessionID}/nodes/{nodeID}/related
func (h *SessionHandler) GetRelatedNodes(w http.ResponseWriter, r *http.Request) {
	query := queries.GetRelatedNodesQuery{
		SessionID: chi.URLParam(r, "sessionID"),
		NodeID:    chi.URLParam(r, "nodeID"),
	}
	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, result)
}

// SearchEvents handles GET /sessions/{sessionID}/events?q=&limit=
func (h *SessionHandler) SearchEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, r, pkgerrors.NewValidationError("limit must be an integer"))
			return
		}
		limit = n
	}

	query := queries.SearchEventsQuery{
		SessionID: chi.URLParam(r, "sessionID"),
		Query:     r.URL.Query().Get("q"),
		Limit:     limit,
	}
	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, result)
}

// ControlPlayback handles POST /sessions/{sessionID}/playback
func (h *SessionHandler) ControlPlayback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req PlaybackRequest
	if err := common.ParseJSONBody(w, r, &req, maxControlBytes); err != nil {
		h.respondError(w, r, err)
		return
	}

	cmd := commands.ControlPlaybackCommand{
		SessionID: sessionID,
		Action:    commands.PlaybackAction(req.Action),
		Position:  req.Position,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondFrame(w, r, sessionID, false)
}

// ToggleFilter handles POST /sessions/{sessionID}/filter
func (h *SessionHandler) ToggleFilter(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req FilterRequest
	if err := common.ParseJSONBody(w, r, &req, maxControlBytes); err != nil {
		h.respondError(w, r, err)
		return
	}

	cmd := commands.ToggleFilterCommand{SessionID: sessionID, EventType: req.Type, Clear: req.Clear}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondFrame(w, r, sessionID, false)
}

func (h *SessionHandler) respondFrame(w http.ResponseWriter, r *http.Request, sessionID string, includeGraph bool) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetFrameQuery{SessionID: sessionID, IncludeGraph: includeGraph})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondWithMeta(w, r, http.StatusOK, result)
}

func (h *SessionHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if status := pkgerrors.HTTPStatus(err); status >= http.StatusInternalServerError {
		requestID, _ := common.GetRequestID(r.Context())
		userID, _ := common.GetUserID(r.Context())
		h.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	common.RespondAppError(w, err)
}

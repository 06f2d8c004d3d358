package websocket

import (
	"net/http"

	"clickchain/pkg/common"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ServerConfig holds WebSocket server configuration
type ServerConfig struct {
	ReadBufferSize           int
	WriteBufferSize          int
	CheckOrigin              func(r *http.Request) bool
	MaxConnectionsPerSession int
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:           1024,
		WriteBufferSize:          4096,
		MaxConnectionsPerSession: 32,
	}
}

// Server upgrades HTTP requests into session streams
type Server struct {
	hub      *Hub
	commands CommandSender
	upgrader websocket.Upgrader
	config   *ServerConfig
	logger   *zap.Logger
}

// NewServer creates a new WebSocket server
func NewServer(hub *Hub, commands CommandSender, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		hub:      hub,
		commands: commands,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		logger: logger,
	}
}

// HandleWebSocket handles GET /sessions/{sessionID}/stream
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := s.hub.sessions.Get(sessionID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	if s.hub.GetConnectionCount(sessionID) >= s.config.MaxConnectionsPerSession {
		s.logger.Warn("Connection limit exceeded for session",
			zap.String("sessionID", sessionID),
		)
		common.RespondError(w, http.StatusTooManyRequests, "TOO_MANY_CONNECTIONS", "Connection limit exceeded")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(sessionID, s.hub, conn, s.commands, s.logger)
	client.Start()

	s.logger.Info("New WebSocket connection established",
		zap.String("sessionID", sessionID),
		zap.String("connectionID", client.GetID()),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

// GetHub returns the hub behind the server
func (s *Server) GetHub() *Hub {
	return s.hub
}

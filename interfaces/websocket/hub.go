package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"clickchain/application/session"

	"go.uber.org/zap"
)

// Message types sent to clients
const (
	MessageFrame     = "FRAME"
	MessageError     = "ERROR"
	MessageConnected = "CONNECTION_ESTABLISHED"
)

// SessionLookup finds the session a client streams
type SessionLookup interface {
	Get(id string) (*session.Session, error)
}

// Hub maintains active WebSocket connections grouped by session and fans out
// each session's frames to its clients
type Hub struct {
	sessions SessionLookup

	// Session connections - one session can have many viewers
	connections   map[string]map[*Client]bool
	subscriptions map[string]*subscription
	mu            sync.RWMutex

	// Channels for client management
	register   chan *Client
	unregister chan *Client

	// Message broadcasting
	broadcast chan *BroadcastMessage

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	metrics HubMetrics
}

// subscription is the hub's frame feed from one session
type subscription struct {
	session     *session.Session
	unsubscribe func()
	stop        chan struct{}
}

func (sub *subscription) cancel() {
	sub.unsubscribe()
	close(sub.stop)
}

// HubMetrics tracks WebSocket metrics
type HubMetrics struct {
	ActiveConnections atomic.Int64
	MessagesSent      atomic.Int64
	MessagesDropped   atomic.Int64
}

// HubStats is a point-in-time copy of HubMetrics
type HubStats struct {
	ActiveConnections int64 `json:"activeConnections"`
	MessagesSent      int64 `json:"messagesSent"`
	MessagesDropped   int64 `json:"messagesDropped"`
}

// BroadcastMessage represents a message for every client of a session
type BroadcastMessage struct {
	SessionID string          `json:"-"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// NewHub creates a new WebSocket hub
func NewHub(sessions SessionLookup, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		sessions:      sessions,
		connections:   make(map[string]map[*Client]bool),
		subscriptions: make(map[string]*subscription),
		register:      make(chan *Client, 100),
		unregister:    make(chan *Client, 100),
		broadcast:     make(chan *BroadcastMessage, 1000),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToSession(message)
		}
	}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.logger.Info("Stopping WebSocket hub")
	h.cancel()
}

// SendToSession queues a message for every client of a session. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) SendToSession(sessionID string, messageType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	message := &BroadcastMessage{
		SessionID: sessionID,
		Type:      messageType,
		Data:      jsonData,
		Timestamp: time.Now().UnixMilli(),
	}

	select {
	case h.broadcast <- message:
		return nil
	default:
		h.metrics.MessagesDropped.Add(1)
		return fmt.Errorf("broadcast channel full, message dropped")
	}
}

// registerClient adds a client and subscribes the hub to its session on the
// first connection. The subscription lasts until the last viewer leaves or the
// session is closed.
func (h *Hub) registerClient(client *Client) {
	s, err := h.sessions.Get(client.sessionID)
	if err != nil {
		h.logger.Warn("Client registered for unknown session",
			zap.String("sessionID", client.sessionID),
		)
		client.close()
		return
	}

	h.mu.Lock()
	if h.connections[client.sessionID] == nil {
		h.connections[client.sessionID] = make(map[*Client]bool)
		sessionID := client.sessionID
		unsubscribe := s.Subscribe(func(f session.Frame) {
			if err := h.SendToSession(sessionID, MessageFrame, f); err != nil {
				h.logger.Debug("Frame dropped", zap.String("sessionID", sessionID), zap.Error(err))
			}
		})
		sub := &subscription{session: s, unsubscribe: unsubscribe, stop: make(chan struct{})}
		h.subscriptions[sessionID] = sub
		go h.watchSession(sessionID, sub)
	}
	h.connections[client.sessionID][client] = true
	count := len(h.connections[client.sessionID])
	h.mu.Unlock()

	h.metrics.ActiveConnections.Add(1)

	// The new viewer starts from the full current frame.
	client.sendMessage(MessageConnected, map[string]string{"connectionId": client.id, "sessionId": client.sessionID})
	client.sendMessage(MessageFrame, s.Frame())

	h.logger.Info("Client registered",
		zap.String("sessionID", client.sessionID),
		zap.String("connectionID", client.id),
		zap.Int("sessionConnections", count),
	)
}

// unregisterClient removes a client and drops the session subscription when
// its last viewer leaves
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.connections[client.sessionID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	remaining := len(clients)
	if remaining == 0 {
		delete(h.connections, client.sessionID)
		if sub := h.subscriptions[client.sessionID]; sub != nil {
			sub.cancel()
			delete(h.subscriptions, client.sessionID)
		}
	}
	h.mu.Unlock()

	client.close()
	h.metrics.ActiveConnections.Add(-1)

	h.logger.Info("Client unregistered",
		zap.String("sessionID", client.sessionID),
		zap.String("connectionID", client.id),
		zap.Int("remainingConnections", remaining),
	)
}

// watchSession waits for the subscribed session to close and then disconnects
// its viewers
func (h *Hub) watchSession(sessionID string, sub *subscription) {
	select {
	case <-sub.session.Done():
		h.closeSession(sessionID, sub)
	case <-sub.stop:
	case <-h.ctx.Done():
	}
}

// closeSession disconnects every client of a closed session. A subscription
// that has since been replaced is left alone.
func (h *Hub) closeSession(sessionID string, sub *subscription) {
	h.mu.Lock()
	if h.subscriptions[sessionID] != sub {
		h.mu.Unlock()
		return
	}
	clients := h.connections[sessionID]
	delete(h.connections, sessionID)
	delete(h.subscriptions, sessionID)
	sub.cancel()
	h.mu.Unlock()

	for client := range clients {
		client.close()
	}
	h.metrics.ActiveConnections.Add(-int64(len(clients)))

	h.logger.Info("Session closed, viewers disconnected",
		zap.String("sessionID", sessionID),
		zap.Int("connections", len(clients)),
	)
}

// broadcastToSession sends a message to all connections of a session
func (h *Hub) broadcastToSession(message *BroadcastMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.connections[message.SessionID]))
	for c := range h.connections[message.SessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	// Marshal once for all clients
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message",
			zap.Error(err),
			zap.String("messageType", message.Type),
		)
		return
	}

	for _, client := range clients {
		if client.trySend(data) {
			h.metrics.MessagesSent.Add(1)
			continue
		}
		h.metrics.MessagesDropped.Add(1)
		h.logger.Warn("Closing slow client",
			zap.String("sessionID", client.sessionID),
			zap.String("connectionID", client.id),
		)
		h.unregisterClient(client)
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, clients := range h.connections {
		for client := range clients {
			client.close()
		}
		if sub := h.subscriptions[sessionID]; sub != nil {
			sub.cancel()
		}
	}
	h.connections = make(map[string]map[*Client]bool)
	h.subscriptions = make(map[string]*subscription)
	h.metrics.ActiveConnections.Store(0)
}

// GetMetrics returns a copy of the hub counters
func (h *Hub) GetMetrics() HubStats {
	return HubStats{
		ActiveConnections: h.metrics.ActiveConnections.Load(),
		MessagesSent:      h.metrics.MessagesSent.Load(),
		MessagesDropped:   h.metrics.MessagesDropped.Load(),
	}
}

// GetConnectionCount returns the number of clients streaming a session
func (h *Hub) GetConnectionCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}

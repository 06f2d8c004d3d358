package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"clickchain/application/commands"
	"clickchain/application/commands/bus"
	pkgerrors "clickchain/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024

	// Send buffer size
	sendBufferSize = 64
)

// CommandSender dispatches control commands received from a client
type CommandSender interface {
	Send(ctx context.Context, cmd bus.Command) error
}

// ClientMessage is a control message sent by a viewer
type ClientMessage struct {
	Type      string   `json:"type"`
	Action    string   `json:"action,omitempty"`
	Position  *float64 `json:"position,omitempty"`
	EventType string   `json:"eventType,omitempty"`
	Clear     bool     `json:"clear,omitempty"`
}

// Client represents a WebSocket connection streaming one session
type Client struct {
	id        string
	sessionID string
	hub       *Hub
	conn      *websocket.Conn
	commands  CommandSender
	logger    *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a new WebSocket client
func NewClient(sessionID string, hub *Hub, conn *websocket.Conn, commands CommandSender, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:        id,
		sessionID: sessionID,
		hub:       hub,
		conn:      conn,
		commands:  commands,
		send:      make(chan []byte, sendBufferSize),
		logger: logger.With(
			zap.String("sessionID", sessionID),
			zap.String("connectionID", id),
		),
	}
}

// Start registers the client and begins its read and write pumps
func (c *Client) Start() {
	c.hub.register <- c

	go c.writePump()
	go c.readPump()
}

// GetID returns the client's connection ID
func (c *Client) GetID() string {
	return c.id
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client is closed.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendMessage(messageType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	message, err := json.Marshal(BroadcastMessage{
		Type:      messageType,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	if !c.trySend(message) {
		c.logger.Debug("Message dropped", zap.String("type", messageType))
	}
}

// close shuts the send channel, which makes the write pump say goodbye
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads control messages until the connection fails
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.logger.Debug("Read pump stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Warn("Binary messages not supported")
			continue
		}
		c.handleTextMessage(message)
	}
}

// writePump pumps queued messages to the connection and keeps it alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleTextMessage turns a control message into a command
func (c *Client) handleTextMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError(pkgerrors.NewValidationError("message is not valid JSON"))
		return
	}

	var cmd bus.Command
	switch msg.Type {
	case "ping":
		return
	case "playback":
		cmd = commands.ControlPlaybackCommand{
			SessionID: c.sessionID,
			Action:    commands.PlaybackAction(msg.Action),
			Position:  msg.Position,
		}
	case "filter":
		cmd = commands.ToggleFilterCommand{
			SessionID: c.sessionID,
			EventType: msg.EventType,
			Clear:     msg.Clear,
		}
	default:
		c.sendError(pkgerrors.NewValidationError("unknown message type " + msg.Type))
		return
	}

	// Resulting frames reach the client through the session subscription.
	if err := c.commands.Send(c.hub.ctx, cmd); err != nil {
		c.sendError(err)
	}
}

func (c *Client) sendError(err error) {
	info := map[string]string{"message": "internal error"}
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		info = map[string]string{"type": string(appErr.Type), "message": appErr.Message}
	}
	c.sendMessage(MessageError, info)
}

package commands

import (
	"context"
	"fmt"

	"clickchain/application/commands/bus"
	"clickchain/application/session"
	"clickchain/domain/telemetry"

	"go.uber.org/zap"
)

// SessionHandler handles every session command against a Manager
type SessionHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewSessionHandler creates a new handler instance
func NewSessionHandler(sessions *session.Manager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// Register binds the handler to each command type it serves
func (h *SessionHandler) Register(b *bus.CommandBus) error {
	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandlerFunc
	}{
		{CreateSessionCommand{}, h.handleCreate},
		{LoadEventsCommand{}, h.handleLoad},
		{ControlPlaybackCommand{}, h.handleControl},
		{ToggleFilterCommand{}, h.handleToggleFilter},
		{DeleteSessionCommand{}, h.handleDelete},
	}
	for _, r := range registrations {
		if err := b.Register(r.cmd, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func (h *SessionHandler) handleCreate(ctx context.Context, c bus.Command) error {
	cmd, ok := c.(CreateSessionCommand)
	if !ok {
		return fmt.Errorf("%w: %T", bus.ErrUnexpectedType, c)
	}
	_, err := h.sessions.CreateWithID(ctx, cmd.SessionID)
	return err
}

func (h *SessionHandler) handleLoad(ctx context.Context, c bus.Command) error {
	cmd, ok := c.(LoadEventsCommand)
	if !ok {
		return fmt.Errorf("%w: %T", bus.ErrUnexpectedType, c)
	}
	_, err := h.sessions.Load(ctx, cmd.SessionID, cmd.Events)
	return err
}

func (h *SessionHandler) handleControl(ctx context.Context, c bus.Command) error {
	cmd, ok := c.(ControlPlaybackCommand)
	if !ok {
		return fmt.Errorf("%w: %T", bus.ErrUnexpectedType, c)
	}
	s, err := h.sessions.Get(cmd.SessionID)
	if err != nil {
		return err
	}

	switch cmd.Action {
	case ActionPlay:
		if !s.Play(ctx) {
			h.logger.Debug("Play ignored at end of timeline", zap.String("session_id", cmd.SessionID))
		}
	case ActionPause:
		s.Pause()
	case ActionSeek:
		s.Seek(*cmd.Position)
	case ActionReset:
		s.Reset()
	case ActionEnd:
		s.JumpToEnd()
	case ActionSpeed:
		s.CycleSpeed()
	}
	return nil
}

func (h *SessionHandler) handleToggleFilter(ctx context.Context, c bus.Command) error {
	cmd, ok := c.(ToggleFilterCommand)
	if !ok {
		return fmt.Errorf("%w: %T", bus.ErrUnexpectedType, c)
	}
	s, err := h.sessions.Get(cmd.SessionID)
	if err != nil {
		return err
	}
	if cmd.Clear {
		s.ClearFilter()
		return nil
	}
	s.ToggleFilter(telemetry.EventType(cmd.EventType))
	return nil
}

func (h *SessionHandler) handleDelete(ctx context.Context, c bus.Command) error {
	cmd, ok := c.(DeleteSessionCommand)
	if !ok {
		return fmt.Errorf("%w: %T", bus.ErrUnexpectedType, c)
	}
	return h.sessions.Delete(ctx, cmd.SessionID)
}

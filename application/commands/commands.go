package commands

import (
	"clickchain/domain/telemetry"
	pkgerrors "clickchain/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func validateStruct(cmd interface{}) error {
	if err := validate.Struct(cmd); err != nil {
		return pkgerrors.NewValidationError(err.Error()).WithCause(err)
	}
	return nil
}

// CreateSessionCommand opens a new session. The caller chooses the id.
type CreateSessionCommand struct {
	SessionID string `json:"session_id" validate:"required,max=64"`
}

func (c CreateSessionCommand) Validate() error { return validateStruct(c) }

// LoadEventsCommand replaces a session's log batch
type LoadEventsCommand struct {
	SessionID string               `json:"session_id" validate:"required"`
	Events    []telemetry.RawEvent `json:"events"`
}

func (c LoadEventsCommand) Validate() error { return validateStruct(c) }

// PlaybackAction names a playback control
type PlaybackAction string

const (
	ActionPlay  PlaybackAction = "play"
	ActionPause PlaybackAction = "pause"
	ActionSeek  PlaybackAction = "seek"
	ActionReset PlaybackAction = "reset"
	ActionEnd   PlaybackAction = "end"
	ActionSpeed PlaybackAction = "speed"
)

// ControlPlaybackCommand drives a session's playback
type ControlPlaybackCommand struct {
	SessionID string         `json:"session_id" validate:"required"`
	Action    PlaybackAction `json:"action" validate:"required,oneof=play pause seek reset end speed"`
	Position  *float64       `json:"position,omitempty"`
}

func (c ControlPlaybackCommand) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.Action == ActionSeek && c.Position == nil {
		return pkgerrors.NewValidationError("position is required for seek")
	}
	return nil
}

// ToggleFilterCommand flips one event type in a session's filter, or clears
// the filter when Clear is set
type ToggleFilterCommand struct {
	SessionID string `json:"session_id" validate:"required"`
	EventType string `json:"event_type" validate:"required_without=Clear"`
	Clear     bool   `json:"clear"`
}

func (c ToggleFilterCommand) Validate() error { return validateStruct(c) }

// DeleteSessionCommand closes a session
type DeleteSessionCommand struct {
	SessionID string `json:"session_id" validate:"required"`
}

func (c DeleteSessionCommand) Validate() error { return validateStruct(c) }

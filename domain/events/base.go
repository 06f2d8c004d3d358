package events

import (
	"time"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Event type names
const (
	TypeSessionCreated   = "session.created"
	TypeGraphRebuilt     = "graph.rebuilt"
	TypePlaybackStarted  = "playback.started"
	TypePlaybackFinished = "playback.finished"
	TypeSessionDeleted   = "session.deleted"
)

// Session Events

// SessionCreated is raised when a new session is opened
type SessionCreated struct {
	BaseEvent
	SessionID string `json:"session_id"`
}

// NewSessionCreated creates a SessionCreated event
func NewSessionCreated(sessionID string, timestamp time.Time) SessionCreated {
	return SessionCreated{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypeSessionCreated,
			Timestamp:   timestamp,
			Version:     1,
		},
		SessionID: sessionID,
	}
}

// SessionDeleted is raised when a session is closed
type SessionDeleted struct {
	BaseEvent
	SessionID string `json:"session_id"`
}

// NewSessionDeleted creates a SessionDeleted event
func NewSessionDeleted(sessionID string, timestamp time.Time) SessionDeleted {
	return SessionDeleted{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypeSessionDeleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		SessionID: sessionID,
	}
}

// Graph Events

// GraphRebuilt is raised after a new log batch replaced a session's graph
type GraphRebuilt struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Events    int    `json:"events"`
	Rejected  int    `json:"rejected"`
	Dropped   int    `json:"dropped"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
}

// NewGraphRebuilt creates a GraphRebuilt event. Version is the session's
// load generation.
func NewGraphRebuilt(sessionID string, generation int, timestamp time.Time) GraphRebuilt {
	return GraphRebuilt{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypeGraphRebuilt,
			Timestamp:   timestamp,
			Version:     generation,
		},
		SessionID: sessionID,
	}
}

// Playback Events

// PlaybackStarted is raised when autoplay begins
type PlaybackStarted struct {
	BaseEvent
	SessionID string  `json:"session_id"`
	Position  float64 `json:"position"`
	Speed     int     `json:"speed"`
}

// NewPlaybackStarted creates a PlaybackStarted event
func NewPlaybackStarted(sessionID string, position float64, speed int, timestamp time.Time) PlaybackStarted {
	return PlaybackStarted{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypePlaybackStarted,
			Timestamp:   timestamp,
			Version:     1,
		},
		SessionID: sessionID,
		Position:  position,
		Speed:     speed,
	}
}

// PlaybackFinished is raised when autoplay reaches the end of the timeline
type PlaybackFinished struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Ticks     int    `json:"ticks"`
}

// NewPlaybackFinished creates a PlaybackFinished event
func NewPlaybackFinished(sessionID string, ticks int, timestamp time.Time) PlaybackFinished {
	return PlaybackFinished{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypePlaybackFinished,
			Timestamp:   timestamp,
			Version:     1,
		},
		SessionID: sessionID,
		Ticks:     ticks,
	}
}

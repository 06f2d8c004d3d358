// Package telemetry holds the client telemetry event model and the normalizer
// that turns a raw log batch into time-ordered, typed events.
package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// EventType tags a telemetry record. The set is open: unknown types are kept
// and handled generically.
type EventType string

const (
	TypeNetworkRequest EventType = "network-request"
	TypeClick          EventType = "click"
	TypeKeydown        EventType = "keydown"
	TypeError          EventType = "error"
)

// IsGesture reports whether the event is a direct user input.
func (t EventType) IsGesture() bool {
	return t == TypeClick || t == TypeKeydown
}

// RawTime is a timestamp exactly as supplied by the data source. JSON strings
// and JSON numbers (epoch milliseconds) are both accepted.
type RawTime string

// UnmarshalJSON implements json.Unmarshaler
func (r *RawTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawTime(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = RawTime(n.String())
	return nil
}

// RawEvent is one LogEvent as delivered by the data source.
type RawEvent struct {
	Type       string         `json:"type" validate:"required"`
	Timestamp  RawTime        `json:"timestamp" validate:"required"`
	ReceivedAt RawTime        `json:"receivedAt,omitempty"`
	Data       map[string]any `json:"data"`
}

// LogEvent is a normalized telemetry record. Index is the event's position in
// the raw batch and survives rejection of other events unchanged.
type LogEvent struct {
	Index      int            `json:"index"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Payload    Payload        `json:"-"`
	Data       map[string]any `json:"data,omitempty"`
}

// Matches reports whether the event matches a free-text search over its URL,
// type and method. An empty query matches everything.
func (e LogEvent) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(string(e.Type)), q) {
		return true
	}
	if req, ok := e.Payload.(NetworkRequest); ok {
		return strings.Contains(strings.ToLower(req.URL), q) ||
			strings.Contains(strings.ToLower(req.Method), q)
	}
	return false
}

// UniqueTypes returns the distinct event types in first-seen order.
func UniqueTypes(events []LogEvent) []EventType {
	seen := make(map[EventType]bool)
	types := make([]EventType, 0)
	for _, e := range events {
		if seen[e.Type] {
			continue
		}
		seen[e.Type] = true
		types = append(types, e.Type)
	}
	return types
}

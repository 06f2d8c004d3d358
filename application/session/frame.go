package session

import (
	"time"

	"clickchain/domain/graph"
	"clickchain/domain/playback"
	"clickchain/domain/telemetry"
	"clickchain/domain/visibility"
	pkgerrors "clickchain/pkg/errors"
)

// Frame is everything a renderer needs to draw one moment of a session.
// All fields come from the same log batch.
type Frame struct {
	SessionID   string                `json:"sessionId"`
	Generation  int                   `json:"generation"`
	Graph       *graph.Graph          `json:"graph,omitempty"`
	Markers     []time.Time           `json:"markers"`
	Cutoff      *time.Time            `json:"cutoff,omitempty"`
	Visibility  visibility.State      `json:"visibility"`
	Counts      visibility.Counts     `json:"counts"`
	Playback    playback.State        `json:"playback"`
	EventTypes  []telemetry.EventType `json:"eventTypes"`
	Stats       graph.Stats           `json:"stats"`
	Rejected    int                   `json:"rejected"`
	Diagnostics []*pkgerrors.AppError `json:"diagnostics,omitempty"`
}

// LoadResult summarizes a completed Load
type LoadResult struct {
	Generation  int                   `json:"generation"`
	Accepted    int                   `json:"accepted"`
	Rejected    []telemetry.Rejection `json:"rejected"`
	Dropped     []graph.DroppedEvent  `json:"dropped"`
	Stats       graph.Stats           `json:"stats"`
	Duration    time.Duration         `json:"duration"`
	Diagnostics []*pkgerrors.AppError `json:"diagnostics,omitempty"`
}

// Summary describes a session in listings
type Summary struct {
	ID         string    `json:"id"`
	Generation int       `json:"generation"`
	Events     int       `json:"events"`
	Nodes      int       `json:"nodes"`
	IsPlaying  bool      `json:"isPlaying"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

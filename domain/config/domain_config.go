package config

import (
	"fmt"
	"time"
)

// DomainConfig holds the tunable rules of the event graph engine
type DomainConfig struct {
	// Causality
	CausalWindow time.Duration

	// Timeline
	MarkerCount int

	// Playback
	TickPeriod   time.Duration
	PlaybackStep float64

	// Session limits
	MaxEventsPerBatch int
	MaxSessions       int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Two-second attention window between a gesture and the request it triggers
		CausalWindow: 2000 * time.Millisecond,

		MarkerCount: 5,

		TickPeriod:   50 * time.Millisecond,
		PlaybackStep: 0.5,

		MaxEventsPerBatch: 50000,
		MaxSessions:       256,
	}
}

// Validate checks that every rule is usable
func (c *DomainConfig) Validate() error {
	if c.CausalWindow <= 0 {
		return fmt.Errorf("causal window must be positive, got %s", c.CausalWindow)
	}
	if c.MarkerCount < 2 {
		return fmt.Errorf("marker count must be at least 2, got %d", c.MarkerCount)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick period must be positive, got %s", c.TickPeriod)
	}
	if c.PlaybackStep <= 0 || c.PlaybackStep > 100 {
		return fmt.Errorf("playback step must be in (0,100], got %v", c.PlaybackStep)
	}
	if c.MaxEventsPerBatch <= 0 {
		return fmt.Errorf("max events per batch must be positive, got %d", c.MaxEventsPerBatch)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive, got %d", c.MaxSessions)
	}
	return nil
}

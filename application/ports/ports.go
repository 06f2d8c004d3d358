package ports

import (
	"context"
	"time"

	"clickchain/domain/events"
	"clickchain/domain/telemetry"
)

// LogSource supplies raw telemetry batches
// This is a port in hexagonal architecture - the engine doesn't know where logs come from
type LogSource interface {
	// Name identifies the source in logs and metrics
	Name() string

	// Fetch returns the complete current batch
	Fetch(ctx context.Context) ([]telemetry.RawEvent, error)

	// Watch calls onChange with every new batch until ctx is cancelled
	Watch(ctx context.Context, onChange func([]telemetry.RawEvent)) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// EngineMetrics records engine activity
type EngineMetrics interface {
	RecordLoad(accepted, rejected, dropped int, duration time.Duration)
	RecordTick()
	SetActiveSessions(n int)
}

// NoopPublisher discards events
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, events.DomainEvent) error        { return nil }
func (NoopPublisher) PublishBatch(context.Context, []events.DomainEvent) error { return nil }

// NoopMetrics discards measurements
type NoopMetrics struct{}

func (NoopMetrics) RecordLoad(int, int, int, time.Duration) {}
func (NoopMetrics) RecordTick()                            {}
func (NoopMetrics) SetActiveSessions(int)                  {}

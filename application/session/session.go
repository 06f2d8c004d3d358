// Package session composes the engine for one log batch: normalizer, graph,
// timeline, visibility and playback, behind a single lock.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clickchain/application/ports"
	domainconfig "clickchain/domain/config"
	"clickchain/domain/events"
	"clickchain/domain/graph"
	"clickchain/domain/playback"
	"clickchain/domain/telemetry"
	"clickchain/domain/timeline"
	"clickchain/domain/visibility"
	pkgerrors "clickchain/pkg/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("clickchain/application/session")

// Session is one explorable log batch. All derived state is replaced together
// on Load, so readers never mix a graph with another batch's timeline.
type Session struct {
	id        string
	createdAt time.Time
	cfg       domainconfig.DomainConfig

	normalizer *telemetry.Normalizer
	builder    *graph.Builder
	publisher  ports.EventPublisher
	metrics    ports.EngineMetrics
	logger     *zap.Logger

	mu          sync.RWMutex
	generation  int
	updatedAt   time.Time
	events      []telemetry.LogEvent
	rejected    []telemetry.Rejection
	graph       *graph.Graph
	index       *timeline.Index
	projector   *visibility.Projector
	controller  *playback.Controller
	loop        *playback.Loop
	view        visibility.State
	diagnostics []*pkgerrors.AppError
	ticks       int

	subMu       sync.RWMutex
	nextSub     uint64
	subscribers map[uint64]func(Frame)

	done      chan struct{}
	closeOnce sync.Once
}

// New creates an empty session
func New(id string, cfg domainconfig.DomainConfig, publisher ports.EventPublisher, metrics ports.EngineMetrics, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = ports.NoopPublisher{}
	}
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	logger = logger.With(zap.String("session_id", id))

	now := time.Now()
	s := &Session{
		id:          id,
		createdAt:   now,
		updatedAt:   now,
		cfg:         cfg,
		normalizer:  telemetry.NewNormalizer(logger),
		builder:     graph.NewBuilder(cfg.CausalWindow, logger),
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		projector:   visibility.NewProjector(),
		controller:  playback.NewController(cfg.PlaybackStep),
		subscribers: make(map[uint64]func(Frame)),
		done:        make(chan struct{}),
	}
	s.graph = s.builder.Build(nil)
	s.index = timeline.NewIndex(s.graph, cfg.MarkerCount)
	s.loop = s.newLoop(s.controller.Epoch())
	s.view = s.projector.Project(s.graph, s.index, 0)
	return s
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Load replaces the session's batch. The graph and timeline are built before
// the lock is taken; the swap, playback restart and visibility recompute
// happen under it.
func (s *Session) Load(ctx context.Context, raws []telemetry.RawEvent) (*LoadResult, error) {
	ctx, span := tracer.Start(ctx, "session.Load")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.Int("events.raw", len(raws)),
	)

	if len(raws) > s.cfg.MaxEventsPerBatch {
		err := pkgerrors.NewValidationError(
			fmt.Sprintf("batch of %d events exceeds the limit of %d", len(raws), s.cfg.MaxEventsPerBatch))
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch too large")
		return nil, err
	}

	start := time.Now()
	batch := s.normalizer.Normalize(raws)
	g := s.builder.Build(batch.Events)
	ix := timeline.NewIndex(g, s.cfg.MarkerCount)
	elapsed := time.Since(start)

	var diagnostics []*pkgerrors.AppError
	if g.IsEmpty() {
		diagnostics = append(diagnostics, pkgerrors.NewEmptyGraphError().WithDetails(map[string]interface{}{
			"events":   len(raws),
			"rejected": len(batch.Rejected),
			"dropped":  len(g.Dropped),
		}))
	}

	s.mu.Lock()
	s.loop.Stop()
	s.controller.Restart()
	s.events = batch.Events
	s.rejected = batch.Rejected
	s.graph = g
	s.index = ix
	s.diagnostics = diagnostics
	s.ticks = 0
	s.generation++
	s.updatedAt = time.Now()
	s.view = s.projector.Project(g, ix, 0)
	generation := s.generation
	frame := s.frameLocked(true)
	s.mu.Unlock()

	stats := g.Stats()
	span.SetAttributes(
		attribute.Int("events.accepted", len(batch.Events)),
		attribute.Int("events.rejected", len(batch.Rejected)),
		attribute.Int("graph.nodes", stats.Nodes),
		attribute.Int("graph.edges", stats.Edges),
	)
	s.metrics.RecordLoad(len(batch.Events), len(batch.Rejected), stats.Dropped, elapsed)
	s.logger.Info("Loaded event batch",
		zap.Int("generation", generation),
		zap.Int("accepted", len(batch.Events)),
		zap.Int("rejected", len(batch.Rejected)),
		zap.Int("dropped", stats.Dropped),
		zap.Int("nodes", stats.Nodes),
		zap.Int("edges", stats.Edges),
		zap.Duration("elapsed", elapsed),
	)

	for _, d := range diagnostics {
		s.logger.Warn("Log batch produced no graph", zap.Error(d))
	}
	s.broadcast(frame)

	evt := events.NewGraphRebuilt(s.id, generation, time.Now())
	evt.Events = len(batch.Events)
	evt.Rejected = len(batch.Rejected)
	evt.Dropped = stats.Dropped
	evt.Nodes = stats.Nodes
	evt.Edges = stats.Edges
	s.publish(ctx, evt)

	return &LoadResult{
		Generation:  generation,
		Accepted:    len(batch.Events),
		Rejected:    batch.Rejected,
		Dropped:     g.Dropped,
		Stats:       stats,
		Duration:    elapsed,
		Diagnostics: diagnostics,
	}, nil
}

// Play starts autoplay. It reports false when already at the end.
func (s *Session) Play(ctx context.Context) bool {
	s.mu.Lock()
	wasPlaying := s.controller.State().IsPlaying
	epoch, started := s.controller.Play()
	if started && !wasPlaying {
		s.ticks = 0
		s.loop.Stop()
		s.loop = s.newLoop(epoch)
		s.loop.Start()
	}
	s.recomputeLocked()
	state := s.controller.State()
	frame := s.frameLocked(false)
	s.mu.Unlock()

	s.broadcast(frame)
	if started && !wasPlaying {
		s.publish(ctx, events.NewPlaybackStarted(s.id, state.Position, int(state.Speed), time.Now()))
	}
	return started
}

// Pause stops autoplay before the next tick is applied
func (s *Session) Pause() {
	s.control(func(c *playback.Controller) { c.Pause() })
}

// Seek moves to a position and pauses
func (s *Session) Seek(position float64) {
	s.control(func(c *playback.Controller) { c.Seek(position) })
}

// Reset moves to the start and pauses
func (s *Session) Reset() {
	s.control(func(c *playback.Controller) { c.Reset() })
}

// JumpToEnd moves to the end and pauses
func (s *Session) JumpToEnd() {
	s.control(func(c *playback.Controller) { c.JumpToEnd() })
}

// CycleSpeed advances the playback speed
func (s *Session) CycleSpeed() playback.Speed {
	s.mu.Lock()
	speed := s.controller.CycleSpeed()
	frame := s.frameLocked(false)
	s.mu.Unlock()

	s.broadcast(frame)
	return speed
}

// ToggleFilter flips an event type in the filter and reports whether it is
// now selected
func (s *Session) ToggleFilter(t telemetry.EventType) bool {
	s.mu.Lock()
	selected := s.projector.ToggleType(t)
	s.recomputeLocked()
	frame := s.frameLocked(false)
	s.mu.Unlock()

	s.broadcast(frame)
	return selected
}

// ClearFilter removes every type from the filter
func (s *Session) ClearFilter() {
	s.mu.Lock()
	s.projector.ClearFilter()
	s.recomputeLocked()
	frame := s.frameLocked(false)
	s.mu.Unlock()

	s.broadcast(frame)
}

// Frame returns a consistent snapshot including the graph
func (s *Session) Frame() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frameLocked(true)
}

// Playback returns the playback state
func (s *Session) Playback() playback.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controller.State()
}

// Graph returns the current graph
func (s *Session) Graph() *graph.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// Node looks up a node of the current graph
func (s *Session) Node(id string) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.graph.Node(id)
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node")
	}
	return n, nil
}

// Related returns the id and its direct neighbours regardless of visibility
func (s *Session) Related(id string) []string {
	return s.Graph().Related(id)
}

// RelatedNodes returns the neighbour nodes of an existing node
func (s *Session) RelatedNodes(id string) ([]*graph.Node, error) {
	_, nodes, err := s.Neighbourhood(id)
	return nodes, err
}

// Neighbourhood returns the related ids and the neighbour nodes of an
// existing node. Both come from the same graph; a built graph is never
// modified, only replaced.
func (s *Session) Neighbourhood(id string) (related []string, nodes []*graph.Node, err error) {
	g := s.Graph()
	if _, ok := g.Node(id); !ok {
		return nil, nil, pkgerrors.NewNotFoundError("node")
	}
	return g.Related(id), g.RelatedNodes(id), nil
}

// Snapshot returns the graph together with the rejections of the batch it
// was built from
func (s *Session) Snapshot() (*graph.Graph, []telemetry.Rejection) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph, append([]telemetry.Rejection(nil), s.rejected...)
}

// Search returns the events of the batch matching a free-text query. Events
// absent from the graph, such as requests with malformed URLs, are included.
func (s *Session) Search(query string) []telemetry.LogEvent {
	matches, _ := s.SearchWithTypes(query)
	return matches
}

// SearchWithTypes is Search plus the distinct event types of the same batch
func (s *Session) SearchWithTypes(query string) ([]telemetry.LogEvent, []telemetry.EventType) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]telemetry.LogEvent, 0)
	for _, e := range s.events {
		if e.Matches(query) {
			matches = append(matches, e)
		}
	}
	return matches, telemetry.UniqueTypes(s.events)
}

// EventTypes returns the distinct event types of the batch
func (s *Session) EventTypes() []telemetry.EventType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return telemetry.UniqueTypes(s.events)
}

// Rejected returns the events excluded by the normalizer
func (s *Session) Rejected() []telemetry.Rejection {
	_, rejected := s.Snapshot()
	return rejected
}

// Summary describes the session
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		ID:         s.id,
		Generation: s.generation,
		Events:     len(s.events),
		Nodes:      len(s.graph.Nodes),
		IsPlaying:  s.controller.State().IsPlaying,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
}

// Subscribe registers fn to receive every frame published after a change.
// Frames published by playback ticks carry no graph.
func (s *Session) Subscribe(fn func(Frame)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// Close stops autoplay, drops subscribers and closes Done
func (s *Session) Close() {
	s.mu.Lock()
	s.loop.Stop()
	s.controller.Pause()
	s.mu.Unlock()

	s.subMu.Lock()
	s.subscribers = make(map[uint64]func(Frame))
	s.subMu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed once the session has been closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) control(op func(c *playback.Controller)) {
	s.mu.Lock()
	op(s.controller)
	if !s.controller.State().IsPlaying {
		s.loop.Stop()
	}
	s.recomputeLocked()
	frame := s.frameLocked(false)
	s.mu.Unlock()

	s.broadcast(frame)
}

// newLoop creates a stopped loop whose steps carry the play epoch they were
// armed for
func (s *Session) newLoop(epoch uint64) *playback.Loop {
	return playback.NewLoop(s.cfg.TickPeriod, func() bool { return s.tick(epoch) })
}

// tick is the loop step. It returns false once playback has stopped or the
// epoch is stale.
func (s *Session) tick(epoch uint64) bool {
	s.mu.Lock()
	state, applied := s.controller.Tick(epoch)
	if !applied {
		s.mu.Unlock()
		return false
	}
	s.ticks++
	ticks := s.ticks
	s.recomputeLocked()
	frame := s.frameLocked(false)
	s.mu.Unlock()

	s.metrics.RecordTick()
	s.broadcast(frame)

	if !state.IsPlaying {
		s.logger.Debug("Playback finished", zap.Int("ticks", ticks))
		s.publish(context.Background(), events.NewPlaybackFinished(s.id, ticks, time.Now()))
		return false
	}
	return true
}

func (s *Session) recomputeLocked() {
	s.view = s.projector.Project(s.graph, s.index, s.controller.State().Position)
}

func (s *Session) frameLocked(withGraph bool) Frame {
	f := Frame{
		SessionID:   s.id,
		Generation:  s.generation,
		Markers:     s.index.Markers(),
		Cutoff:      s.view.Cutoff,
		Visibility:  s.view,
		Counts:      s.view.Counts,
		Playback:    s.controller.State(),
		EventTypes:  s.graph.EventTypes(),
		Stats:       s.graph.Stats(),
		Rejected:    len(s.rejected),
		Diagnostics: s.diagnostics,
	}
	if withGraph {
		f.Graph = s.graph
	}
	return f
}

func (s *Session) broadcast(f Frame) {
	s.subMu.RLock()
	subs := make([]func(Frame), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(f)
	}
}

func (s *Session) publish(ctx context.Context, evt events.DomainEvent) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("Failed to publish domain event",
			zap.String("event_type", evt.GetEventType()),
			zap.Error(err),
		)
	}
}

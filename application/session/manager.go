package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"clickchain/application/ports"
	domainconfig "clickchain/domain/config"
	"clickchain/domain/events"
	"clickchain/domain/telemetry"
	pkgerrors "clickchain/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns the live sessions of the process
type Manager struct {
	cfg       domainconfig.DomainConfig
	publisher ports.EventPublisher
	metrics   ports.EngineMetrics
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager
func NewManager(cfg *domainconfig.DomainConfig, publisher ports.EventPublisher, metrics ports.EngineMetrics, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = domainconfig.DefaultDomainConfig()
	}
	if publisher == nil {
		publisher = ports.NoopPublisher{}
	}
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       *cfg,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Create opens a session with a random id
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	return m.CreateWithID(ctx, uuid.New().String())
}

// CreateWithID opens a session with a caller-chosen id
func (m *Manager) CreateWithID(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, pkgerrors.NewValidationError("session id is required")
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, pkgerrors.NewConflictError(fmt.Sprintf("session %s already exists", id))
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, pkgerrors.NewConflictError("session limit reached")
	}
	s := New(id, m.cfg, m.publisher, m.metrics, m.logger)
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(count)
	m.logger.Info("Session created", zap.String("session_id", id))
	if err := m.publisher.Publish(ctx, events.NewSessionCreated(id, time.Now())); err != nil {
		m.logger.Warn("Failed to publish session event", zap.Error(err))
	}
	return s, nil
}

// Get returns a session by id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("session")
	}
	return s, nil
}

// GetOrCreate returns the session with the id, creating it when missing
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if s, err := m.Get(id); err == nil {
		return s, nil
	}
	s, err := m.CreateWithID(ctx, id)
	if pkgerrors.IsType(err, pkgerrors.ErrorTypeConflict) {
		if existing, getErr := m.Get(id); getErr == nil {
			return existing, nil
		}
	}
	return s, err
}

// Load replaces the batch of an existing session
func (m *Manager) Load(ctx context.Context, id string, raws []telemetry.RawEvent) (*LoadResult, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, raws)
}

// List summarizes every session, oldest first
func (m *Manager) List() []Summary {
	m.mu.RLock()
	summaries := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		summaries = append(summaries, s.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Delete closes and removes a session
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return pkgerrors.NewNotFoundError("session")
	}
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	s.Close()
	m.metrics.SetActiveSessions(count)
	m.logger.Info("Session deleted", zap.String("session_id", id))
	if err := m.publisher.Publish(ctx, events.NewSessionDeleted(id, time.Now())); err != nil {
		m.logger.Warn("Failed to publish session event", zap.Error(err))
	}
	return nil
}

// Close stops every session
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
	}
}

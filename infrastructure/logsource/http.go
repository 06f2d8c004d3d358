package logsource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"clickchain/domain/telemetry"
	pkgerrors "clickchain/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const maxBodyBytes = 32 << 20

// BreakerConfig holds configuration for the circuit breaker guarding a remote source
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureThreshold is the failure ratio that trips the breaker once
	// MinRequests have been observed
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used for log endpoints
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// HTTPSource polls a URL that serves a log batch
type HTTPSource struct {
	url      string
	client   *http.Client
	interval time.Duration
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger

	mu   sync.Mutex
	last []byte
}

// NewHTTPSource creates a poller for url
func NewHTTPSource(url string, interval time.Duration, client *http.Client, breakerCfg BreakerConfig, logger *zap.Logger) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("source", "http"), zap.String("url", url))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerCfg.Name,
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerCfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= breakerCfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &HTTPSource{
		url:      url,
		client:   client,
		interval: interval,
		breaker:  breaker,
		logger:   logger,
	}
}

// Name identifies the source
func (s *HTTPSource) Name() string {
	return "http:" + s.url
}

// State reports the breaker state
func (s *HTTPSource) State() gobreaker.State {
	return s.breaker.State()
}

// Fetch downloads and decodes the current batch. A decoded batch counts as
// delivered, so a following Watch skips it until it changes.
func (s *HTTPSource) Fetch(ctx context.Context) ([]telemetry.RawEvent, error) {
	body, err := s.fetchBody(ctx)
	if err != nil {
		return nil, err
	}
	raws, err := telemetry.DecodeBatch(body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = body
	s.mu.Unlock()
	return raws, nil
}

// Watch polls every interval and calls onChange only when the served batch
// differs from the last one delivered by Fetch or a previous poll.
func (s *HTTPSource) Watch(ctx context.Context, onChange func([]telemetry.RawEvent)) error {
	if s.interval <= 0 {
		return pkgerrors.NewValidationError("poll interval must be positive")
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.poll(ctx, onChange)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *HTTPSource) poll(ctx context.Context, onChange func([]telemetry.RawEvent)) {
	body, err := s.fetchBody(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Failed to poll log source", zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	unchanged := s.last != nil && bytes.Equal(s.last, body)
	s.mu.Unlock()
	if unchanged {
		return
	}

	raws, err := telemetry.DecodeBatch(body)
	if err != nil {
		s.logger.Warn("Log source served an undecodable batch", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.last = body
	s.mu.Unlock()

	s.logger.Info("Log source changed", zap.Int("events", len(raws)))
	onChange(raws)
}

func (s *HTTPSource) fetchBody(ctx context.Context) ([]byte, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, pkgerrors.NewUnavailableError(s.Name()).WithCause(err)
		}
		return nil, pkgerrors.NewExternalError(s.Name(), err)
	}
	return result.([]byte), nil
}

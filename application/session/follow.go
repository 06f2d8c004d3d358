package session

import (
	"context"

	"clickchain/application/ports"
	"clickchain/domain/telemetry"

	"go.uber.org/zap"
)

// Follow loads the current batch of src into the session with the given id,
// creating it if needed, then reloads on every change src reports. It blocks
// until ctx is cancelled or the source's watch fails.
func (m *Manager) Follow(ctx context.Context, id string, src ports.LogSource) error {
	s, err := m.GetOrCreate(ctx, id)
	if err != nil {
		return err
	}
	logger := m.logger.With(zap.String("session_id", id), zap.String("source", src.Name()))

	raws, err := src.Fetch(ctx)
	if err != nil {
		// The watch may still deliver a usable batch later.
		logger.Warn("Initial fetch failed", zap.Error(err))
	} else if _, err := s.Load(ctx, raws); err != nil {
		logger.Warn("Initial load failed", zap.Error(err))
	}

	return src.Watch(ctx, func(raws []telemetry.RawEvent) {
		if _, err := s.Load(ctx, raws); err != nil {
			logger.Warn("Reload failed", zap.Error(err))
		}
	})
}

// Package logsource feeds telemetry batches into the engine from files and
// remote endpoints.
package logsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clickchain/domain/telemetry"
	pkgerrors "clickchain/pkg/errors"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events editors emit on save
const DefaultDebounce = 500 * time.Millisecond

// FileSource reads a JSON array or NDJSON log file and reloads it on change.
type FileSource struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger
}

// NewFileSource creates a source for the file at path
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{
		path:     path,
		debounce: DefaultDebounce,
		logger:   logger.With(zap.String("source", "file"), zap.String("path", path)),
	}
}

// WithDebounce overrides the reload delay
func (s *FileSource) WithDebounce(d time.Duration) *FileSource {
	if d > 0 {
		s.debounce = d
	}
	return s
}

// Name identifies the source
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Fetch reads and decodes the whole file
func (s *FileSource) Fetch(ctx context.Context) ([]telemetry.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read %s", s.path)
	}
	raws, err := telemetry.DecodeBatch(data)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode %s", s.path)
	}
	return raws, nil
}

// Watch reloads the file after each write and blocks until ctx is cancelled.
// The parent directory is watched so atomic rename-on-save is seen too.
func (s *FileSource) Watch(ctx context.Context, onChange func([]telemetry.RawEvent)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
	)
	reload := func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		raws, err := s.Fetch(ctx)
		if err != nil {
			s.logger.Warn("Failed to reload log file", zap.Error(err))
			return
		}
		s.logger.Info("Log file reloaded", zap.Int("events", len(raws)))
		onChange(raws)
	}
	defer func() {
		mu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debug("Log file changed", zap.String("operation", event.Op.String()))

			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(s.debounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("File watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}

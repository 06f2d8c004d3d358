package commands

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"clickchain/application/commands/bus"
	"clickchain/application/session"
	"clickchain/domain/playback"
	"clickchain/domain/telemetry"
	pkgerrors "clickchain/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type dispatchRecorder struct {
	mu     sync.Mutex
	names  []string
	failed int
}

func (r *dispatchRecorder) ObserveDispatch(kind, name string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, kind+":"+name)
	if err != nil {
		r.failed++
	}
}

func setup(t *testing.T) (*bus.CommandBus, *session.Manager, *dispatchRecorder) {
	t.Helper()
	logger := zap.NewNop()
	manager := session.NewManager(nil, nil, nil, logger)
	recorder := &dispatchRecorder{}
	b := bus.NewCommandBus(bus.LoggingMiddleware(logger), bus.MetricsMiddleware(recorder))
	require.NoError(t, NewSessionHandler(manager, logger).Register(b))
	return b, manager, recorder
}

func sampleRaws(t *testing.T) []telemetry.RawEvent {
	t.Helper()
	data, err := os.ReadFile("../../domain/telemetry/testdata/sample_logs.json")
	require.NoError(t, err)
	raws, err := telemetry.DecodeBatch(data)
	require.NoError(t, err)
	return raws
}

func TestSessionHandler_Flow(t *testing.T) {
	b, manager, recorder := setup(t)
	ctx := context.Background()

	require.NoError(t, b.Send(ctx, CreateSessionCommand{SessionID: "demo"}))
	require.NoError(t, b.Send(ctx, LoadEventsCommand{SessionID: "demo", Events: sampleRaws(t)}))

	pos := 50.0
	require.NoError(t, b.Send(ctx, ControlPlaybackCommand{SessionID: "demo", Action: ActionSeek, Position: &pos}))
	require.NoError(t, b.Send(ctx, ControlPlaybackCommand{SessionID: "demo", Action: ActionSpeed}))
	require.NoError(t, b.Send(ctx, ToggleFilterCommand{SessionID: "demo", EventType: "click"}))

	s, err := manager.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, playback.State{Position: 50, IsPlaying: false, Speed: playback.Speed2}, s.Playback())
	assert.Equal(t, []telemetry.EventType{telemetry.TypeClick}, s.Frame().Visibility.Filter)

	require.NoError(t, b.Send(ctx, ToggleFilterCommand{SessionID: "demo", Clear: true}))
	assert.Empty(t, s.Frame().Visibility.Filter)

	require.NoError(t, b.Send(ctx, ControlPlaybackCommand{SessionID: "demo", Action: ActionEnd}))
	assert.Equal(t, 100.0, s.Playback().Position)

	require.NoError(t, b.Send(ctx, DeleteSessionCommand{SessionID: "demo"}))
	_, err = manager.Get("demo")
	assert.True(t, pkgerrors.IsNotFound(err))

	assert.Len(t, recorder.names, 8)
	assert.Equal(t, "command:CreateSessionCommand", recorder.names[0])
	assert.Zero(t, recorder.failed)
}

func TestSessionHandler_Errors(t *testing.T) {
	b, _, recorder := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		cmd   bus.Command
		check func(error) bool
	}{
		{"missing session id", CreateSessionCommand{}, pkgerrors.IsValidation},
		{"unknown action", ControlPlaybackCommand{SessionID: "x", Action: "rewind"}, pkgerrors.IsValidation},
		{"seek without position", ControlPlaybackCommand{SessionID: "x", Action: ActionSeek}, pkgerrors.IsValidation},
		{"toggle without type", ToggleFilterCommand{SessionID: "x"}, pkgerrors.IsValidation},
		{"unknown session", ControlPlaybackCommand{SessionID: "x", Action: ActionPlay}, pkgerrors.IsNotFound},
		{"delete unknown session", DeleteSessionCommand{SessionID: "x"}, pkgerrors.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Send(ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
	assert.Equal(t, 2, recorder.failed)
}

type unknownCommand struct{}

func (unknownCommand) Validate() error { return nil }

func TestCommandBus_Registration(t *testing.T) {
	b, manager, _ := setup(t)

	err := NewSessionHandler(manager, zap.NewNop()).Register(b)
	assert.Error(t, err)

	err = b.Send(context.Background(), unknownCommand{})
	assert.True(t, errors.Is(err, bus.ErrHandlerNotFound))
}

package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clickchain/application/ports"
	"clickchain/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeContainer(t *testing.T) {
	cfg := config.Defaults()
	cfg.EnableMetrics = true
	cfg.LogLevel = "error"

	c, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, ports.NoopPublisher{}, c.Publisher)
	assert.Nil(t, c.Tracer)
	assert.Empty(t, c.Sources)

	handler := c.Handler()
	for _, path := range []string{"/health", "/ready", "/metrics", "/api/v1/sessions"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestInitializeContainer_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"bad log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"auth without secret outside development", func(c *config.Config) {
			c.Environment = "staging"
			c.EnableAuth = true
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(cfg)
			_, _, err := InitializeContainer(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestContainer_FollowSources(t *testing.T) {
	data, err := os.ReadFile("../../domain/telemetry/testdata/sample_logs.json")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg := config.Defaults()
	cfg.LogFile = path
	cfg.LogLevel = "error"

	c, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()
	require.Len(t, c.Sources, 1)

	ctx, cancel := context.WithCancel(context.Background())
	wait := c.FollowSources(ctx)

	assert.Eventually(t, func() bool {
		s, err := c.Sessions.Get(cfg.DefaultSession)
		return err == nil && s.Summary().Nodes == 12
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	wait()
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://app.test"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://app.test")
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://evil.test")
	assert.False(t, check(r))

	assert.True(t, originChecker([]string{"*"})(r))
}

package logsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clickchain/domain/telemetry"
	pkgerrors "clickchain/pkg/errors"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(twoEvents))
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, time.Second, server.Client(), DefaultBreakerConfig("logs"), zap.NewNop())
	raws, err := src.Fetch(context.Background())

	require.NoError(t, err)
	assert.Len(t, raws, 2)
	assert.Equal(t, "http:"+server.URL, src.Name())
}

func TestHTTPSource_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultBreakerConfig("logs")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 1
	src := NewHTTPSource(server.URL, time.Second, server.Client(), cfg, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := src.Fetch(ctx)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
	}
	assert.Equal(t, gobreaker.StateOpen, src.State())

	_, err := src.Fetch(ctx)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable))
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPSource_WatchDeliversOnlyChanges(t *testing.T) {
	var (
		bodyMu sync.Mutex
		body   = twoEvents
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bodyMu.Lock()
		defer bodyMu.Unlock()
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, 10*time.Millisecond, server.Client(), DefaultBreakerConfig("logs"), nil)

	var (
		mu    sync.Mutex
		sizes []int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = src.Watch(ctx, func(raws []telemetry.RawEvent) {
			mu.Lock()
			sizes = append(sizes, len(raws))
			mu.Unlock()
		})
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sizes) == 1
	}, time.Second, 5*time.Millisecond)

	// Several unchanged polls go by without a delivery.
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{2}, sizes)
	mu.Unlock()

	bodyMu.Lock()
	body = threeEventsNDJSON
	bodyMu.Unlock()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sizes) == 2 && sizes[1] == 3
	}, time.Second, 5*time.Millisecond)
}

func TestHTTPSource_WatchRequiresInterval(t *testing.T) {
	src := NewHTTPSource("http://127.0.0.1:0", 0, nil, DefaultBreakerConfig("logs"), nil)
	err := src.Watch(context.Background(), func([]telemetry.RawEvent) {})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestHTTPSource_WatchSkipsFetchedBatch(t *testing.T) {
	var (
		bodyMu sync.Mutex
		body   = twoEvents
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bodyMu.Lock()
		defer bodyMu.Unlock()
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, 10*time.Millisecond, server.Client(), DefaultBreakerConfig("logs"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raws, err := src.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	var (
		mu    sync.Mutex
		sizes []int
	)
	go func() {
		_ = src.Watch(ctx, func(raws []telemetry.RawEvent) {
			mu.Lock()
			sizes = append(sizes, len(raws))
			mu.Unlock()
		})
	}()

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, sizes)
	mu.Unlock()

	bodyMu.Lock()
	body = threeEventsNDJSON
	bodyMu.Unlock()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sizes) == 1 && sizes[0] == 3
	}, time.Second, 5*time.Millisecond)
}

package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_EngineMetrics(t *testing.T) {
	c := NewCollector("test")

	c.RecordLoad(10, 1, 2, 3*time.Millisecond)
	c.RecordLoad(4, 0, 0, time.Millisecond)
	c.RecordTick()
	c.RecordTick()
	c.SetActiveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.GraphBuilds))
	assert.Equal(t, 14.0, testutil.ToFloat64(c.EventsLoaded.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EventsLoaded.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.EventsLoaded.WithLabelValues("dropped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.PlaybackTicks))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.ActiveSessions))
}

func TestCollector_ObserveDispatch(t *testing.T) {
	c := NewCollector("test")

	c.ObserveDispatch("command", "LoadEventsCommand", time.Millisecond, nil)
	c.ObserveDispatch("command", "LoadEventsCommand", time.Millisecond, errors.New("boom"))
	c.ObserveDispatch("query", "GetFrameQuery", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Dispatches.WithLabelValues("command", "LoadEventsCommand", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Dispatches.WithLabelValues("command", "LoadEventsCommand", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Dispatches.WithLabelValues("query", "GetFrameQuery", "ok")))
}

func TestCollector_MiddlewareAndHandler(t *testing.T) {
	c := NewCollector("test")

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", c.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/sessions/{sessionID}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "test_http_requests_total"))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")

	a.RecordTick()

	assert.NotSame(t, a.GetRegistry(), b.GetRegistry())
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PlaybackTicks))
}

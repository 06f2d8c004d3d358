package rest

import (
	"net/http"

	"clickchain/application/commands/bus"
	querybus "clickchain/application/queries/bus"
	"clickchain/interfaces/http/rest/handlers"
	"clickchain/interfaces/http/rest/middleware"
	"clickchain/pkg/auth"
	"clickchain/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Options selects the optional parts of the HTTP surface
type Options struct {
	CORSAllowedOrigins []string
	ServiceName        string
	EnableTracing      bool

	// Validator enables bearer authentication on the API routes when set
	Validator *auth.JWTValidator

	// Metrics enables request metrics and the /metrics endpoint when set
	Metrics *observability.Collector

	// Stream serves session websocket streams when set
	Stream http.HandlerFunc
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	opts       Options
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	opts Options,
	logger *zap.Logger,
) *Router {
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		opts:       opts,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.opts.EnableTracing {
		router.Use(observability.TracingMiddleware(rt.opts.ServiceName))
	}
	if rt.opts.Metrics != nil {
		router.Use(rt.opts.Metrics.Middleware)
	}

	origins := rt.opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Trace-ID", "Location"},
		MaxAge:         300,
	}))

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.opts.Metrics != nil {
		router.Handle("/metrics", rt.opts.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if rt.opts.Validator != nil {
			r.Use(middleware.Authenticate(rt.opts.Validator, rt.logger))
		}

		sessionHandler := handlers.NewSessionHandler(rt.commandBus, rt.queryBus, rt.logger)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.CreateSession)
			r.Get("/", sessionHandler.ListSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Delete("/", sessionHandler.DeleteSession)
				r.Put("/events", sessionHandler.LoadEvents)
				r.Get("/events", sessionHandler.SearchEvents)
				r.Get("/frame", sessionHandler.GetFrame)
				r.Get("/graph", sessionHandler.GetGraph)
				r.Get("/nodes/{nodeID}/related", sessionHandler.GetRelatedNodes)
				r.Post("/playback", sessionHandler.ControlPlayback)
				r.Post("/filter", sessionHandler.ToggleFilter)
				if rt.opts.Stream != nil {
					r.Get("/stream", rt.opts.Stream)
				}
			})
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

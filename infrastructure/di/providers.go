package di

import (
	"context"
	"net/http"
	"strings"

	"clickchain/application/commands"
	"clickchain/application/commands/bus"
	"clickchain/application/ports"
	"clickchain/application/queries"
	querybus "clickchain/application/queries/bus"
	"clickchain/application/session"
	domainconfig "clickchain/domain/config"
	"clickchain/infrastructure/config"
	"clickchain/infrastructure/logsource"
	"clickchain/infrastructure/messaging/eventbridge"
	"clickchain/interfaces/http/rest"
	"clickchain/interfaces/websocket"
	"clickchain/pkg/auth"
	"clickchain/pkg/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	// stdout belongs to the MCP transport when running as a tool server.
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// ProvideDomainConfig extracts the engine rules
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	return cfg.DomainConfig()
}

// ProvideCollector creates the Prometheus collector
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(strings.ReplaceAll(cfg.ServiceName, "-", "_"))
}

// ProvideEngineMetrics exposes the collector as the engine metrics port
func ProvideEngineMetrics(collector *observability.Collector) ports.EngineMetrics {
	return collector
}

// ProvideTracerProvider starts OTLP tracing when enabled
func ProvideTracerProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	if !cfg.EnableTracing {
		return nil, func() {}, nil
	}
	tp, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideEventPublisher publishes to EventBridge when a bus is configured
func ProvideEventPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, error) {
	if cfg.EventBusName == "" {
		return ports.NoopPublisher{}, nil
	}
	client, err := eventbridge.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger), nil
}

// ProvideSessionManager creates the session manager
func ProvideSessionManager(
	domainCfg *domainconfig.DomainConfig,
	publisher ports.EventPublisher,
	metrics ports.EngineMetrics,
	logger *zap.Logger,
) (*session.Manager, func()) {
	manager := session.NewManager(domainCfg, publisher, metrics, logger)
	return manager, manager.Close
}

// ProvideCommandBus creates and configures the command bus
func ProvideCommandBus(manager *session.Manager, collector *observability.Collector, logger *zap.Logger) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.LoggingMiddleware(logger),
		bus.MetricsMiddleware(collector),
	)
	if err := commands.NewSessionHandler(manager, logger).Register(commandBus); err != nil {
		return nil, err
	}
	return commandBus, nil
}

// ProvideQueryBus creates and configures the query bus
func ProvideQueryBus(manager *session.Manager, collector *observability.Collector, logger *zap.Logger) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(
		querybus.NewLoggingMiddleware(logger),
		querybus.NewMetricsMiddleware(collector),
	)
	if err := queries.NewSessionQueryHandler(manager).Register(queryBus); err != nil {
		return nil, err
	}
	return queryBus, nil
}

// ProvideJWTValidator builds the token validator when auth is enabled
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	if !cfg.EnableAuth {
		return nil, nil
	}
	secret := cfg.JWTSecret
	if secret == "" && cfg.IsDevelopment() {
		secret = "development-secret-change-in-production"
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: secret,
		Issuer:    cfg.JWTIssuer,
	})
}

// ProvideHub creates the websocket hub. Its run loop is started by the
// cleanup-returning provider so it stops with the container.
func ProvideHub(manager *session.Manager, logger *zap.Logger) (*websocket.Hub, func()) {
	hub := websocket.NewHub(manager, logger)
	go hub.Run()
	return hub, hub.Stop
}

// ProvideStreamServer creates the websocket stream server
func ProvideStreamServer(hub *websocket.Hub, commandBus *bus.CommandBus, cfg *config.Config, logger *zap.Logger) *websocket.Server {
	wsCfg := websocket.DefaultServerConfig()
	wsCfg.CheckOrigin = originChecker(cfg.CORSAllowedOrigins)
	return websocket.NewServer(hub, commandBus, wsCfg, logger)
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	validator *auth.JWTValidator,
	collector *observability.Collector,
	stream *websocket.Server,
	logger *zap.Logger,
) *rest.Router {
	opts := rest.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ServiceName:        cfg.ServiceName,
		EnableTracing:      cfg.EnableTracing,
		Validator:          validator,
		Stream:             stream.HandleWebSocket,
	}
	if cfg.EnableMetrics {
		opts.Metrics = collector
	}
	return rest.NewRouter(commandBus, queryBus, opts, logger)
}

// ProvideLogSources builds the configured log sources
func ProvideLogSources(cfg *config.Config, logger *zap.Logger) []ports.LogSource {
	var sources []ports.LogSource
	if cfg.LogFile != "" {
		sources = append(sources, logsource.NewFileSource(cfg.LogFile, logger))
	}
	if cfg.SourceURL != "" {
		sources = append(sources, logsource.NewHTTPSource(
			cfg.SourceURL,
			cfg.PollInterval,
			nil,
			logsource.DefaultBreakerConfig("log-source"),
			logger,
		))
	}
	return sources
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

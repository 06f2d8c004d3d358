// Hand-maintained counterpart of the injector in wire.go. Keep it in step with
// the provider sets; go generate replaces it with wire's output.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package di

import (
	"context"

	"clickchain/infrastructure/config"
)

// Injectors from wire.go:

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	collector := ProvideCollector(cfg)
	tracerProvider, cleanup, err := ProvideTracerProvider(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	eventPublisher, err := ProvideEventPublisher(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	domainConfig := ProvideDomainConfig(cfg)
	engineMetrics := ProvideEngineMetrics(collector)
	manager, cleanup2 := ProvideSessionManager(domainConfig, eventPublisher, engineMetrics, logger)
	commandBus, err := ProvideCommandBus(manager, collector, logger)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	queryBus, err := ProvideQueryBus(manager, collector, logger)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	hub, cleanup3 := ProvideHub(manager, logger)
	jwtValidator, err := ProvideJWTValidator(cfg)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	server := ProvideStreamServer(hub, commandBus, cfg, logger)
	router := ProvideRouter(cfg, commandBus, queryBus, jwtValidator, collector, server, logger)
	v := ProvideLogSources(cfg, logger)
	container := &Container{
		Config:     cfg,
		Logger:     logger,
		Collector:  collector,
		Tracer:     tracerProvider,
		Publisher:  eventPublisher,
		Sessions:   manager,
		CommandBus: commandBus,
		QueryBus:   queryBus,
		Hub:        hub,
		Router:     router,
		Sources:    v,
	}
	return container, func() {
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"clickchain/infrastructure/config"
	"clickchain/infrastructure/di"
	"clickchain/interfaces/toolserver"

	"go.uber.org/zap"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()

	waitSources := container.FollowSources(ctx)

	server := toolserver.New(container.CommandBus, container.QueryBus, version, container.Logger)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		container.Logger.Error("MCP server stopped", zap.Error(err))
	}

	stop()
	waitSources()
	_ = container.Logger.Sync()
}

package di

import (
	"context"
	"net/http"
	"sync"

	"clickchain/application/commands/bus"
	"clickchain/application/ports"
	querybus "clickchain/application/queries/bus"
	"clickchain/application/session"
	"clickchain/infrastructure/config"
	"clickchain/interfaces/http/rest"
	"clickchain/interfaces/websocket"
	"clickchain/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Collector  *observability.Collector
	Tracer     *observability.TracerProvider
	Publisher  ports.EventPublisher
	Sessions   *session.Manager
	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus
	Hub        *websocket.Hub
	Router     *rest.Router
	Sources    []ports.LogSource
}

// Handler returns the configured HTTP handler
func (c *Container) Handler() http.Handler {
	return c.Router.Setup()
}

// FollowSources feeds every configured log source into the default session.
// It returns immediately; the followers stop when ctx is cancelled and the
// returned wait function blocks until they have.
func (c *Container) FollowSources(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	for _, src := range c.Sources {
		wg.Add(1)
		go func(src ports.LogSource) {
			defer wg.Done()
			c.Logger.Info("Following log source",
				zap.String("source", src.Name()),
				zap.String("session_id", c.Config.DefaultSession),
			)
			if err := c.Sessions.Follow(ctx, c.Config.DefaultSession, src); err != nil {
				c.Logger.Error("Log source stopped", zap.String("source", src.Name()), zap.Error(err))
			}
		}(src)
	}
	return wg.Wait
}

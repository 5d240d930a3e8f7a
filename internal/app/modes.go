package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openpredict/predictiondao/internal/server"
	"github.com/openpredict/predictiondao/internal/server/handler"
	"github.com/openpredict/predictiondao/internal/server/ws"
)

// ServerMode runs the HTTP and WebSocket API plus the background event
// plumbing: the relay that fans engine events out to Postgres and Redis,
// and the notification watcher.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startEventPlumbing(ctx, g, deps)
	a.startAPIServer(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode runs only the archive sweeper: it periodically exports
// finalized markets and their event history to object storage. No API is
// served and no engine mutations happen in this mode.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Duration("interval", a.cfg.S3.ArchiveInterval.Duration),
	)

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: object storage is not configured")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Archiver.Run(ctx, a.cfg.S3.ArchiveInterval.Duration)
	})

	return g.Wait()
}

// FullMode runs every subsystem: the API server, event plumbing, and the
// archive sweeper when archiving is enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startEventPlumbing(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startAPIServer(ctx, g, deps)
	}

	if a.cfg.S3.ArchiveEnabled && deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx, a.cfg.S3.ArchiveInterval.Duration)
		})
	}

	return g.Wait()
}

// startEventPlumbing launches the event relay pump and the notification
// watcher. Both run for the lifetime of the context.
func (a *App) startEventPlumbing(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Relay.Run(ctx)
	})
	g.Go(func() error {
		return deps.Watcher.Run(ctx)
	})
}

// startAPIServer assembles the handlers, WebSocket hub, and HTTP server and
// registers their goroutines on the group.
func (a *App) startAPIServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger, a.cfg.Mode, startedAt),
		Markets:   handler.NewMarketHandler(deps.Markets, a.logger),
		Proposals: handler.NewProposalHandler(deps.Markets, a.logger),
		Token:     handler.NewTokenHandler(deps.Tokens, a.logger),
		Admin:     handler.NewAdminHandler(deps.Markets, deps.Tokens, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:             a.cfg.Server.Port,
		CORSOrigins:      a.cfg.Server.CORSOrigins,
		RateLimitPerMin:  a.cfg.Server.RateLimitPerMin,
		RequireSignature: a.cfg.Server.RequireSignature,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}

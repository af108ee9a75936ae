package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sincore/aggregator/internal/server"
	"github.com/sincore/aggregator/internal/server/handler"
	"github.com/sincore/aggregator/internal/server/ws"
)

// ServerMode runs the HTTP/WebSocket API server until the context is
// cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPIServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode periodically archives settled trades older than the retention
// window to object storage. It requires both postgres and s3 to be enabled.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode requires postgres and s3 to be enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiveLoop(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API server together with the archive loop when blob
// storage is configured.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPIServer(ctx, g, deps)
	if deps.Archiver != nil {
		a.startArchiveLoop(ctx, g, deps)
	}
	return g.Wait()
}

// startAPIServer adds the HTTP server (and the WebSocket hub when the event
// bus is wired) to the given errgroup. The server is shut down gracefully
// when the context is cancelled.
func (a *App) startAPIServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, API server not started")
		return
	}

	quotes := handler.NewQuoteHandler(deps.Exec, deps.Engine, deps.Routes, a.cfg.BestRate.Granularity, a.logger)
	if deps.QuoteCache != nil {
		quotes.SetCache(deps.QuoteCache)
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Quotes: quotes,
		Trades: handler.NewTradeHandler(deps.Exec, deps.TradeStore, deps.FeeStore, a.logger),
		Admin:  handler.NewAdminHandler(deps.Routes, deps.Partners, deps.Exemption, deps.Exec, deps.Operator, a.logger),
	}

	// The WebSocket hub relays settlement events from Redis; without the
	// event bus there is nothing to stream.
	var hub *ws.Hub
	if deps.EventBus != nil {
		hub = ws.NewHub(deps.EventBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiveLoop adds the periodic trade archiver to the given errgroup.
// The first cycle runs immediately.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.S3.ArchiveInterval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	g.Go(func() error {
		runOnce := func() {
			archived, err := deps.Archiver.Run(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive cycle failed", slog.String("error", err.Error()))
				return
			}
			if archived > 0 {
				a.logger.InfoContext(ctx, "archive cycle complete", slog.Int("trades", archived))
			}
		}

		runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				runOnce()
			}
		}
	})
}

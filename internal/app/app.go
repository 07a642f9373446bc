// Package app provides the top-level application lifecycle for the trading
// venue. It wires together all dependencies (stores, caches, the external
// venue client, services, and the HTTP server) and runs them until the
// context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/predictfi/venue/internal/config"
	"github.com/predictfi/venue/internal/feed"
	"github.com/predictfi/venue/internal/hedge"
	"github.com/predictfi/venue/internal/ledger"
	"github.com/predictfi/venue/internal/risk"
	"github.com/predictfi/venue/internal/server"
	"github.com/predictfi/venue/internal/server/handler"
	"github.com/predictfi/venue/internal/service"
	"github.com/predictfi/venue/internal/settle"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, assembles the
// services, starts the HTTP server and the order book feed, and blocks
// until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting venue",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Hedge pipeline stages.
	hedgeCfg := hedge.ConfigFrom(a.cfg.Hedge)
	resolver := hedge.NewResolver(deps.Mappings, a.logger)
	books := feed.NewCachedBooks(deps.PriceCache, deps.Venue, 0, a.logger)
	quoter := hedge.NewQuoteEngine(books, hedgeCfg, a.logger)
	executor := hedge.NewExecutor(deps.Venue, hedgeCfg, a.logger)

	validator := risk.NewManager(deps.Balances, a.cfg.Risk, a.cfg.Hedge.FeeRateBps, a.logger)
	tradeLedger := ledger.New(deps.Tx, deps.SignalBus, a.logger)

	var archiver settle.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	settler := settle.New(deps.Tx, deps.SignalBus, archiver, a.logger)

	tradeSvc := service.NewTradeService(
		deps.Markets,
		resolver,
		quoter,
		executor,
		tradeLedger,
		validator,
		deps.RateLimiter,
		deps.LockManager,
		a.cfg.Risk,
		a.logger,
	)
	marketSvc := service.NewMarketService(deps.Markets, deps.Activities, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(),
		Markets: handler.NewMarketHandler(marketSvc, settler, a.logger),
		Trades:  handler.NewTradeHandler(tradeSvc, a.logger),
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	// Order book feed for mapped markets. Best-effort: the venue trades
	// internally without it, and hedged quotes fall back to direct book
	// reads from the CLOB.
	tokens, err := deps.Mappings.ListActiveTokenIDs(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "listing mapped tokens failed, book feed disabled",
			slog.String("error", err.Error()),
		)
	} else if len(tokens) > 0 {
		bookFeed := feed.NewBookFeed(a.cfg.Exchange.WsHost, tokens, deps.PriceCache, a.logger)
		g.Go(func() error { return bookFeed.Run(ctx) })
		g.Go(func() error {
			<-ctx.Done()
			bookFeed.Close()
			return nil
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down venue")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/lbx/internal/repositories"
	"github.com/desertthunder/lbx/internal/server"
	"github.com/desertthunder/lbx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the JSON API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if addr := cmd.String("addr"); addr != "" {
		cfg.Addr = addr
	}

	engine, err := r.engine(ctx)
	if err != nil {
		return err
	}
	db, err := r.database()
	if err != nil {
		return err
	}

	logger := shared.WithLogger(r.logger, "component", "server")

	router := server.NewBasicRouter()
	router.Use(server.Recoverer(logger))
	router.Handler(server.NewWatchlistAPI(server.APIOptions{
		Engine:    engine,
		Catalog:   r.catalog,
		Users:     repositories.NewUserRepository(db),
		Providers: repositories.NewProviderRepository(db),
		Films:     repositories.NewFilmRepository(db, logger),
		Logger:    logger,
	}))

	handler := server.Chain(router, server.RequestLogger(logger), server.CORS(cfg.AllowedOrigin))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, server.NewServer(cfg, handler), cfg.ShutdownTimeout.Duration, logger)
}

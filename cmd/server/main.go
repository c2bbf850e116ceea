package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/menusync/internal/app"
	"github.com/JonMunkholm/menusync/internal/config"
	"github.com/JonMunkholm/menusync/internal/core"
	_ "github.com/JonMunkholm/menusync/internal/core/formats" // Register all parsers
	"github.com/JonMunkholm/menusync/internal/logging"
	"github.com/JonMunkholm/menusync/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := core.ValidateRegistry(); err != nil {
		return err
	}
	slog.Info("parsers registered", "formats", core.RegisteredFormats())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	// Jobs outlive the signal context so in-flight syncs can finish during
	// the shutdown grace period.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if err := engine.Start(jobCtx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(err, engine.Shutdown(shutdownCtx))
	}

	server := web.NewServer(engine.Service, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}

		if err := engine.Drain(shutdownCtx); err != nil {
			slog.Warn("sync jobs still running at shutdown deadline", "error", err)
		}
		if err := engine.Shutdown(shutdownCtx); err != nil {
			slog.Warn("sync jobs did not complete in time", "error", err)
			errs = append(errs, err)
		}
		cancelJobs()
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

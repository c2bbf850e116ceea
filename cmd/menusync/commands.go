package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/JonMunkholm/menusync/internal/app"
	"github.com/JonMunkholm/menusync/internal/config"
	"github.com/JonMunkholm/menusync/internal/core"
	"github.com/JonMunkholm/menusync/internal/logging"
	"github.com/JonMunkholm/menusync/internal/store/postgres"
)

// loadConfig reads the env file when present, then the environment.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if envFile := cmd.String("env"); envFile != "" {
		if err := godotenv.Overload(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func migrateAction(command string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for migrations")
		}

		pool, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolOptions{MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, pool, command); err != nil {
			return err
		}
		slog.Info("migration command finished", "command", command)
		return nil
	}
}

func syncAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := core.ValidateRegistry(); err != nil {
		return err
	}

	engine, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	engine.StartWorkers(ctx)
	defer func() {
		if err := engine.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("shutdown failed", "error", err)
		}
	}()

	file := cmd.String("file")
	data, err := engine.Fetcher.Fetch(ctx, file)
	if err != nil {
		return err
	}

	result := engine.Service.UploadAndSync(ctx, cmd.Int64("restaurant"), data, path.Base(file))
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.Success {
		return cli.Exit(result.Message, 1)
	}
	return nil
}

func schedulesAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	engine, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("shutdown failed", "error", err)
		}
	}()

	var defs []core.ScheduleDefinition
	if id := cmd.Int64("restaurant"); id != 0 {
		defs, err = engine.Service.ListSchedules(ctx, id)
	} else {
		defs, err = engine.Service.ListAllSchedules(ctx)
	}
	if err != nil {
		return err
	}

	schedules := make(map[string]core.ScheduleDefinition, len(defs))
	for _, def := range defs {
		schedules[def.Slot().String()] = def
	}
	return printJSON(map[string]any{"schedules": schedules, "total": len(defs)})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

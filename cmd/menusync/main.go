// Command menusync is the operator CLI: schema migrations, one-off catalog
// syncs and schedule listing against the configured backends.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/urfave/cli/v3"

	_ "github.com/JonMunkholm/menusync/internal/core/formats" // Register all parsers
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "environment file loaded before the process environment is read",
		Value: ".env",
	}

	cmd := &cli.Command{
		Name:  "menusync",
		Usage: "catalog synchronization engine tools",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Commands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "apply all pending migrations",
						Flags:  []cli.Flag{envFlag},
						Action: migrateAction("up"),
					},
					{
						Name:   "down",
						Usage:  "roll back the latest migration",
						Flags:  []cli.Flag{envFlag},
						Action: migrateAction("down"),
					},
					{
						Name:   "status",
						Usage:  "print the migration status",
						Flags:  []cli.Flag{envFlag},
						Action: migrateAction("status"),
					},
				},
			},
			{
				Name:  "sync",
				Usage: "sync one catalog file into a restaurant's catalog and print the result",
				Flags: []cli.Flag{
					envFlag,
					&cli.Int64Flag{
						Name:     "restaurant",
						Usage:    "restaurant id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "local path or s3://bucket/key of a .pdf, .xlsx, .xls or .csv file",
						Required: true,
					},
				},
				Action: syncAction,
			},
			{
				Name:  "schedules",
				Usage: "print every persisted schedule",
				Flags: []cli.Flag{
					envFlag,
					&cli.Int64Flag{
						Name:  "restaurant",
						Usage: "only this restaurant's schedules",
					},
				},
				Action: schedulesAction,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/keycache/cmd/app/commands"
	"github.com/allisson/keycache/internal/app"
	"github.com/allisson/keycache/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP server and keep the certificate cache up to date",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Apply or revert key group database migrations",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "down",
					Usage: "Revert migrations instead of applying them",
				},
				&cli.IntFlag{
					Name:  "steps",
					Usage: "Number of migrations to revert with --down, 0 reverts all",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString,
					commands.MigrateOptions{
						Down:  cmd.Bool("down"),
						Steps: int(cmd.Int("steps")),
					})
			},
		},
	}
}

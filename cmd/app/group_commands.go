package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/keycache/cmd/app/commands"
	"github.com/allisson/keycache/internal/app"
	"github.com/allisson/keycache/internal/config"
)

func getGroupCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-group",
			Usage: "Create a key group usable as a recipient",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Group name, matched case-insensitively",
				},
				&cli.StringFlag{
					Name:    "description",
					Aliases: []string{"d"},
					Usage:   "Free-form description",
				},
				&cli.StringSliceFlag{
					Name:     "fingerprint",
					Required: true,
					Usage:    "Member certificate fingerprint (repeatable)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				keyGroupUseCase, err := container.KeyGroupUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateGroup(
					ctx,
					keyGroupUseCase,
					container.Logger(),
					commands.DefaultIO(),
					cmd.String("name"),
					cmd.String("description"),
					cmd.StringSlice("fingerprint"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "list-groups",
			Usage: "List key groups",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "offset", Value: 0, Usage: "Number of groups to skip"},
				&cli.IntFlag{Name: "limit", Value: 100, Usage: "Maximum number of groups to list"},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				keyGroupUseCase, err := container.KeyGroupUseCase()
				if err != nil {
					return err
				}

				return commands.RunListGroups(
					ctx,
					keyGroupUseCase,
					commands.DefaultIO(),
					int(cmd.Int("offset")),
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "delete-group",
			Usage: "Delete a key group",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Key group ID (UUID)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				keyGroupUseCase, err := container.KeyGroupUseCase()
				if err != nil {
					return err
				}

				return commands.RunDeleteGroup(ctx, keyGroupUseCase, container.Logger(), commands.DefaultIO(), cmd.String("id"))
			},
		},
	}
}

package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/keycache/cmd/app/commands"
	"github.com/allisson/keycache/internal/app"
	"github.com/allisson/keycache/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "list-keys",
			Usage: "List the certificates known to the key source",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "protocol",
					Aliases: []string{"p"},
					Usage:   "Only list 'openpgp' or 'cms' certificates",
				},
				&cli.StringFlag{
					Name:    "email",
					Aliases: []string{"e"},
					Usage:   "Only list certificates with a user ID for this address",
				},
				&cli.BoolFlag{
					Name:    "secret",
					Aliases: []string{"s"},
					Usage:   "Only list certificates with secret key material",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				refreshUseCase, err := container.RefreshUseCase()
				if err != nil {
					return err
				}

				return commands.RunListKeys(
					ctx,
					refreshUseCase,
					container.Store(),
					container.Logger(),
					commands.DefaultIO(),
					commands.ListKeysOptions{
						Protocol:   cmd.String("protocol"),
						Email:      cmd.String("email"),
						SecretOnly: cmd.Bool("secret"),
						Format:     cmd.String("format"),
					},
				)
			},
		},
		{
			Name:  "resolve",
			Usage: "Select signing and encryption keys for a message",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "sender",
					Usage: "Sender address, required when signing",
				},
				&cli.StringSliceFlag{
					Name:    "recipient",
					Aliases: []string{"r"},
					Usage:   "Recipient address or key group name (repeatable)",
				},
				&cli.BoolFlag{Name: "sign", Usage: "Select signing keys"},
				&cli.BoolFlag{Name: "encrypt", Usage: "Select encryption keys"},
				&cli.BoolFlag{Name: "allow-mixed", Usage: "Allow OpenPGP and CMS keys in one message"},
				&cli.BoolFlag{Name: "allow-unencrypted", Usage: "Offer sending unencrypted when keys are missing"},
				&cli.StringFlag{Name: "force-protocol", Usage: "Only use 'openpgp' or 'cms' keys"},
				&cli.StringFlag{Name: "preset-protocol", Usage: "Prefer 'openpgp' or 'cms' keys"},
				&cli.StringFlag{Name: "minimum-validity", Usage: "Least user ID validity: marginal, full or ultimate"},
				&cli.BoolFlag{
					Name:    "interactive",
					Aliases: []string{"i"},
					Usage:   "Ask for missing or ambiguous keys instead of failing",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer func() { _ = container.Shutdown(ctx) }()

				refreshUseCase, err := container.RefreshUseCase()
				if err != nil {
					return err
				}
				resolverUseCase, err := container.ResolverUseCase()
				if err != nil {
					return err
				}

				return commands.RunResolve(
					ctx,
					refreshUseCase,
					resolverUseCase,
					container.Logger(),
					commands.DefaultIO(),
					commands.ResolveOptions{
						Sender:           cmd.String("sender"),
						Recipients:       cmd.StringSlice("recipient"),
						Sign:             cmd.Bool("sign"),
						Encrypt:          cmd.Bool("encrypt"),
						AllowMixed:       cmd.Bool("allow-mixed"),
						AllowUnencrypted: cmd.Bool("allow-unencrypted"),
						ForceProtocol:    cmd.String("force-protocol"),
						PresetProtocol:   cmd.String("preset-protocol"),
						MinimumValidity:  cmd.String("minimum-validity"),
						Interactive:      cmd.Bool("interactive"),
						Format:           cmd.String("format"),
					},
				)
			},
		},
	}
}

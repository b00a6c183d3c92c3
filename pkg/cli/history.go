package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/koa-cli/koa/pkg/history"
)

func (a *app) historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List jobs submitted from this machine",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   history.DefaultListLimit,
				Usage:   "maximum number of records",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := a.config(cmd)
			if err != nil {
				return err
			}
			store, err := history.Open(ctx, cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(ctx, cmd.Int("limit"))
			if err != nil {
				return err
			}
			return a.write(ctx, cmd, records, historyTable(records))
		},
	}
}

package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/monitor"
)

func (a *app) jobsCmd() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "List your queued and running jobs",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, p, err := a.profile(cmd)
			if err != nil {
				return err
			}
			jobs, err := monitor.New(a.runner, cfg.CommandTimeout).List(ctx, p)
			if err != nil {
				return err
			}
			return a.write(ctx, cmd, jobs, jobTable(jobs))
		},
	}
}

func (a *app) queueCmd() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Show the queue for all users, with your jobs marked",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "partition",
				Aliases: []string{"p"},
				Usage:   "only show this partition",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, p, err := a.profile(cmd)
			if err != nil {
				return err
			}
			entries, err := monitor.New(a.runner, cfg.CommandTimeout).Queue(ctx, p, cmd.String("partition"))
			if err != nil {
				return err
			}
			return a.write(ctx, cmd, entries, queueTable(entries))
		},
	}
}

func (a *app) cancelCmd() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel one or more jobs",
		ArgsUsage: "<job-id>...",
		Description: `Cancels each job with scancel and reports whether it was cancelled, was
not found, or could not be cancelled. The command fails unless every job was
cancelled.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids := cmd.Args().Slice()
			if len(ids) == 0 {
				return errors.New(errors.ErrCodeInvalidRequest, "expected at least one job id")
			}

			cfg, p, err := a.profile(cmd)
			if err != nil {
				return err
			}
			results, err := monitor.New(a.runner, cfg.CommandTimeout).CancelAll(ctx, p, ids)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Status != monitor.StatusCancelled {
					failed++
				}
			}

			if err := a.write(ctx, cmd, results, cancelTable(results)); err != nil {
				return err
			}
			if failed > 0 {
				return errors.New(errors.ErrCodeRemoteRejected, fmt.Sprintf("%d of %d jobs not cancelled", failed, len(ids)))
			}
			return nil
		},
	}
}

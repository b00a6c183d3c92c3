package cli

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/koa-cli/koa/pkg/health"
)

func (a *app) checkCmd() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify ssh connectivity and that Slurm answers on the login node",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, p, err := a.profile(cmd)
			if err != nil {
				return err
			}
			report, err := health.NewChecker(a.runner, cfg.CommandTimeout).Check(ctx, p)
			if err != nil {
				return err
			}
			slog.Info("cluster reachable",
				slog.String("login", report.Login),
				slog.String("hostname", report.Hostname),
				slog.Duration("latency", report.Latency),
				slog.Int("partitions", len(report.Partitions)),
			)
			return a.write(ctx, cmd, report, checkView{report})
		},
	}
}

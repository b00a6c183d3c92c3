package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/koa-cli/koa/pkg/syncer"
)

func (a *app) syncCmd() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync a local project directory to the remote workdir",
		Description: `Copies the project directory to <remote_workdir>/<project> with rsync over
ssh. Version control metadata, virtual environments, caches and build output
are skipped.

  koa sync
  koa sync --path ~/src/oumi --exclude data/ --exclude '*.ckpt'
  koa sync --mirror   # also delete remote files removed locally`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "local directory to sync (default: current directory)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "additional rsync exclude pattern (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "mirror",
				Usage: "delete remote files that no longer exist locally",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "print the resolved plan and rsync command without running it",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, p, err := a.profile(cmd)
			if err != nil {
				return err
			}

			local := cmd.String("path")
			if local == "" {
				local = "."
			}
			spec, err := syncer.Plan(local, syncer.Overrides{
				Excludes: cmd.StringSlice("exclude"),
				Mirror:   cmd.Bool("mirror"),
			}, p)
			if err != nil {
				return err
			}

			if cmd.Bool("dry-run") {
				return a.write(ctx, cmd, syncPlan{
					Spec:    *spec,
					Command: syncer.RsyncCommand(spec, a.runner.SSHCommand(p), p.Login()),
				}, nil)
			}

			opts := []syncer.Option{
				syncer.WithCommandTimeout(cfg.CommandTimeout),
				syncer.WithTransferTimeout(cfg.SyncTimeout),
			}
			if cmd.Bool("debug") {
				opts = append(opts, syncer.WithProgress(a.stderr))
			}

			start := time.Now()
			res, err := syncer.New(a.runner, opts...).Execute(ctx, spec, p)
			if err != nil {
				return err
			}
			slog.Info("sync complete",
				slog.String("target", p.Login()+":"+res.Target),
				slog.Duration("elapsed", time.Since(start)),
			)

			return a.write(ctx, cmd, res, syncView{
				Project: spec.ProjectName,
				Target:  p.Login() + ":" + res.Target,
				Result:  res,
				Elapsed: time.Since(start),
			})
		},
	}
}

// syncPlan is the dry-run output of sync.
type syncPlan struct {
	syncer.Spec `yaml:",inline"`
	Command     []string `json:"command" yaml:"command"`
}

package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/koa-cli/koa/pkg/envbuilder"
	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/syncer"
)

func (a *app) buildEnvCmd() *cli.Command {
	return &cli.Command{
		Name:  "build-env",
		Usage: "Build a persistent Python environment for a synced project",
		Description: `Creates or refreshes <remote_data_dir>/<project>/.venv on the login node
and installs the project into it. Run koa sync first.

  koa build-env
  koa build-env --requirements requirements-gpu.txt --rebuild`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "project",
				Usage: "synced project name (default: current directory name)",
			},
			&cli.StringFlag{
				Name:  "requirements",
				Usage: "requirements file inside the project (default: auto-detect)",
			},
			&cli.BoolFlag{
				Name:  "rebuild",
				Usage: "remove the existing environment first",
			},
			&cli.DurationFlag{
				Name:  "build-timeout",
				Value: envbuilder.DefaultTimeout,
				Usage: "maximum duration of the build",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, p, err := a.profile(cmd)
			if err != nil {
				return err
			}

			project := cmd.String("project")
			if project == "" {
				wd, err := os.Getwd()
				if err != nil {
					return errors.Wrap(errors.ErrCodeInternal, "failed to determine the current directory", err)
				}
				if project, err = syncer.DeriveProjectName(wd); err != nil {
					return err
				}
			}

			b := envbuilder.NewBuilder(a.runner,
				envbuilder.WithPythonModule(cfg.PythonModule),
				envbuilder.WithTimeout(cmd.Duration("build-timeout")),
				envbuilder.WithOutput(a.stderr),
			)
			res, err := b.Build(ctx, p, envbuilder.Options{
				Project:      project,
				Requirements: cmd.String("requirements"),
				Rebuild:      cmd.Bool("rebuild"),
			})
			if err != nil {
				return err
			}
			slog.Info("environment ready",
				slog.String("venv", res.VenvDir),
				slog.Duration("elapsed", res.Duration),
			)
			return a.write(ctx, cmd, res, nil)
		},
	}
}

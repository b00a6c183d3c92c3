package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/koa-cli/koa/pkg/config"
	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/history"
	"github.com/koa-cli/koa/pkg/profile"
	"github.com/koa-cli/koa/pkg/slurm"
	"github.com/koa-cli/koa/pkg/submitter"
	"github.com/koa-cli/koa/pkg/syncer"
)

func (a *app) submitCmd() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a job script with sbatch",
		ArgsUsage: "<job-script>",
		Description: `Submits a local job script. The script is sent to sbatch on stdin, so it
does not need to be synced first. #SBATCH directives in the script are kept;
flags given here override them.

When GPUs are requested without a type, the highest tier with idle capacity
is chosen from sinfo. A type in the script or --gpu-type pins it.

  koa submit train.slurm
  koa submit train.slurm --gpus 2 --time 04:00:00
  koa submit train.slurm --gpus 1 --gpu-type a100
  koa submit train.slurm --sbatch-arg=--mail-type=END --dry-run`,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "gpus", Usage: "number of GPUs to request"},
			&cli.StringFlag{Name: "gpu-type", Usage: "pin the GPU type (e.g. h100, a100)"},
			&cli.BoolFlag{Name: "no-auto-gpu", Usage: "disable automatic GPU type selection"},
			&cli.StringFlag{Name: "gres", Usage: "raw GRES specification, sent verbatim (e.g. gpu:h100:1)"},
			&cli.StringFlag{Name: "partition", Aliases: []string{"p"}, Usage: "Slurm partition (default from config)"},
			&cli.StringFlag{Name: "time", Usage: "walltime (e.g. 02:00:00)"},
			&cli.StringFlag{Name: "mem", Aliases: []string{"memory"}, Usage: "memory request (e.g. 32G)"},
			&cli.IntFlag{Name: "cpus", Usage: "CPUs per task"},
			&cli.StringFlag{Name: "account", Usage: "Slurm account"},
			&cli.StringFlag{Name: "qos", Usage: "quality of service"},
			&cli.StringFlag{Name: "job-name", Aliases: []string{"J"}, Usage: "job name (default: script name)"},
			&cli.StringFlag{Name: "project", Usage: "remote project directory used as the working directory (default: current directory name)"},
			&cli.BoolFlag{Name: "no-chdir", Usage: "do not set the job working directory"},
			&cli.StringSliceFlag{Name: "sbatch-arg", Usage: "additional sbatch option, e.g. --sbatch-arg=--mail-type=END (repeatable)"},
			&cli.BoolFlag{Name: "dry-run", Usage: "resolve and print the sbatch command without submitting"},
			&cli.BoolFlag{Name: "no-history", Usage: "do not record the submission locally"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			script := cmd.Args().First()
			if script == "" || cmd.Args().Len() > 1 {
				return errors.New(errors.ErrCodeInvalidRequest, "expected exactly one job script argument")
			}

			cfg, p, err := a.profile(cmd)
			if err != nil {
				return err
			}

			o, err := submitOverrides(cmd)
			if err != nil {
				return err
			}

			sub := submitter.New(a.runner,
				submitter.WithTiers(cfg.Tiers()),
				submitter.WithDefaultPartition(cfg.DefaultPartition),
				submitter.WithTimeout(cfg.CommandTimeout),
			)

			if cmd.Bool("dry-run") {
				plan, err := sub.BuildPlan(ctx, script, o, p)
				if err != nil {
					return err
				}
				return a.write(ctx, cmd, plan, submitView{JobID: "-", Plan: plan})
			}

			res, err := sub.Submit(ctx, script, o, p)
			if err != nil {
				return err
			}
			slog.Info("job submitted", slog.String("jobId", res.JobID), slog.String("login", p.Login()))

			if !cmd.Bool("no-history") {
				recordSubmission(ctx, cfg, p, res)
			}
			return a.write(ctx, cmd, res, submitView{JobID: res.JobID, Plan: res.Plan})
		},
	}
}

func submitOverrides(cmd *cli.Command) (submitter.Overrides, error) {
	o := submitter.Overrides{
		GPUs:      cmd.Int("gpus"),
		GPUType:   cmd.String("gpu-type"),
		NoAutoGPU: cmd.Bool("no-auto-gpu"),
		Gres:      cmd.String("gres"),
		Partition: cmd.String("partition"),
		Time:      cmd.String("time"),
		Mem:       cmd.String("mem"),
		CPUs:      cmd.Int("cpus"),
		Account:   cmd.String("account"),
		QOS:       cmd.String("qos"),
		JobName:   cmd.String("job-name"),
		Extra:     slurm.ParseArgs(cmd.StringSlice("sbatch-arg")),
	}
	if o.GPUs < 0 || o.CPUs < 0 {
		return o, errors.New(errors.ErrCodeInvalidRequest, "--gpus and --cpus must not be negative")
	}

	if cmd.Bool("no-chdir") {
		return o, nil
	}
	o.Project = cmd.String("project")
	if o.Project == "" {
		wd, err := os.Getwd()
		if err != nil {
			return o, errors.Wrap(errors.ErrCodeInternal, "failed to determine the current directory", err)
		}
		if o.Project, err = syncer.DeriveProjectName(wd); err != nil {
			return o, err
		}
	} else if name, err := syncer.DeriveProjectName(o.Project); err != nil || name != o.Project {
		return o, errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("invalid project name %q", o.Project))
	}
	return o, nil
}

// recordSubmission stores res in the local history. Failures are logged and
// never fail the submission, which has already happened.
func recordSubmission(ctx context.Context, cfg *config.Config, p *profile.Profile, res *submitter.Result) {
	store, err := history.Open(ctx, cfg.HistoryPath())
	if err != nil {
		slog.Warn("failed to open history", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	script, err := filepath.Abs(res.Plan.ScriptPath)
	if err != nil {
		script = res.Plan.ScriptPath
	}
	err = store.Add(ctx, &history.Record{
		JobID:       res.JobID,
		Host:        p.Host(),
		User:        p.User(),
		Script:      script,
		Partition:   res.Plan.Flags["partition"],
		Gres:        res.Plan.Flags["gres"],
		CommandLine: res.Plan.CommandLine,
	})
	if err != nil {
		slog.Warn("failed to record submission", slog.String("jobId", res.JobID), slog.String("error", err.Error()))
	}
}

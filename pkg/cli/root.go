package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/koa-cli/koa/pkg/config"
	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/logging"
	"github.com/koa-cli/koa/pkg/profile"
	"github.com/koa-cli/koa/pkg/remote"
	"github.com/koa-cli/koa/pkg/serializer"
)

const name = "koa"

var (
	// overridden at build time with ldflags
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitTimeout = 2
)

// app carries what every command shares. The config and profile are loaded
// lazily so commands that fail flag validation never touch the filesystem.
type app struct {
	runner remote.Interface
	stdout io.Writer
	stderr io.Writer

	cfg  *config.Config
	prof *profile.Profile
}

// Execute runs the koa command line and exits the process.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{
		runner: remote.NewRunner(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	err := a.rootCmd().Run(ctx, os.Args)
	stop()

	if err != nil {
		printError(a.stderr, err)
	}
	os.Exit(ExitCode(err))
}

func (a *app) rootCmd() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Usage:                 "Submit and manage jobs on the Koa HPC cluster over ssh",
		Version:               fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		EnableShellCompletion: true,
		Writer:                a.stdout,
		ErrWriter:             a.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the config file (default ~/.config/koa-cli/config.yaml)",
				Sources: cli.EnvVars(config.EnvConfig),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "write logs as JSON",
			},
			formatFlag(),
			outputFlag(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-call timeout for remote commands (default from config)",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "write Prometheus metrics for this run to a textfile",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultCLILogger(cmd.Bool("debug"), cmd.Bool("log-json"))
			slog.SetDefault(slog.Default().With(slog.String("invocation", uuid.NewString())))
			if _, err := parseOutputFormat(cmd); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		After: func(_ context.Context, cmd *cli.Command) error {
			path := cmd.String("metrics-file")
			if path == "" {
				return nil
			}
			if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
				slog.Warn("failed to write metrics", slog.String("path", path), slog.String("error", err.Error()))
			}
			return nil
		},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			a.syncCmd(),
			a.submitCmd(),
			a.jobsCmd(),
			a.queueCmd(),
			a.cancelCmd(),
			a.checkCmd(),
			a.buildEnvCmd(),
			a.historyCmd(),
		},
	}
}

// config loads the configuration once per invocation.
func (a *app) config(cmd *cli.Command) (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if d := cmd.Duration("timeout"); d > 0 {
		cfg.CommandTimeout = d
		cfg.SyncTimeout = d
	}
	slog.Debug("configuration loaded",
		slog.String("source", cfg.Source),
		slog.String("login", cfg.User+"@"+cfg.Host),
		slog.Duration("commandTimeout", cfg.CommandTimeout),
	)
	a.cfg = cfg
	return cfg, nil
}

// profile returns the connection profile built from the configuration.
func (a *app) profile(cmd *cli.Command) (*config.Config, *profile.Profile, error) {
	cfg, err := a.config(cmd)
	if err != nil {
		return nil, nil, err
	}
	if a.prof == nil {
		p, err := cfg.Profile()
		if err != nil {
			return nil, nil, err
		}
		a.prof = p
	}
	return cfg, a.prof, nil
}

// write serializes data per the --format and --output flags. Table output
// uses table when given.
func (a *app) write(ctx context.Context, cmd *cli.Command, data any, table serializer.Tabular) error {
	format, err := parseOutputFormat(cmd)
	if err != nil {
		return err
	}

	path := strings.TrimSpace(cmd.String("output"))
	if path != "" && path != serializer.StdoutURI {
		format = serializer.FormatFromPath(path, format)
	}

	v := data
	if format == serializer.FormatTable && table != nil {
		v = table
	}

	if path == "" || path == serializer.StdoutURI {
		return serializer.NewWriter(format, a.stdout).Serialize(ctx, v)
	}

	w, err := serializer.NewFileWriterOrStdout(format, path)
	if err != nil {
		return err
	}
	if c, ok := w.(serializer.Closer); ok {
		defer c.Close()
	}
	return w.Serialize(ctx, v)
}

// ExitCode maps an error returned by the command line to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errors.ErrCodeTimeout),
		errors.Is(err, errors.ErrCodeCanceled),
		stderrors.Is(err, context.DeadlineExceeded),
		stderrors.Is(err, context.Canceled):
		return ExitTimeout
	default:
		return ExitError
	}
}

// printError writes err and any raw remote diagnostics it carries.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	for _, key := range []string{errors.ContextStderr, errors.ContextStdout} {
		if s := errors.ContextString(err, key); s != "" {
			fmt.Fprintf(w, "--- remote %s ---\n%s\n", key, s)
		}
	}
	if errors.Is(err, errors.ErrCodeConfigurationMissing) {
		fmt.Fprintf(w, "hint: set %s and %s, or create %s\n", config.EnvUser, config.EnvHost, config.DefaultPath())
	}
}

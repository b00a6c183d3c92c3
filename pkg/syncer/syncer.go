package syncer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/profile"
	"github.com/koa-cli/koa/pkg/remote"
)

const (
	// DefaultCommandTimeout bounds the remote mkdir.
	DefaultCommandTimeout = 2 * time.Minute

	// DefaultTransferTimeout bounds the rsync transfer.
	DefaultTransferTimeout = 30 * time.Minute

	rsyncBinary = "rsync"
)

// rsync exit statuses that mean the connection, not the transfer, failed.
var rsyncTransportExits = map[int]bool{
	remote.TransportExitCode: true,
	5:                        true, // error starting client-server protocol
	12:                       true, // error in rsync protocol data stream
	35:                       true, // timeout waiting for daemon connection
}

// TransferResult is the outcome of one sync.
type TransferResult struct {
	ExitCode int            `json:"exitCode" yaml:"exitCode"`
	Success  bool           `json:"success" yaml:"success"`
	Target   string         `json:"target" yaml:"target"`
	Stats    *TransferStats `json:"stats,omitempty" yaml:"stats,omitempty"`
	Stdout   string         `json:"-" yaml:"-"`
	Stderr   string         `json:"-" yaml:"-"`
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithCommandTimeout sets the timeout for the remote mkdir.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		s.commandTimeout = d
	}
}

// WithTransferTimeout sets the timeout for rsync.
func WithTransferTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		s.transferTimeout = d
	}
}

// WithProgress streams rsync output to w while it runs.
func WithProgress(w io.Writer) Option {
	return func(s *Syncer) {
		s.progress = w
	}
}

// Syncer executes sync plans.
type Syncer struct {
	runner          remote.Interface
	commandTimeout  time.Duration
	transferTimeout time.Duration
	progress        io.Writer
}

// New returns a Syncer driving runner.
func New(runner remote.Interface, opts ...Option) *Syncer {
	s := &Syncer{
		runner:          runner,
		commandTimeout:  DefaultCommandTimeout,
		transferTimeout: DefaultTransferTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute creates the remote target and transfers spec.LocalPath into it.
// rsync is not started when the target cannot be created. A failed transfer
// returns both the result, carrying raw output, and an error.
func (s *Syncer) Execute(ctx context.Context, spec *Spec, p *profile.Profile) (*TransferResult, error) {
	if spec == nil || spec.RemoteTarget == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "sync spec has no remote target")
	}
	if p == nil {
		return nil, errors.New(errors.ErrCodeConfigurationMissing, "no connection profile")
	}

	mk, err := s.runner.Run(ctx, p, []string{"mkdir", "-p", spec.RemoteTarget}, remote.Options{Timeout: s.commandTimeout})
	if err != nil {
		return nil, err
	}
	if err := remote.CheckExit(mk, "mkdir "+spec.RemoteTarget); err != nil {
		return nil, err
	}

	argv := RsyncCommand(spec, s.runner.SSHCommand(p), p.Login())
	slog.Info("syncing project",
		slog.String("project", spec.ProjectName),
		slog.String("local", spec.LocalPath),
		slog.String("target", p.Login()+":"+spec.RemoteTarget),
		slog.Bool("mirror", spec.Mirror),
	)

	res, err := s.runner.RunLocal(ctx, argv, remote.Options{Timeout: s.transferTimeout, Stream: s.progress})
	if err != nil {
		return nil, err
	}

	result := &TransferResult{
		ExitCode: res.ExitCode,
		Success:  res.ExitCode == 0,
		Target:   spec.RemoteTarget,
		Stats:    ParseStats(res.Stdout),
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}

	if !result.Success {
		code := errors.ErrCodeRemoteRejected
		if rsyncTransportExits[res.ExitCode] {
			code = errors.ErrCodeTransportFailure
		}
		return result, errors.NewWithContext(code, "rsync failed", remote.Diagnostics(res))
	}

	if result.Stats == nil {
		slog.Debug("rsync summary not recognized, reporting exit status only")
	} else {
		syncedBytes.Add(float64(result.Stats.TransferredSize))
	}
	return result, nil
}

// RsyncCommand returns the rsync vector for spec. The trailing slash on the
// source copies the directory's contents rather than the directory itself.
func RsyncCommand(spec *Spec, sshCommand, login string) []string {
	argv := []string{rsyncBinary, "-az", "--stats", "--protect-args"}
	if spec.Mirror {
		argv = append(argv, "--delete")
	}
	for _, e := range spec.Excludes {
		argv = append(argv, "--exclude="+e)
	}
	return append(argv,
		"-e", sshCommand,
		spec.LocalPath+"/",
		login+":"+spec.RemoteTarget+"/",
	)
}

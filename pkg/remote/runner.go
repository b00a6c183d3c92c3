package remote

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"k8s.io/utils/exec"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/profile"
)

const (
	// DefaultSSHBinary is the transport executable.
	DefaultSSHBinary = "ssh"

	// TransportExitCode is the status ssh exits with when the connection
	// itself fails (unreachable host, authentication, proxy errors).
	TransportExitCode = 255
)

// Options control a single external call.
type Options struct {
	// Timeout bounds the call. Zero means no timeout beyond the context.
	Timeout time.Duration

	// Stdin is fed to the process when non-nil.
	Stdin io.Reader

	// Stream, when set, receives stdout and stderr as they are produced in
	// addition to the captured copies in Result.
	Stream io.Writer
}

// Result is the raw outcome of one process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the process exited zero.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Interface is the process-execution surface consumed by the rest of koa.
type Interface interface {
	// Run executes argv on the login node.
	Run(ctx context.Context, p *profile.Profile, argv []string, opts Options) (*Result, error)

	// RunLocal executes argv on this machine.
	RunLocal(ctx context.Context, argv []string, opts Options) (*Result, error)

	// SSHCommand renders the transport for tools that open their own connection.
	SSHCommand(p *profile.Profile) string
}

var _ Interface = (*Runner)(nil)

// Option configures a Runner.
type Option func(*Runner)

// WithExec overrides the process executor. Tests pass a fake here.
func WithExec(e exec.Interface) Option {
	return func(r *Runner) {
		r.exec = e
	}
}

// WithSSHBinary overrides the ssh executable name or path.
func WithSSHBinary(bin string) Option {
	return func(r *Runner) {
		if bin != "" {
			r.sshBinary = bin
		}
	}
}

// Runner executes commands on the login node over ssh, and local helper
// tools such as rsync. It spawns exactly one process per call and never
// interprets exit codes; that is left to each caller.
type Runner struct {
	exec      exec.Interface
	sshBinary string
}

// NewRunner returns a Runner using the real process executor unless overridden.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		exec:      exec.New(),
		sshBinary: DefaultSSHBinary,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes argv on the remote host described by p.
func (r *Runner) Run(ctx context.Context, p *profile.Profile, argv []string, opts Options) (*Result, error) {
	if p == nil {
		return nil, errors.New(errors.ErrCodeConfigurationMissing, "no connection profile")
	}
	if len(argv) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "empty remote command")
	}

	args := append(SSHArgs(p), p.Login(), QuoteCommand(argv))
	return r.run(ctx, argv[0], r.sshBinary, args, opts)
}

// RunLocal executes argv on the local machine.
func (r *Runner) RunLocal(ctx context.Context, argv []string, opts Options) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "empty local command")
	}
	return r.run(ctx, argv[0], argv[0], argv[1:], opts)
}

// SSHCommand renders the transport invocation as a single string, suitable
// for rsync's -e flag.
func (r *Runner) SSHCommand(p *profile.Profile) string {
	return QuoteCommand(append([]string{r.sshBinary}, SSHArgs(p)...))
}

// SSHArgs returns the ssh flags derived from p, without the binary and the
// destination. Identity file and proxy command occupy fixed positions and
// are omitted when unset.
func SSHArgs(p *profile.Profile) []string {
	args := []string{"-o", "LogLevel=ERROR"}
	if p.IdentityFile() != "" {
		args = append(args, "-i", p.IdentityFile())
	}
	if p.ProxyCommand() != "" {
		args = append(args, "-o", "ProxyCommand="+p.ProxyCommand())
	}
	return args
}

func (r *Runner) run(ctx context.Context, tool, name string, args []string, opts Options) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := r.exec.CommandContext(ctx, name, args...)
	if opts.Stdin != nil {
		cmd.SetStdin(opts.Stdin)
	}
	if opts.Stream != nil {
		cmd.SetStdout(io.MultiWriter(&stdout, opts.Stream))
		cmd.SetStderr(io.MultiWriter(&stderr, opts.Stream))
	} else {
		cmd.SetStdout(&stdout)
		cmd.SetStderr(&stderr)
	}

	slog.Debug("executing command",
		slog.String("tool", tool),
		slog.String("command", name+" "+strings.Join(args, " ")),
	)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	commandDuration.WithLabelValues(tool).Observe(elapsed.Seconds())

	if ctxErr := ctx.Err(); ctxErr != nil {
		if stderrors.Is(ctxErr, context.DeadlineExceeded) {
			commandTotal.WithLabelValues(tool, outcomeTimeout).Inc()
			return nil, errors.WrapWithContext(errors.ErrCodeTimeout,
				fmt.Sprintf("%s did not finish within the allotted time", tool), ctxErr,
				map[string]any{errors.ContextCommand: name})
		}
		commandTotal.WithLabelValues(tool, outcomeCanceled).Inc()
		return nil, errors.WrapWithContext(errors.ErrCodeCanceled,
			fmt.Sprintf("%s was interrupted", tool), ctxErr,
			map[string]any{errors.ContextCommand: name})
	}

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	if runErr != nil {
		var exitErr exec.ExitError
		if !stderrors.As(runErr, &exitErr) {
			commandTotal.WithLabelValues(tool, outcomeSpawnError).Inc()
			msg := fmt.Sprintf("failed to start %s", name)
			if stderrors.Is(runErr, exec.ErrExecutableNotFound) {
				msg = fmt.Sprintf("%s executable not found in PATH", name)
			}
			return nil, errors.WrapWithContext(errors.ErrCodeTransportFailure, msg, runErr,
				map[string]any{errors.ContextCommand: name})
		}
		res.ExitCode = exitErr.ExitStatus()
	}

	outcome := outcomeSuccess
	if res.ExitCode != 0 {
		outcome = outcomeNonZero
	}
	commandTotal.WithLabelValues(tool, outcome).Inc()

	slog.Debug("command finished",
		slog.String("tool", tool),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("duration", elapsed),
	)

	return res, nil
}

// IsTransportExit reports whether an ssh exit code signals a connection failure
// rather than a failure of the remote command.
func IsTransportExit(code int) bool {
	return code == TransportExitCode
}

// CheckExit converts a non-zero result into a structured error carrying the raw
// diagnostics: ssh's 255 becomes a transport failure and any other non-zero
// status a remote rejection. A zero exit returns nil.
func CheckExit(res *Result, what string) error {
	if res == nil || res.ExitCode == 0 {
		return nil
	}
	code := errors.ErrCodeRemoteRejected
	msg := fmt.Sprintf("%s exited with status %d", what, res.ExitCode)
	if IsTransportExit(res.ExitCode) {
		code = errors.ErrCodeTransportFailure
		msg = fmt.Sprintf("%s: connection to the remote host failed", what)
	}
	return errors.NewWithContext(code, msg, Diagnostics(res))
}

// Diagnostics returns the raw output of res as structured error context.
func Diagnostics(res *Result) map[string]any {
	return map[string]any{
		errors.ContextExitCode: res.ExitCode,
		errors.ContextStdout:   strings.TrimSpace(res.Stdout),
		errors.ContextStderr:   strings.TrimSpace(res.Stderr),
	}
}

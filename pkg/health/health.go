// Package health verifies that the login node is reachable and that the Slurm
// client tools answer.
package health

import (
	"context"
	"strings"
	"time"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/profile"
	"github.com/koa-cli/koa/pkg/remote"
	"github.com/koa-cli/koa/pkg/slurm"
)

// DefaultTimeout bounds the check.
const DefaultTimeout = 30 * time.Second

// outputMarker precedes the check's own output so that anything shell
// startup files print is skipped.
const outputMarker = "__koa_check__"

// Report is the outcome of a successful check.
type Report struct {
	Login      string            `json:"login" yaml:"login"`
	Hostname   string            `json:"hostname" yaml:"hostname"`
	Latency    time.Duration     `json:"latency" yaml:"latency"`
	Partitions []slurm.Partition `json:"partitions" yaml:"partitions"`
}

// Checker runs the connectivity check.
type Checker struct {
	runner  remote.Interface
	timeout time.Duration
}

// NewChecker returns a Checker. A zero timeout selects DefaultTimeout.
func NewChecker(runner remote.Interface, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{runner: runner, timeout: timeout}
}

// Check runs hostname and sinfo in one ssh session. Every failure to reach
// the host or run the tools is a transport failure.
func (c *Checker) Check(ctx context.Context, p *profile.Profile) (*Report, error) {
	if p == nil {
		return nil, errors.New(errors.ErrCodeConfigurationMissing, "no connection profile")
	}

	script := "set -euo pipefail; echo " + outputMarker + "; hostname; " + remote.QuoteCommand(slurm.PartitionCommand())
	res, err := c.runner.Run(ctx, p, []string{"bash", "-c", script}, remote.Options{Timeout: c.timeout})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTransportFailure, "connectivity check failed", err)
	}
	if res.ExitCode != 0 {
		return nil, errors.NewWithContext(errors.ErrCodeTransportFailure,
			"connectivity check failed", remote.Diagnostics(res))
	}

	out, ok := afterMarker(res.Stdout)
	if !ok {
		return nil, errors.NewWithContext(errors.ErrCodeUnparseableResponse,
			"connectivity check output is incomplete", remote.Diagnostics(res))
	}
	host, rest, _ := strings.Cut(strings.TrimLeft(out, "\n"), "\n")
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.NewWithContext(errors.ErrCodeUnparseableResponse,
			"connectivity check returned no hostname", remote.Diagnostics(res))
	}

	parts, err := slurm.ParsePartitions(rest)
	if err != nil {
		return nil, err
	}

	return &Report{
		Login:      p.Login(),
		Hostname:   host,
		Latency:    res.Duration,
		Partitions: parts,
	}, nil
}

// afterMarker returns the output following the marker line.
func afterMarker(stdout string) (string, bool) {
	rest := stdout
	for rest != "" {
		line, next, _ := strings.Cut(rest, "\n")
		if strings.TrimSpace(line) == outputMarker {
			return next, true
		}
		rest = next
	}
	return "", false
}

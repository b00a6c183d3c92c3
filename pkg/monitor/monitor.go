// Package monitor lists and cancels jobs on the cluster.
package monitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/profile"
	"github.com/koa-cli/koa/pkg/remote"
	"github.com/koa-cli/koa/pkg/slurm"
)

const (
	// DefaultTimeout bounds each squeue or scancel call.
	DefaultTimeout = 2 * time.Minute

	// DefaultCancelInterval spaces scancel calls when cancelling several jobs,
	// keeping the ssh connection rate below typical login-node limits.
	DefaultCancelInterval = 250 * time.Millisecond
)

type (
	// Job is one of the user's jobs.
	Job = slurm.Job

	// QueueEntry is one row of the partition-wide queue.
	QueueEntry = slurm.QueueEntry

	// CancelStatus classifies a cancellation.
	CancelStatus = slurm.CancelStatus
)

const (
	StatusCancelled = slurm.CancelStatusCancelled
	StatusNotFound  = slurm.CancelStatusNotFound
	StatusDenied    = slurm.CancelStatusDenied
	StatusFailed    = slurm.CancelStatusFailed
)

// CancelResult is the outcome of one scancel.
type CancelResult struct {
	JobID    string       `json:"jobId" yaml:"jobId"`
	Status   CancelStatus `json:"status" yaml:"status"`
	ExitCode int          `json:"exitCode" yaml:"exitCode"`
	Stderr   string       `json:"stderr,omitempty" yaml:"stderr,omitempty"`
}

// Monitor queries and cancels jobs through a remote runner.
type Monitor struct {
	runner  remote.Interface
	timeout time.Duration
	limiter *rate.Limiter
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCancelInterval sets the minimum spacing between scancel calls made by
// CancelAll. Zero or negative disables pacing.
func WithCancelInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d <= 0 {
			m.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		m.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// New returns a Monitor. A zero timeout selects DefaultTimeout.
func New(runner remote.Interface, timeout time.Duration, opts ...Option) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m := &Monitor{
		runner:  runner,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Every(DefaultCancelInterval), 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// List returns the profile user's jobs in squeue's order.
func (m *Monitor) List(ctx context.Context, p *profile.Profile) ([]Job, error) {
	if p == nil {
		return nil, errNoProfile()
	}
	res, err := m.query(ctx, p, slurm.ListCommand(p.User()))
	if err != nil {
		return nil, err
	}
	return slurm.ParseJobs(res.Stdout)
}

// Queue returns every user's jobs, optionally for one partition, marking the
// profile user's rows.
func (m *Monitor) Queue(ctx context.Context, p *profile.Profile, partition string) ([]QueueEntry, error) {
	if p == nil {
		return nil, errNoProfile()
	}
	res, err := m.query(ctx, p, slurm.QueueCommand(partition))
	if err != nil {
		return nil, err
	}
	return slurm.ParseQueue(res.Stdout, p.User())
}

// Cancel cancels jobID. Not-found, denied and other scheduler refusals are
// reported through CancelResult.Status; only transport problems are errors.
func (m *Monitor) Cancel(ctx context.Context, p *profile.Profile, jobID string) (*CancelResult, error) {
	jobID = strings.TrimSpace(jobID)
	if !slurm.ValidJobID(jobID) {
		return nil, errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("invalid job id %q", jobID))
	}
	if p == nil {
		return nil, errNoProfile()
	}

	res, err := m.runner.Run(ctx, p, slurm.CancelCommand(jobID), remote.Options{Timeout: m.timeout})
	if err != nil {
		return nil, err
	}
	if remote.IsTransportExit(res.ExitCode) {
		return nil, remote.CheckExit(res, "scancel")
	}

	result := &CancelResult{
		JobID:    jobID,
		Status:   slurm.ClassifyCancel(res.ExitCode, res.Stderr),
		ExitCode: res.ExitCode,
		Stderr:   strings.TrimSpace(res.Stderr),
	}
	slog.Debug("scancel finished",
		slog.String("job_id", jobID),
		slog.String("status", string(result.Status)),
	)
	return result, nil
}

// CancelAll cancels each job in turn, stopping at the first error. Ids are
// all validated before any remote call.
func (m *Monitor) CancelAll(ctx context.Context, p *profile.Profile, jobIDs []string) ([]CancelResult, error) {
	for _, id := range jobIDs {
		if !slurm.ValidJobID(strings.TrimSpace(id)) {
			return nil, errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("invalid job id %q", id))
		}
	}

	results := make([]CancelResult, 0, len(jobIDs))
	for _, id := range jobIDs {
		if err := m.limiter.Wait(ctx); err != nil {
			if stderrors.Is(ctx.Err(), context.Canceled) {
				return results, errors.Wrap(errors.ErrCodeCanceled, "cancellation interrupted", err)
			}
			return results, errors.Wrap(errors.ErrCodeTimeout, "cancellation did not finish before the deadline", err)
		}
		res, err := m.Cancel(ctx, p, id)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

func (m *Monitor) query(ctx context.Context, p *profile.Profile, argv []string) (*remote.Result, error) {
	res, err := m.runner.Run(ctx, p, argv, remote.Options{Timeout: m.timeout})
	if err != nil {
		return nil, err
	}
	if err := remote.CheckExit(res, "squeue"); err != nil {
		return nil, err
	}
	return res, nil
}

func errNoProfile() error {
	return errors.New(errors.ErrCodeConfigurationMissing, "no connection profile")
}

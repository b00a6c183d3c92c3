// Package submitter turns a local job script plus command-line overrides into
// one sbatch invocation on the login node.
//
// Flags are merged with this precedence, highest first:
//
//  1. command-line overrides
//  2. #SBATCH directives in the script
//  3. defaults (partition, job name, working directory)
//
// GPU flags are the exception: the script's gres/gpus directives and the
// --gpus/--gpu-type overrides are inputs to gpu.Resolve, whose selection
// replaces them. Non-GPU gres entries such as nvme:1 are kept. A raw --gres (or --gpus passed through --sbatch-arg) skips
// resolution and is sent verbatim.
package submitter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/gpu"
	"github.com/koa-cli/koa/pkg/profile"
	"github.com/koa-cli/koa/pkg/remote"
	"github.com/koa-cli/koa/pkg/slurm"
)

const (
	// DefaultPartition is used when neither the command line nor the script
	// names one.
	DefaultPartition = "kill-shared"

	// DefaultTimeout bounds the sbatch call.
	DefaultTimeout = 2 * time.Minute

	keyPartition = "partition"
	keyJobName   = "job-name"
	keyChdir     = "chdir"
	keyGres      = "gres"
	keyGpus      = "gpus"
)

// Overrides are the command-line side of a resource request.
type Overrides struct {
	GPUs      int
	GPUType   string
	NoAutoGPU bool

	Partition string
	Time      string
	Mem       string
	CPUs      int
	Account   string
	QOS       string
	JobName   string

	// Gres is sent verbatim and disables GPU resolution.
	Gres string

	// Project is the remote project directory name used as the default
	// working directory.
	Project string

	// Extra holds pass-through sbatch options keyed by long name.
	Extra map[string]string
}

// flags returns the overrides that map directly onto sbatch options.
func (o Overrides) flags() map[string]string {
	out := map[string]string{}
	maps.Copy(out, o.Extra)

	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set(keyPartition, o.Partition)
	set("time", o.Time)
	set("mem", o.Mem)
	if o.CPUs > 0 {
		out["cpus-per-task"] = strconv.Itoa(o.CPUs)
	}
	set("account", o.Account)
	set("qos", o.QOS)
	set(keyJobName, o.JobName)
	set(keyGres, o.Gres)
	return out
}

// Plan is a fully resolved submission.
type Plan struct {
	ScriptPath  string            `json:"scriptPath" yaml:"scriptPath"`
	Flags       map[string]string `json:"flags" yaml:"flags"`
	GPU         *gpu.Selection    `json:"gpu,omitempty" yaml:"gpu,omitempty"`
	CommandLine []string          `json:"commandLine" yaml:"commandLine"`
}

// Result is a successful submission.
type Result struct {
	JobID  string `json:"jobId" yaml:"jobId"`
	Plan   *Plan  `json:"plan" yaml:"plan"`
	Stdout string `json:"-" yaml:"-"`
	Stderr string `json:"-" yaml:"-"`
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithTiers replaces the GPU tier table.
func WithTiers(t gpu.TierTable) Option {
	return func(s *Submitter) {
		s.tiers = t
	}
}

// WithAvailabilityQuery replaces the sinfo-backed availability query.
func WithAvailabilityQuery(q gpu.AvailabilityQuery) Option {
	return func(s *Submitter) {
		s.query = q
	}
}

// WithDefaultPartition sets the lowest-precedence partition.
func WithDefaultPartition(p string) Option {
	return func(s *Submitter) {
		s.defaultPartition = p
	}
}

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) Option {
	return func(s *Submitter) {
		s.timeout = d
	}
}

// Submitter builds and runs submissions.
type Submitter struct {
	runner           remote.Interface
	tiers            gpu.TierTable
	query            gpu.AvailabilityQuery
	defaultPartition string
	timeout          time.Duration
}

// New returns a Submitter driving runner.
func New(runner remote.Interface, opts ...Option) *Submitter {
	s := &Submitter{
		runner:           runner,
		tiers:            gpu.DefaultTiers(),
		defaultPartition: DefaultPartition,
		timeout:          DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends the script at scriptPath to sbatch on stdin. Local problems
// (missing script, ambiguous GPU request) are reported before any remote call.
func (s *Submitter) Submit(ctx context.Context, scriptPath string, o Overrides, p *profile.Profile) (*Result, error) {
	script, err := readScript(scriptPath)
	if err != nil {
		return nil, err
	}

	plan, err := s.plan(ctx, scriptPath, script, o, p)
	if err != nil {
		return nil, err
	}

	slog.Info("submitting job",
		slog.String("script", scriptPath),
		slog.String("command", strings.Join(plan.CommandLine, " ")),
	)

	res, err := s.runner.Run(ctx, p, plan.CommandLine, remote.Options{
		Timeout: s.timeout,
		Stdin:   bytes.NewReader(script),
	})
	if err != nil {
		return nil, err
	}
	if err := remote.CheckExit(res, "sbatch"); err != nil {
		return nil, err
	}

	jobID, err := slurm.ParseSubmission(res.Stdout)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeUnparseableResponse,
			"could not determine the submitted job id", err, remote.Diagnostics(res))
	}

	submittedTotal.WithLabelValues(plan.Flags[keyPartition]).Inc()
	return &Result{
		JobID:  jobID,
		Plan:   plan,
		Stdout: res.Stdout,
		Stderr: res.Stderr,
	}, nil
}

// BuildPlan resolves flags and the command line without submitting. Auto GPU
// selection still queries availability.
func (s *Submitter) BuildPlan(ctx context.Context, scriptPath string, o Overrides, p *profile.Profile) (*Plan, error) {
	script, err := readScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return s.plan(ctx, scriptPath, script, o, p)
}

func (s *Submitter) plan(ctx context.Context, scriptPath string, script []byte, o Overrides, p *profile.Profile) (*Plan, error) {
	if p == nil {
		return nil, errors.New(errors.ErrCodeConfigurationMissing, "no connection profile")
	}

	directives, err := slurm.ParseDirectives(bytes.NewReader(script))
	if err != nil {
		return nil, err
	}
	cli := o.flags()

	flags := s.defaults(scriptPath, o, p)
	maps.Copy(flags, directives)

	var sel *gpu.Selection
	if _, raw := cli[keyGres]; raw || cli[keyGpus] != "" {
		delete(flags, keyGres)
		delete(flags, keyGpus)
	} else {
		in, err := gpuRequest(o, directives)
		if err != nil {
			return nil, err
		}
		if in.verbatim {
			slog.Warn("script gres is not a single gpu request, sending it unchanged",
				slog.String("gres", directives[keyGres]))
		} else {
			in.req.Partition = partitionOf(cli, flags)

			q := s.query
			if q == nil {
				q = &gpu.SinfoQuery{Runner: s.runner, Profile: p, Timeout: s.timeout}
			}
			sel, err = gpu.Resolve(ctx, in.req, s.tiers, q)
			if err != nil {
				return nil, err
			}
			if sel != nil {
				for _, k := range in.consumed {
					delete(flags, k)
				}
				flags[keyGres] = in.gres.Join(sel.GresValue())
			}
		}
	}

	maps.Copy(flags, cli)

	return &Plan{
		ScriptPath:  scriptPath,
		Flags:       flags,
		GPU:         sel,
		CommandLine: slurm.SbatchCommand(slurm.OrderFlags(flags)),
	}, nil
}

func (s *Submitter) defaults(scriptPath string, o Overrides, p *profile.Profile) map[string]string {
	flags := map[string]string{}
	if s.defaultPartition != "" {
		flags[keyPartition] = s.defaultPartition
	}
	base := filepath.Base(scriptPath)
	if name := strings.TrimSuffix(base, filepath.Ext(base)); name != "" {
		flags[keyJobName] = name
	}
	if o.Project != "" {
		flags[keyChdir] = p.ProjectDir(o.Project)
	}
	return flags
}

type gpuInput struct {
	req gpu.Request

	// consumed are the directive keys replaced by the selection.
	consumed []string

	// gres keeps the script's non-GPU gres entries.
	gres slurm.Gres

	// verbatim is set when the script's gres cannot be split into one GPU
	// entry; GPU flags are then left as the script wrote them.
	verbatim bool
}

// gpuRequest derives the resolver input from the script's gpus and gres
// directives. Command-line count and type win over the script's.
func gpuRequest(o Overrides, directives slurm.Directives) (gpuInput, error) {
	var in gpuInput
	if o.GPUs < 0 {
		return in, errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("invalid GPU count %d", o.GPUs))
	}

	var script slurm.GPURequest
	if v, ok := directives[keyGpus]; ok {
		if r, parsed := slurm.ParseGPURequest(v); parsed {
			script = r
			in.consumed = append(in.consumed, keyGpus)
		}
	}
	if v, ok := directives[keyGres]; ok {
		g, parsed := slurm.ParseGres(v)
		if !parsed {
			in.verbatim = true
			return in, nil
		}
		in.gres = g
		if g.GPU != nil {
			script = *g.GPU
		}
		in.consumed = append(in.consumed, keyGres)
	}

	in.req = gpu.Request{
		Count:        script.Count,
		ExplicitType: script.Type,
	}
	if o.GPUs > 0 {
		in.req.Count = o.GPUs
	}
	if o.GPUType != "" {
		in.req.ExplicitType = o.GPUType
	}
	in.req.AutoEnabled = !o.NoAutoGPU && in.req.ExplicitType == ""
	return in, nil
}

func partitionOf(cli, flags map[string]string) string {
	if p := cli[keyPartition]; p != "" {
		return p
	}
	return flags[keyPartition]
}

func readScript(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "no job script given")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, fmt.Sprintf("job script %s not found", path), err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("job script %s is not a regular file", path))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, fmt.Sprintf("failed to read job script %s", path), err)
	}
	if !bytes.HasPrefix(b, []byte("#!")) {
		return nil, errors.New(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("job script %s must start with an interpreter line such as #!/bin/bash", path))
	}
	return b, nil
}

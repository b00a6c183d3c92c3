// Package envbuilder creates a persistent Python virtual environment for a
// synced project on the cluster.
package envbuilder

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/profile"
	"github.com/koa-cli/koa/pkg/remote"
)

const (
	// DefaultPythonModule is the environment module providing python.
	DefaultPythonModule = "lang/Python/3.11.5-GCCcore-13.2.0"

	// DefaultTimeout bounds a build. Installing heavy dependencies is slow.
	DefaultTimeout = 60 * time.Minute

	pipSpec = "pip<24.1"
)

//go:embed script.tmpl
var scriptTemplate string

var tmpl = template.Must(template.New("build-env").Funcs(template.FuncMap{
	"q":     remote.Quote,
	"rpath": shellPath,
}).Parse(scriptTemplate))

// Options select what to build.
type Options struct {
	// Project is the synced project directory name.
	Project string

	// Requirements names a requirements file inside the project. When empty
	// the project is installed editable, or requirements.txt is used.
	Requirements string

	// Rebuild removes an existing environment first.
	Rebuild bool
}

// Result describes a finished build.
type Result struct {
	Project  string        `json:"project" yaml:"project"`
	VenvDir  string        `json:"venvDir" yaml:"venvDir"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

type scriptData struct {
	RepoDir      string
	VenvDir      string
	TmpDir       string
	PythonModule string
	PipSpec      string
	Requirements string
	Rebuild      bool
}

// Builder renders and runs the build script.
type Builder struct {
	runner       remote.Interface
	pythonModule string
	timeout      time.Duration
	output       io.Writer
}

// Option configures a Builder.
type Option func(*Builder)

// WithPythonModule overrides the module loaded before creating the venv.
func WithPythonModule(m string) Option {
	return func(b *Builder) {
		if m != "" {
			b.pythonModule = m
		}
	}
}

// WithTimeout bounds the build.
func WithTimeout(d time.Duration) Option {
	return func(b *Builder) {
		b.timeout = d
	}
}

// WithOutput streams the remote build log to w.
func WithOutput(w io.Writer) Option {
	return func(b *Builder) {
		b.output = w
	}
}

// NewBuilder returns a Builder driving runner.
func NewBuilder(runner remote.Interface, opts ...Option) *Builder {
	b := &Builder{
		runner:       runner,
		pythonModule: DefaultPythonModule,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// VenvDir returns where the environment for project lives: on the data
// directory, next to a tmp directory used by pip.
func VenvDir(p *profile.Profile, project string) string {
	return path.Join(p.RemoteDataDir(), project, ".venv")
}

// Script renders the build script without running it.
func (b *Builder) Script(p *profile.Profile, o Options) (string, error) {
	if p == nil {
		return "", errors.New(errors.ErrCodeConfigurationMissing, "no connection profile")
	}
	if p.RemoteDataDir() == "" {
		return "", errors.New(errors.ErrCodeConfigurationMissing,
			"remote data directory is not configured (set remote_data_dir or KOA_REMOTE_DATA_DIR)")
	}
	if o.Project == "" || strings.ContainsAny(o.Project, `/\`) || o.Project == "." || o.Project == ".." {
		return "", errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("invalid project name %q", o.Project))
	}

	data := scriptData{
		RepoDir:      p.ProjectDir(o.Project),
		VenvDir:      VenvDir(p, o.Project),
		TmpDir:       path.Join(p.RemoteDataDir(), "tmp"),
		PythonModule: b.pythonModule,
		PipSpec:      pipSpec,
		Rebuild:      o.Rebuild,
	}
	if o.Requirements != "" {
		data.Requirements = filepath.Base(o.Requirements)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, "failed to render build script", err)
	}
	return buf.String(), nil
}

// Build runs the script with bash on the login node, streaming its output.
func (b *Builder) Build(ctx context.Context, p *profile.Profile, o Options) (*Result, error) {
	script, err := b.Script(p, o)
	if err != nil {
		return nil, err
	}

	res, err := b.runner.Run(ctx, p, []string{"bash", "-s"}, remote.Options{
		Timeout: b.timeout,
		Stdin:   strings.NewReader(script),
		Stream:  b.output,
	})
	if err != nil {
		return nil, err
	}
	if err := remote.CheckExit(res, "environment build"); err != nil {
		return nil, err
	}

	return &Result{
		Project:  o.Project,
		VenvDir:  VenvDir(p, o.Project),
		Duration: res.Duration,
	}, nil
}

// shellPath renders a normalized remote path for use in the script, which
// changes directory before using it: relative paths are anchored at $HOME.
func shellPath(p string) string {
	if strings.HasPrefix(p, "/") {
		return remote.Quote(p)
	}
	return `"$HOME"/` + remote.Quote(p)
}

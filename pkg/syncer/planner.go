// Package syncer copies a local project tree to its per-project directory
// under the remote workdir with rsync over ssh.
package syncer

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/profile"
)

// DefaultExcludes are always skipped: version control metadata, virtual
// environments, caches and build output.
var DefaultExcludes = []string{
	".git/",
	".gitignore",
	".venv/",
	"__pycache__/",
	"*.pyc",
	"*.pyo",
	"*.pyd",
	"*.log",
	"*.tmp",
	".DS_Store",
	".mypy_cache/",
	".pytest_cache/",
	".ruff_cache/",
	".coverage",
	".idea/",
	".vscode/",
	".claude/",
	"node_modules/",
	"*.egg-info/",
	"dist/",
	"build/",
}

// Overrides adjust a sync plan.
type Overrides struct {
	// Path replaces the local directory to sync.
	Path string

	// Excludes are added to DefaultExcludes.
	Excludes []string

	// Mirror deletes remote files that no longer exist locally.
	Mirror bool
}

// Spec is a fully resolved sync.
type Spec struct {
	LocalPath    string   `json:"localPath" yaml:"localPath"`
	ProjectName  string   `json:"projectName" yaml:"projectName"`
	Excludes     []string `json:"excludes" yaml:"excludes"`
	RemoteTarget string   `json:"remoteTarget" yaml:"remoteTarget"`
	Mirror       bool     `json:"mirror" yaml:"mirror"`
}

// Plan resolves localPath (or o.Path) against p without touching the network.
func Plan(localPath string, o Overrides, p *profile.Profile) (*Spec, error) {
	if p == nil {
		return nil, errors.New(errors.ErrCodeConfigurationMissing, "no connection profile")
	}
	if o.Path != "" {
		localPath = o.Path
	}
	if localPath == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "no local path to sync")
	}

	abs, err := filepath.Abs(localPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to resolve local path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, fmt.Sprintf("local path %s is not accessible", abs), err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidRequest, fmt.Sprintf("local path %s is not a directory", abs))
	}

	name, err := DeriveProjectName(abs)
	if err != nil {
		return nil, err
	}

	return &Spec{
		LocalPath:    abs,
		ProjectName:  name,
		Excludes:     MergeExcludes(o.Excludes),
		RemoteTarget: path.Join(p.RemoteWorkdir(), name),
		Mirror:       o.Mirror,
	}, nil
}

// DeriveProjectName returns the final segment of localPath, ignoring trailing
// separators. Roots and relative markers are rejected so a sync never lands in
// an unnamed remote directory.
func DeriveProjectName(localPath string) (string, error) {
	trimmed := strings.TrimRight(localPath, `/\`)
	name := filepath.Base(trimmed)
	switch name {
	case "", ".", "..", "/", `\`, "~":
		return "", errors.New(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("cannot derive a project name from %q", localPath))
	}
	if strings.ContainsAny(name, `/\`) {
		return "", errors.New(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("cannot derive a project name from %q", localPath))
	}
	return name, nil
}

// MergeExcludes returns DefaultExcludes followed by extra, keeping first
// occurrences and dropping blanks.
func MergeExcludes(extra []string) []string {
	all := append(append([]string{}, DefaultExcludes...), extra...)
	all = lo.Filter(all, func(p string, _ int) bool {
		return strings.TrimSpace(p) != ""
	})
	return lo.Uniq(all)
}

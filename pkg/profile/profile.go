// Package profile holds the resolved, validated parameters needed to reach
// the cluster login node. A Profile is built once per invocation and is
// read-only afterwards; every core operation receives it by parameter.
package profile

import (
	"fmt"
	"path"
	"strings"

	"github.com/koa-cli/koa/pkg/errors"
)

// DefaultRemoteWorkdir is used when no remote working directory is configured.
const DefaultRemoteWorkdir = "~/koa-jobs"

// Option is a functional option for New.
type Option func(*Profile)

// WithIdentityFile sets the ssh identity file.
func WithIdentityFile(file string) Option {
	return func(p *Profile) {
		p.identityFile = strings.TrimSpace(file)
	}
}

// WithProxyCommand sets the ssh ProxyCommand.
func WithProxyCommand(cmd string) Option {
	return func(p *Profile) {
		p.proxyCommand = strings.TrimSpace(cmd)
	}
}

// WithRemoteWorkdir sets the remote directory projects are synced under.
func WithRemoteWorkdir(dir string) Option {
	return func(p *Profile) {
		p.remoteWorkdir = dir
	}
}

// WithRemoteDataDir sets the remote directory for large outputs and environments.
func WithRemoteDataDir(dir string) Option {
	return func(p *Profile) {
		p.remoteDataDir = dir
	}
}

// Profile is an immutable set of remote-access parameters.
type Profile struct {
	host          string
	user          string
	identityFile  string
	proxyCommand  string
	remoteWorkdir string
	remoteDataDir string
}

// New validates the inputs and returns a Profile with normalized remote paths.
func New(host, user string, opts ...Option) (*Profile, error) {
	p := &Profile{
		host:          strings.TrimSpace(host),
		user:          strings.TrimSpace(user),
		remoteWorkdir: DefaultRemoteWorkdir,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.host == "" {
		return nil, errors.New(errors.ErrCodeConfigurationMissing, "remote host is required")
	}
	if p.user == "" {
		return nil, errors.New(errors.ErrCodeConfigurationMissing, "remote user is required")
	}
	if strings.ContainsAny(p.host+p.user, " \t\n@") {
		return nil, errors.New(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid login %q", p.user+"@"+p.host))
	}

	workdir, err := NormalizeRemotePath(p.remoteWorkdir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid remote workdir", err)
	}
	p.remoteWorkdir = workdir

	if strings.TrimSpace(p.remoteDataDir) != "" {
		dataDir, err := NormalizeRemotePath(p.remoteDataDir)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid remote data dir", err)
		}
		p.remoteDataDir = dataDir
	} else {
		p.remoteDataDir = ""
	}

	return p, nil
}

// Host returns the login host.
func (p *Profile) Host() string { return p.host }

// User returns the remote user name.
func (p *Profile) User() string { return p.user }

// IdentityFile returns the ssh identity file, or "" when unset.
func (p *Profile) IdentityFile() string { return p.identityFile }

// ProxyCommand returns the ssh ProxyCommand, or "" when unset.
func (p *Profile) ProxyCommand() string { return p.proxyCommand }

// RemoteWorkdir returns the normalized remote working directory.
func (p *Profile) RemoteWorkdir() string { return p.remoteWorkdir }

// RemoteDataDir returns the normalized remote data directory, or "" when unset.
func (p *Profile) RemoteDataDir() string { return p.remoteDataDir }

// Login returns the ssh destination in user@host form.
func (p *Profile) Login() string {
	return p.user + "@" + p.host
}

// ProjectDir returns the remote directory for the named project.
func (p *Profile) ProjectDir(project string) string {
	return path.Join(p.remoteWorkdir, project)
}

// String implements fmt.Stringer.
func (p *Profile) String() string {
	return fmt.Sprintf("%s:%s", p.Login(), p.remoteWorkdir)
}

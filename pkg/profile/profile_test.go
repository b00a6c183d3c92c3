package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koa-cli/koa/pkg/errors"
)

func TestNormalizeRemotePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "home relative", in: "~/koa-jobs", want: "koa-jobs"},
		{name: "home relative nested", in: "~/work/koa-jobs/", want: "work/koa-jobs"},
		{name: "plain relative", in: "koa-jobs", want: "koa-jobs"},
		{name: "dollar home", in: "$HOME/koa-jobs", want: "koa-jobs"},
		{name: "absolute", in: "/mnt/lustre/koa/scratch/alice/", want: "/mnt/lustre/koa/scratch/alice"},
		{name: "absolute with dots", in: "/mnt/lustre/../data", want: "/mnt/data"},
		{name: "bare tilde", in: "~", wantErr: true},
		{name: "tilde slash", in: "~/", wantErr: true},
		{name: "tilde user", in: "~bob/jobs", wantErr: true},
		{name: "empty", in: "  ", wantErr: true},
		{name: "dot", in: ".", wantErr: true},
		{name: "escapes home", in: "~/../etc", wantErr: true},
		{name: "embedded tilde", in: "jobs/~", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRemotePath(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, "~", got)
		})
	}
}

func TestNew(t *testing.T) {
	p, err := New("koa.its.hawaii.edu", "alice",
		WithIdentityFile("/home/alice/.ssh/id_ed25519"),
		WithProxyCommand("ssh -W %h:%p jump"),
		WithRemoteDataDir("/mnt/lustre/koa/scratch/alice"),
	)
	require.NoError(t, err)

	assert.Equal(t, "alice@koa.its.hawaii.edu", p.Login())
	assert.Equal(t, "koa-jobs", p.RemoteWorkdir())
	assert.Equal(t, "/mnt/lustre/koa/scratch/alice", p.RemoteDataDir())
	assert.Equal(t, "/home/alice/.ssh/id_ed25519", p.IdentityFile())
	assert.Equal(t, "ssh -W %h:%p jump", p.ProxyCommand())
	assert.Equal(t, "koa-jobs/oumi", p.ProjectDir("oumi"))
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		user     string
		opts     []Option
		wantCode errors.ErrorCode
	}{
		{name: "missing host", user: "alice", wantCode: errors.ErrCodeConfigurationMissing},
		{name: "missing user", host: "koa", wantCode: errors.ErrCodeConfigurationMissing},
		{name: "bad login", host: "koa", user: "al ice", wantCode: errors.ErrCodeInvalidRequest},
		{
			name:     "tilde workdir",
			host:     "koa",
			user:     "alice",
			opts:     []Option{WithRemoteWorkdir("~")},
			wantCode: errors.ErrCodeInvalidRequest,
		},
		{
			name:     "tilde data dir",
			host:     "koa",
			user:     "alice",
			opts:     []Option{WithRemoteDataDir("~")},
			wantCode: errors.ErrCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.host, tt.user, tt.opts...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

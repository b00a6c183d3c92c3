package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koa-cli/koa/pkg/errors"
)

// clearEnv isolates a test from the caller's KOA_* settings and home directory.
func clearEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{EnvConfig, EnvUser, EnvHost, EnvIdentityFile, EnvProxyCommand,
		EnvRemoteWorkdir, EnvRemoteDataDir, EnvDefaultPartition} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	return home
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "~/koa-jobs", cfg.RemoteWorkdir)
	assert.Equal(t, "kill-shared", cfg.DefaultPartition)
	assert.Equal(t, 2*time.Minute, cfg.CommandTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SyncTimeout)
	assert.Equal(t, "h200", cfg.GPUTiers[0].Name)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
user: alice
host: koa.its.hawaii.edu
remote_workdir: ~/jobs
remote_data_dir: /mnt/lustre/koa/scratch/alice
proxy_command: ssh -W %h:%p jump
command_timeout: 45s
gpu_tiers:
  - name: h100
    gres: nvidia_h100
  - name: a100
    gres: nvidia_a100
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, 45*time.Second, cfg.CommandTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SyncTimeout)
	assert.Equal(t, []string{"h100", "a100"}, cfg.Tiers().Names())
	assert.Equal(t, filepath.Join(filepath.Dir(path), "history.db"), cfg.HistoryPath())

	p, err := cfg.Profile()
	require.NoError(t, err)
	assert.Equal(t, "alice@koa.its.hawaii.edu", p.Login())
	assert.Equal(t, "jobs", p.RemoteWorkdir())
	assert.Equal(t, "/mnt/lustre/koa/scratch/alice", p.RemoteDataDir())
	assert.Equal(t, "ssh -W %h:%p jump", p.ProxyCommand())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "user: alice\nhost: koa\n")
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvUser, "bob")
	t.Setenv(EnvRemoteWorkdir, "/home/bob/work")
	t.Setenv(EnvDefaultPartition, "gpu")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.User)
	assert.Equal(t, "koa", cfg.Host)
	assert.Equal(t, "/home/bob/work", cfg.RemoteWorkdir)
	assert.Equal(t, "gpu", cfg.DefaultPartition)
}

func TestLoad_EnvOnly(t *testing.T) {
	home := clearEnv(t)
	t.Setenv(EnvUser, "alice")
	t.Setenv(EnvHost, "koa")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Source)
	assert.Equal(t, filepath.Join(home, ".config", "koa-cli", "history.db"), cfg.HistoryPath())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		path    string
		code    errors.ErrorCode
	}{
		{name: "explicit file missing", path: "/nonexistent/koa/config.yaml", code: errors.ErrCodeConfigurationMissing},
		{name: "missing host", content: "user: alice\n", code: errors.ErrCodeConfigurationMissing},
		{name: "empty file", content: "", code: errors.ErrCodeConfigurationMissing},
		{name: "unknown key", content: "user: alice\nhost: koa\nhots: typo\n", code: errors.ErrCodeInvalidRequest},
		{name: "bad timeout", content: "user: alice\nhost: koa\ncommand_timeout: soon\n", code: errors.ErrCodeInvalidRequest},
		{name: "identity file missing", content: "user: alice\nhost: koa\nidentity_file: /nonexistent/id_rsa\n", code: errors.ErrCodeConfigurationMissing},
		{name: "duplicate tiers", content: "user: alice\nhost: koa\ngpu_tiers:\n  - name: h100\n  - name: H100\n", code: errors.ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := tt.path
			if path == "" {
				path = writeConfig(t, tt.content)
			}
			_, err := Load(path)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestLoad_NoConfigAnywhere(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigurationMissing, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "user, host")
}

func TestExpandHome(t *testing.T) {
	home := clearEnv(t)
	assert.Equal(t, filepath.Join(home, ".ssh/id_rsa"), ExpandHome("~/.ssh/id_rsa"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/etc/koa", ExpandHome("/etc/koa"))
	assert.Equal(t, "~bob/x", ExpandHome("~bob/x"))
}

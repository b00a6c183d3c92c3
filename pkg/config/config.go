// Package config loads the koa connection settings from a YAML file and the
// environment, and turns them into a profile and GPU tier table.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koa-cli/koa/pkg/errors"
	"github.com/koa-cli/koa/pkg/gpu"
	"github.com/koa-cli/koa/pkg/profile"
)

// Environment variables consulted by Load.
const (
	EnvConfig           = "KOA_CONFIG"
	EnvUser             = "KOA_USER"
	EnvHost             = "KOA_HOST"
	EnvIdentityFile     = "KOA_IDENTITY_FILE"
	EnvProxyCommand     = "KOA_PROXY_COMMAND"
	EnvRemoteWorkdir    = "KOA_REMOTE_WORKDIR"
	EnvRemoteDataDir    = "KOA_REMOTE_DATA_DIR"
	EnvDefaultPartition = "KOA_DEFAULT_PARTITION"
)

const (
	// DefaultDirName is the directory under the user config dir.
	DefaultDirName = "koa-cli"

	// DefaultFileName is the config file inside DefaultDirName.
	DefaultFileName = "config.yaml"

	// DefaultHistoryFileName is the submission history database.
	DefaultHistoryFileName = "history.db"
)

const exampleConfig = `user: your_koa_netid
host: koa.its.hawaii.edu
remote_workdir: ~/koa-jobs          # optional
remote_data_dir: /mnt/lustre/...    # optional, needed by build-env
identity_file: ~/.ssh/id_rsa        # optional
proxy_command: ssh -W %h:%p jumphost  # optional`

// Config is the on-disk configuration merged with environment overrides.
type Config struct {
	User             string        `yaml:"user"`
	Host             string        `yaml:"host"`
	IdentityFile     string        `yaml:"identity_file,omitempty"`
	ProxyCommand     string        `yaml:"proxy_command,omitempty"`
	RemoteWorkdir    string        `yaml:"remote_workdir,omitempty"`
	RemoteDataDir    string        `yaml:"remote_data_dir,omitempty"`
	DefaultPartition string        `yaml:"default_partition,omitempty"`
	PythonModule     string        `yaml:"python_module,omitempty"`
	CommandTimeout   time.Duration `yaml:"command_timeout,omitempty"`
	SyncTimeout      time.Duration `yaml:"sync_timeout,omitempty"`
	HistoryFile      string        `yaml:"history_file,omitempty"`
	GPUTiers         gpu.TierTable `yaml:"gpu_tiers,omitempty"`

	// Source is the file the config was read from, empty when none was found.
	Source string `yaml:"-"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		RemoteWorkdir:    profile.DefaultRemoteWorkdir,
		DefaultPartition: "kill-shared",
		PythonModule:     "lang/Python/3.11.5-GCCcore-13.2.0",
		CommandTimeout:   2 * time.Minute,
		SyncTimeout:      30 * time.Minute,
		GPUTiers:         gpu.DefaultTiers(),
	}
}

// DefaultPath returns ~/.config/koa-cli/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", DefaultDirName, DefaultFileName)
	}
	return filepath.Join(home, ".config", DefaultDirName, DefaultFileName)
}

// Load reads the config file and applies environment overrides.
//
// The file is path, else $KOA_CONFIG, else DefaultPath. An explicitly named
// file must exist; the default file may be absent when the environment
// supplies the user and host.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = DefaultPath()
		explicit = false
	}
	path = ExpandHome(path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequest, fmt.Sprintf("invalid config file %s", path), err)
		}
		cfg.Source = path
	case stderrors.Is(err, os.ErrNotExist) && !explicit:
		slog.Debug("no config file, using environment only", slog.String("path", path))
	case stderrors.Is(err, os.ErrNotExist):
		return nil, errors.New(errors.ErrCodeConfigurationMissing,
			fmt.Sprintf("configuration file not found at %s", path))
	default:
		return nil, errors.Wrap(errors.ErrCodeConfigurationMissing, fmt.Sprintf("failed to read %s", path), err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		EnvUser:             &c.User,
		EnvHost:             &c.Host,
		EnvIdentityFile:     &c.IdentityFile,
		EnvProxyCommand:     &c.ProxyCommand,
		EnvRemoteWorkdir:    &c.RemoteWorkdir,
		EnvRemoteDataDir:    &c.RemoteDataDir,
		EnvDefaultPartition: &c.DefaultPartition,
	} {
		if v, ok := os.LookupEnv(env); ok {
			*field = strings.TrimSpace(v)
		}
	}
}

// Validate checks required keys, the identity file and the tier table.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.User) == "" {
		missing = append(missing, "user")
	}
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "host")
	}
	if len(missing) > 0 {
		return errors.NewWithContext(errors.ErrCodeConfigurationMissing,
			fmt.Sprintf("missing required config keys: %s; create %s with:\n\n%s",
				strings.Join(missing, ", "), DefaultPath(), exampleConfig),
			map[string]any{"missing": missing})
	}

	if c.IdentityFile != "" {
		c.IdentityFile = ExpandHome(c.IdentityFile)
		if _, err := os.Stat(c.IdentityFile); err != nil {
			return errors.Wrap(errors.ErrCodeConfigurationMissing,
				fmt.Sprintf("configured identity_file not found: %s", c.IdentityFile), err)
		}
	}

	if c.CommandTimeout < 0 || c.SyncTimeout < 0 {
		return errors.New(errors.ErrCodeInvalidRequest, "timeouts must not be negative")
	}

	if len(c.GPUTiers) == 0 {
		c.GPUTiers = gpu.DefaultTiers()
	}
	if err := c.GPUTiers.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "invalid gpu_tiers", err)
	}
	return nil
}

// Profile builds the connection profile.
func (c *Config) Profile() (*profile.Profile, error) {
	return profile.New(c.Host, c.User,
		profile.WithIdentityFile(c.IdentityFile),
		profile.WithProxyCommand(c.ProxyCommand),
		profile.WithRemoteWorkdir(c.RemoteWorkdir),
		profile.WithRemoteDataDir(c.RemoteDataDir),
	)
}

// Tiers returns the configured GPU tier table.
func (c *Config) Tiers() gpu.TierTable {
	if len(c.GPUTiers) == 0 {
		return gpu.DefaultTiers()
	}
	return c.GPUTiers
}

// HistoryPath returns the local submission history database path.
func (c *Config) HistoryPath() string {
	if c.HistoryFile != "" {
		return ExpandHome(c.HistoryFile)
	}
	if c.Source != "" {
		return filepath.Join(filepath.Dir(c.Source), DefaultHistoryFileName)
	}
	return filepath.Join(filepath.Dir(DefaultPath()), DefaultHistoryFileName)
}

// ExpandHome expands a leading ~ to the local home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

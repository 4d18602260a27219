package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/devstack/internal/health"
	"github.com/loykin/devstack/internal/logger"
)

const EnvPrefix = "DEVSTACK"

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type SessionConfig struct {
	// DSN of the snapshot store; see store/factory.
	DSN string `mapstructure:"dsn"`
}

type HistoryConfig struct {
	DSNs []string `mapstructure:"dsns"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type SupervisorConfig struct {
	Tick          time.Duration `mapstructure:"tick"`
	RestartSettle time.Duration `mapstructure:"restart_settle"`
	StopGrace     time.Duration `mapstructure:"stop_grace"`
}

// ServiceOverride adjusts a catalog service by id. Nil fields keep the
// catalog value.
type ServiceOverride struct {
	ID           string         `mapstructure:"id"`
	Executable   string         `mapstructure:"executable"`
	Args         []string       `mapstructure:"args"`
	Port         *int           `mapstructure:"port"`
	AutoStart    *bool          `mapstructure:"auto_start"`
	AutoRestart  *bool          `mapstructure:"auto_restart"`
	MaxRestarts  *int           `mapstructure:"max_restarts"`
	RestartDelay *time.Duration `mapstructure:"restart_delay"`
	Health       *health.Config `mapstructure:"health"`
}

// Config represents the top-level TOML structure.
type Config struct {
	DataDir      string            `mapstructure:"data_dir"`
	InstallRoot  string            `mapstructure:"install_root"`
	ProjectsFile string            `mapstructure:"projects_file"`
	Env          []string          `mapstructure:"env"`
	EnvFiles     []string          `mapstructure:"env_files"`
	Server       ServerConfig      `mapstructure:"server"`
	Log          logger.Config     `mapstructure:"log"`
	Session      SessionConfig     `mapstructure:"session"`
	History      HistoryConfig     `mapstructure:"history"`
	Metrics      MetricsConfig     `mapstructure:"metrics"`
	Supervisor   SupervisorConfig  `mapstructure:"supervisor"`
	Services     []ServiceOverride `mapstructure:"services"`
}

// DefaultDataDir is the per-user directory for state, logs and the project
// list.
func DefaultDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, "devstack")
	}
	return ".devstack"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("server.listen", "127.0.0.1:7420")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:7421")
	v.SetDefault("supervisor.tick", "5s")
	v.SetDefault("supervisor.restart_settle", "1s")
	v.SetDefault("supervisor.stop_grace", "5s")
}

// Load reads path (optional) on top of defaults; DEVSTACK_* environment
// variables override both, e.g. DEVSTACK_SERVER_LISTEN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.fillDerived()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// fillDerived points unset paths into DataDir.
func (c *Config) fillDerived() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.Log.File.Dir == "" {
		c.Log.File.Dir = filepath.Join(c.DataDir, "logs")
	}
	if c.Session.DSN == "" {
		c.Session.DSN = "sqlite://" + filepath.Join(c.DataDir, "session.db")
	}
	if c.ProjectsFile == "" {
		c.ProjectsFile = filepath.Join(c.DataDir, "projects.toml")
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Supervisor.Tick <= 0 {
		errs = append(errs, errors.New("supervisor.tick must be positive"))
	}
	if c.Supervisor.RestartSettle < 0 || c.Supervisor.StopGrace < 0 {
		errs = append(errs, errors.New("supervisor durations must not be negative"))
	}
	seen := map[string]bool{}
	for i, s := range c.Services {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("services[%d]: id is required", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("services[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.Port != nil && (*s.Port < 0 || *s.Port > 65535) {
			errs = append(errs, fmt.Errorf("service %s: port out of range", s.ID))
		}
		if s.MaxRestarts != nil && *s.MaxRestarts < 0 {
			errs = append(errs, fmt.Errorf("service %s: max_restarts must not be negative", s.ID))
		}
	}
	return errors.Join(errs...)
}

// GlobalEnv merges env_files in order, then the env list on top.
func (c *Config) GlobalEnv() (map[string]string, error) {
	m := make(map[string]string)
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines. Lines starting
// with # are ignored, an "export " prefix and one pair of surrounding quotes
// are stripped.
func loadEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		if n := len(v); n >= 2 && (v[0] == '"' && v[n-1] == '"' || v[0] == '\'' && v[n-1] == '\'') {
			v = v[1 : n-1]
		}
		m[k] = v
	}
	return m, nil
}

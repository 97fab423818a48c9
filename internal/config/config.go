package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	WatchDir       string        `mapstructure:"watch_dir" yaml:"watch_dir"`
	AnchorKeyword  string        `mapstructure:"anchor_keyword" yaml:"anchor_keyword"`
	TenantKeyword  string        `mapstructure:"tenant_keyword" yaml:"tenant_keyword"`
	Workers        int           `mapstructure:"workers" yaml:"workers"`
	DebounceDelay  time.Duration `mapstructure:"debounce_delay" yaml:"debounce_delay"`
	MoveWindow     time.Duration `mapstructure:"move_window" yaml:"move_window"`
	BufferSize     int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	TempSuffixes   []string      `mapstructure:"temp_suffixes" yaml:"temp_suffixes"`
	IgnorePrefixes []string      `mapstructure:"ignore_prefixes" yaml:"ignore_prefixes"`
	RescanSchedule string        `mapstructure:"rescan_schedule" yaml:"rescan_schedule"`

	APIURL         string        `mapstructure:"api_url" yaml:"api_url"`
	TokenURL       string        `mapstructure:"token_url" yaml:"token_url"`
	ClientID       string        `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret" yaml:"client_secret"`
	Scopes         []string      `mapstructure:"scopes" yaml:"scopes"`
	TokenCache     string        `mapstructure:"token_cache" yaml:"token_cache"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	DaemonPort    int    `mapstructure:"daemon_port" yaml:"daemon_port"`
	DBPath        string `mapstructure:"db_path" yaml:"db_path"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
}

var Default = Config{
	AnchorKeyword:  "mofreitas",
	TenantKeyword:  "clientes",
	Workers:        4,
	DebounceDelay:  20 * time.Second,
	MoveWindow:     250 * time.Millisecond,
	BufferSize:     256,
	TempSuffixes:   []string{".tmp"},
	IgnorePrefixes: []string{"syncthing", ".syncthing"},
	APIURL:         "http://127.0.0.1:8000/api/v1",
	TokenURL:       "http://localhost:8000/auth/token",
	Scopes:         []string{"read", "write"},
	RequestTimeout: 30 * time.Second,
	DaemonPort:     9101,
	LogMaxSizeMB:   1,
	LogMaxBackups:  3,
}

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	return filepath.Join(home, ".filemirror"), nil
}

func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	v.SetEnvPrefix("FILEMIRROR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("watch_dir", "")
	v.SetDefault("anchor_keyword", Default.AnchorKeyword)
	v.SetDefault("tenant_keyword", Default.TenantKeyword)
	v.SetDefault("workers", Default.Workers)
	v.SetDefault("debounce_delay", Default.DebounceDelay)
	v.SetDefault("move_window", Default.MoveWindow)
	v.SetDefault("buffer_size", Default.BufferSize)
	v.SetDefault("temp_suffixes", Default.TempSuffixes)
	v.SetDefault("ignore_prefixes", Default.IgnorePrefixes)
	v.SetDefault("rescan_schedule", "")

	v.SetDefault("api_url", Default.APIURL)
	v.SetDefault("token_url", Default.TokenURL)
	v.SetDefault("client_id", "")
	v.SetDefault("client_secret", "")
	v.SetDefault("scopes", Default.Scopes)
	v.SetDefault("token_cache", filepath.Join(configDir, "token.json"))
	v.SetDefault("request_timeout", Default.RequestTimeout)

	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("db_path", filepath.Join(configDir, "history.db"))
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", Default.LogMaxSizeMB)
	v.SetDefault("log_max_backups", Default.LogMaxBackups)
}

// Validate checks the settings the agent cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.WatchDir == "":
		return errors.New("watch_dir is required")
	case c.AnchorKeyword == "":
		return errors.New("anchor_keyword is required")
	case c.TenantKeyword == "":
		return errors.New("tenant_keyword is required")
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.DebounceDelay < 0:
		return fmt.Errorf("debounce_delay must not be negative, got %s", c.DebounceDelay)
	case c.MoveWindow < 0:
		return fmt.Errorf("move_window must not be negative, got %s", c.MoveWindow)
	case c.APIURL == "":
		return errors.New("api_url is required")
	}

	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.ClientSecret != "" {
		c.ClientSecret = "********"
	}

	return c
}

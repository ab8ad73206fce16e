// Package config loads dusk configuration from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// ThreadsConfig selects the thread pool strategy.
type ThreadsConfig struct {
	Strategy string `mapstructure:"strategy" yaml:"strategy"`
	Width    int    `mapstructure:"width" yaml:"width"`
}

// CacheConfig configures the persistent scan cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Backend string        `mapstructure:"backend" yaml:"backend"`
	Verify  string        `mapstructure:"verify" yaml:"verify"`
	Dir     string        `mapstructure:"dir" yaml:"dir"`
}

// MemoryConfig configures the memory monitor.
type MemoryConfig struct {
	Limit         string        `mapstructure:"limit" yaml:"limit"`
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
}

// HistoryConfig configures the scan history log.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

// Config is the complete dusk configuration.
type Config struct {
	DefaultPath string        `mapstructure:"default_path" yaml:"default_path"`
	Depth       int           `mapstructure:"depth" yaml:"depth"`
	Sort        string        `mapstructure:"sort" yaml:"sort"`
	ShowFiles   bool          `mapstructure:"show_files" yaml:"show_files"`
	ShowOwner   bool          `mapstructure:"show_owner" yaml:"show_owner"`
	ShowInodes  bool          `mapstructure:"show_inodes" yaml:"show_inodes"`
	Exclude     []string      `mapstructure:"exclude" yaml:"exclude"`
	Inodes      string        `mapstructure:"inodes" yaml:"inodes"`
	Threads     ThreadsConfig `mapstructure:"threads" yaml:"threads"`
	Cache       CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Memory      MemoryConfig  `mapstructure:"memory" yaml:"memory"`
	Output      struct {
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"output" yaml:"output"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Watch   struct {
		Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	} `mapstructure:"watch" yaml:"watch"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// MemoryLimit parses Memory.Limit. Zero means unlimited.
func (c *Config) MemoryLimit() (int64, error) {
	if strings.TrimSpace(c.Memory.Limit) == "" {
		return 0, nil
	}
	limit, err := types.ParseSize(c.Memory.Limit)
	if err != nil {
		return 0, fmt.Errorf("memory.limit: %w", err)
	}
	return limit, nil
}

// Load reads configuration into a fresh viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads configuration into v, which may already carry bound flags.
// A missing config file is not an error.
func LoadFrom(v *viper.Viper) (*Config, error) {
	Prepare(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.Cache.Dir, err = ExpandPath(cfg.Cache.Dir); err != nil {
		return nil, err
	}
	if cfg.History.Path, err = ExpandPath(cfg.History.Path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Prepare sets search paths, env binding and defaults on v.
func Prepare(v *viper.Viper) {
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(ConfigDir())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("default_path", DefaultPath)
	v.SetDefault("depth", DefaultDepth)
	v.SetDefault("sort", DefaultSort)
	v.SetDefault("show_files", false)
	v.SetDefault("show_owner", false)
	v.SetDefault("show_inodes", false)
	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("inodes", DefaultInodeMode)
	v.SetDefault("threads.strategy", DefaultStrategy)
	v.SetDefault("threads.width", 0)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.backend", DefaultCacheBackend)
	v.SetDefault("cache.verify", DefaultCacheVerify)
	v.SetDefault("cache.dir", "")
	v.SetDefault("memory.limit", "")
	v.SetDefault("memory.check_interval", DefaultCheckInterval)
	v.SetDefault("output.format", DefaultOutputFormat)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention_days", DefaultRetentionDays)
	v.SetDefault("watch.debounce", DefaultWatchDebounce)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_age", DefaultLogMaxAge)
	v.SetDefault("logging.rotation.max_backups", DefaultLogMaxBackups)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"scanner": "info",
		"cache":   "info",
	})
}

// ConfigDir returns $XDG_CONFIG_HOME/dusk.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// ConfigPath returns the path of the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), configName+"."+configType)
}

// CacheDir returns the user-level cache directory: override if set,
// otherwise $XDG_CACHE_HOME/dusk.
func CacheDir(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(xdg.CacheHome, appName)
}

// DataDir returns $XDG_DATA_HOME/dusk.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// HistoryDir returns the scan history directory.
func HistoryDir(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(DataDir(), "history")
}

// StateDir returns $XDG_STATE_HOME/dusk for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// WriteDefault writes the default config file unless one exists and
// returns its path.
func WriteDefault() (string, error) {
	path := ConfigPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// Package config loads the computed configuration: defaults, a YAML file
// over them, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr = ":8080"
	defaultLogLevel   = "info"

	envListenAddr = "COMPUTECORE_LISTEN_ADDR"
	envLogLevel   = "COMPUTECORE_LOG_LEVEL"
)

// Config is the root of the YAML document.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Pool    PoolConfig    `yaml:"pool"`
	Cache   CacheConfig   `yaml:"cache"`
	Modules ModulesConfig `yaml:"modules"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PoolConfig struct {
	MinUnits     int           `yaml:"min_units"`
	MaxUnits     int           `yaml:"max_units"`
	MaxQueueSize int           `yaml:"max_queue_size"`
	TaskTimeout  time.Duration `yaml:"task_timeout"`
}

type CacheConfig struct {
	MaxSize         int           `yaml:"max_size"`
	MaxMemory       int64         `yaml:"max_memory"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type ModulesConfig struct {
	UnloadAfter      time.Duration       `yaml:"unload_after"`
	SweepInterval    time.Duration       `yaml:"sweep_interval"`
	PreloadThreshold int                 `yaml:"preload_threshold"`
	Related          map[string][]string `yaml:"related"`
}

// Load reads path (skipped when empty) over the defaults, applies
// environment overrides, and validates the result. Fields the file sets
// explicitly, zeros included, win over the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaults is the configuration used for every field the file omits.
// Zero keeps its meaning when set explicitly: min_units 0 starts no warm
// units, max_memory 0 leaves the cache unbounded by bytes, default_ttl 0
// disables expiry and task_timeout 0 falls back to the pool default.
func defaults() Config {
	return Config{
		Server: ServerConfig{ListenAddr: defaultListenAddr},
		Log:    LogConfig{Level: defaultLogLevel},
		Pool: PoolConfig{
			MinUnits:     2,
			MaxUnits:     4,
			MaxQueueSize: 100,
			TaskTimeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			MaxSize:         1000,
			MaxMemory:       100 << 20,
			DefaultTTL:      time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Modules: ModulesConfig{
			UnloadAfter:      30 * time.Minute,
			SweepInterval:    20 * time.Minute,
			PreloadThreshold: 3,
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Pool.MinUnits < 0 {
		errs = append(errs, fmt.Errorf("pool.min_units must be >= 0, got %d", c.Pool.MinUnits))
	}
	if c.Pool.MaxUnits < 1 || c.Pool.MaxUnits < c.Pool.MinUnits {
		errs = append(errs, fmt.Errorf("pool.max_units must be >= max(1, min_units), got %d", c.Pool.MaxUnits))
	}
	if c.Pool.MaxQueueSize < 1 {
		errs = append(errs, fmt.Errorf("pool.max_queue_size must be >= 1, got %d", c.Pool.MaxQueueSize))
	}
	if c.Pool.TaskTimeout < 0 {
		errs = append(errs, fmt.Errorf("pool.task_timeout must be >= 0, got %s", c.Pool.TaskTimeout))
	}
	if c.Cache.MaxSize < 1 {
		errs = append(errs, fmt.Errorf("cache.max_size must be > 0, got %d", c.Cache.MaxSize))
	}
	if c.Cache.MaxMemory < 0 {
		errs = append(errs, fmt.Errorf("cache.max_memory must be >= 0, got %d", c.Cache.MaxMemory))
	}
	if c.Cache.DefaultTTL < 0 {
		errs = append(errs, fmt.Errorf("cache.default_ttl must be >= 0, got %s", c.Cache.DefaultTTL))
	}
	if c.Cache.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("cache.cleanup_interval must be > 0, got %s", c.Cache.CleanupInterval))
	}
	if c.Modules.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("modules.sweep_interval must be > 0, got %s", c.Modules.SweepInterval))
	}
	if c.Modules.UnloadAfter <= 0 {
		errs = append(errs, fmt.Errorf("modules.unload_after must be > 0, got %s", c.Modules.UnloadAfter))
	}
	if c.Modules.PreloadThreshold == 0 {
		errs = append(errs, errors.New("modules.preload_threshold must not be 0, use a negative value to disable preloading"))
	}
	for from, to := range c.Modules.Related {
		for _, k := range to {
			if k == from {
				errs = append(errs, fmt.Errorf("modules.related: %q lists itself", from))
			}
		}
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() slog.Level { return parseLogLevel(c.Log.Level) }

func parseLogLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l
	}
	return slog.LevelInfo
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

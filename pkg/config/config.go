package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/verdant/pkg/types"
)

// Remote drivers
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

// Config is the complete runtime configuration
type Config struct {
	DataDir    string        `yaml:"data_dir"`
	StorageKey string        `yaml:"storage_key"`
	Log        LogConfig     `yaml:"log"`
	Remote     RemoteConfig  `yaml:"remote"`
	Cache      CacheConfig   `yaml:"cache"`
	Sync       SyncConfig    `yaml:"sync"`
	Health     HealthConfig  `yaml:"health"`
	Metrics    MetricsConfig `yaml:"metrics"`
}

// LogConfig configures pkg/log
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RemoteConfig selects and configures the remote backend
type RemoteConfig struct {
	Driver       string `yaml:"driver"`
	MongoURI     string `yaml:"mongo_uri"`
	Database     string `yaml:"database"`
	RedisURL     string `yaml:"redis_url"`
	SessionToken string `yaml:"session_token"`
	UserID       string `yaml:"user_id"`
}

// CacheConfig configures the TTL cache
type CacheConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SyncConfig configures write scheduling and queue replay
type SyncConfig struct {
	GoalDebounce        time.Duration `yaml:"goal_debounce"`
	BrainDumpDebounce   time.Duration `yaml:"brain_dump_debounce"`
	PreferencesThrottle time.Duration `yaml:"preferences_throttle"`
	QueueInterval       time.Duration `yaml:"queue_interval"`
	MaxAttempts         int           `yaml:"max_attempts"`
}

// HealthConfig configures the connectivity probe. URL selects an HTTP probe,
// Address a TCP probe; with neither set no probe runs.
type HealthConfig struct {
	URL      string        `yaml:"url"`
	Address  string        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// MetricsConfig configures the metrics listener of `verdant serve`
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the default configuration
func Default() *Config {
	dataDir := ".verdant"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".verdant")
	}

	return &Config{
		DataDir:    dataDir,
		StorageKey: types.StorageKey,
		Log: LogConfig{
			Level: "info",
		},
		Remote: RemoteConfig{
			Driver:   DriverNone,
			Database: "verdant",
		},
		Cache: CacheConfig{
			SweepInterval: 5 * time.Minute,
		},
		Sync: SyncConfig{
			GoalDebounce:        2 * time.Second,
			BrainDumpDebounce:   time.Second,
			PreferencesThrottle: time.Second,
			QueueInterval:       30 * time.Second,
			MaxAttempts:         5,
		},
		Health: HealthConfig{
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
			Retries:  3,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty or the file does not exist), a .env file in the working directory
// and VERDANT_* environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the process cannot run with
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.StorageKey == "" {
		return fmt.Errorf("storage_key is required")
	}

	switch c.Remote.Driver {
	case DriverNone, DriverMemory:
	case DriverMongo:
		if c.Remote.MongoURI == "" {
			return fmt.Errorf("remote.mongo_uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown remote driver: %q", c.Remote.Driver)
	}

	durations := map[string]time.Duration{
		"cache.sweep_interval":      c.Cache.SweepInterval,
		"sync.goal_debounce":        c.Sync.GoalDebounce,
		"sync.brain_dump_debounce":  c.Sync.BrainDumpDebounce,
		"sync.preferences_throttle": c.Sync.PreferencesThrottle,
		"sync.queue_interval":       c.Sync.QueueInterval,
		"health.interval":           c.Health.Interval,
		"health.timeout":            c.Health.Timeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Health.Retries < 1 {
		return fmt.Errorf("health.retries must be at least 1")
	}
	return nil
}

// RemoteEnabled reports whether a remote backend is configured
func (c *Config) RemoteEnabled() bool {
	return c.Remote.Driver != DriverNone
}

// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

// Duration accepts "60s" style values in YAML, which the stock decoder
// cannot put into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

// StoreConfig points at the object store holding task session records and
// job output artifacts.
type StoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // S3-compatible endpoint override (MinIO etc.)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	TaskPrefix      string `yaml:"task_prefix"`   // prefix for task status documents
	OutputPrefix    string `yaml:"output_prefix"` // prefix for job output artifacts
}

type PollerConfig struct {
	Interval      Duration `yaml:"interval"`       // wait between run-state reads
	ProgressEvery int      `yaml:"progress_every"` // emit progress every Nth poll
	MaxWall       Duration `yaml:"max_wall"`       // hard ceiling before forced TIMEOUT
	AgentURL      string   `yaml:"agent_url"`      // agent service base URL (standalone poller)
}

type CacheConfig struct {
	TTL Duration `yaml:"ttl"`
}

type NotifyConfig struct {
	MaxRetries  int      `yaml:"max_retries"`
	BackoffBase Duration `yaml:"backoff_base"`
	URL         string   `yaml:"url"` // default push-notify endpoint
	Timeout     Duration `yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // empty enables the dev identity fallback
}

// EngineConfig points at the external reasoning engine. An empty URL
// selects the echoing no-op engine for local development.
type EngineConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Poller PollerConfig `yaml:"poller"`
	Cache  CacheConfig  `yaml:"cache"`
	Notify NotifyConfig `yaml:"notify"`
	Auth   AuthConfig   `yaml:"auth"`
	Engine EngineConfig `yaml:"engine"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Store.TaskPrefix == "" {
		cfg.Store.TaskPrefix = "tasks"
	}
	if cfg.Store.OutputPrefix == "" {
		cfg.Store.OutputPrefix = "output"
	}
	if cfg.Poller.Interval <= 0 {
		cfg.Poller.Interval = Duration(60 * time.Second)
	}
	if cfg.Poller.ProgressEvery <= 0 {
		cfg.Poller.ProgressEvery = 3
	}
	if cfg.Poller.MaxWall <= 0 {
		cfg.Poller.MaxWall = Duration(6 * time.Hour)
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = Duration(24 * time.Hour)
	}
	if cfg.Notify.MaxRetries <= 0 {
		cfg.Notify.MaxRetries = 3
	}
	if cfg.Notify.BackoffBase <= 0 {
		cfg.Notify.BackoffBase = Duration(time.Second)
	}
	if cfg.Engine.Timeout <= 0 {
		cfg.Engine.Timeout = Duration(120 * time.Second)
	}
	if cfg.Notify.Timeout <= 0 {
		cfg.Notify.Timeout = Duration(10 * time.Second)
	}

	// Minimal validation
	if cfg.Store.Bucket == "" {
		return nil, errors.New("store.bucket is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

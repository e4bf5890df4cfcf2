// Package config loads the stockhub client configuration from struct
// defaults, an optional YAML file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Cache backends.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config is the complete configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Queue   QueueConfig   `yaml:"queue"`
	Poller  PollerConfig  `yaml:"poller"`
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Retry   RetryConfig   `yaml:"retry"`

	// ModelVersion is embedded in prediction cache keys.
	ModelVersion string `yaml:"model_version" default:"v1" validate:"required"`
}

// BackendConfig describes the prediction and market data backend.
type BackendConfig struct {
	URL       string        `yaml:"url" default:"http://localhost:8000" validate:"required,url"`
	Token     string        `yaml:"token"`
	UserAgent string        `yaml:"user_agent" default:"stockhub-client/1.0"`
	Timeout   time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`

	// RateLimitGating honours the backend's X-RateLimit headers.
	RateLimitGating bool `yaml:"rate_limit_gating" default:"true"`
}

// QueueConfig bounds outbound calls.
type QueueConfig struct {
	MaxConcurrent     int           `yaml:"max_concurrent" default:"2" validate:"gte=1"`
	DelayBetweenTasks time.Duration `yaml:"delay_between_tasks" default:"250ms" validate:"gte=0"`
	RatePerSecond     float64       `yaml:"rate_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" default:"1" validate:"gte=1"`
}

// PollerConfig controls prediction job polling.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval" default:"1s" validate:"gt=0"`
	Timeout  time.Duration `yaml:"timeout" default:"60s" validate:"gt=0"`
}

// CacheConfig selects the durable layer and sizes the memory layer.
type CacheConfig struct {
	Backend          string `yaml:"backend" default:"sqlite" validate:"oneof=sqlite redis memory"`
	MemoryMaxEntries int    `yaml:"memory_max_entries" default:"512" validate:"gte=1"`

	// PruneInterval is how often expired SQLite rows are deleted (0 disables).
	PruneInterval time.Duration `yaml:"prune_interval" default:"10m" validate:"gte=0"`
}

// RedisConfig is used when Cache.Backend is redis.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"stockhub:"`
}

// SQLiteConfig is used when Cache.Backend is sqlite.
type SQLiteConfig struct {
	Path string `yaml:"path" default:"stockhub-cache.db" validate:"required"`
}

// ServerConfig configures the local facade server.
type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s" validate:"gt=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"90s" validate:"gt=0"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Pretty bool   `yaml:"pretty"`
}

// RetryConfig enables caller-side retries in the facade server.
type RetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load builds the configuration. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// applyEnv overrides fields from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("STOCKHUB_BACKEND_URL", &c.Backend.URL)
	str("STOCKHUB_TOKEN", &c.Backend.Token)
	str("STOCKHUB_CACHE_BACKEND", &c.Cache.Backend)
	str("STOCKHUB_SQLITE_PATH", &c.SQLite.Path)
	str("REDIS_URL", &c.Redis.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("MODEL_VERSION", &c.ModelVersion)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT: %w", err)
		}
		c.Server.Port = port
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	return nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), ruleText(fe)))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func ruleText(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/iconidentify/quickstage/internal/cache"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Cache  CacheConfig  `yaml:"cache"`
	Fetch  FetchConfig  `yaml:"fetch"`
	Worker WorkerConfig `yaml:"worker"`
	Events EventsConfig `yaml:"events"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// CacheConfig holds the on-disk cache locations.
type CacheConfig struct {
	// Dir receives materialized remote items as <stem>.<extension>.
	Dir string `yaml:"dir" envconfig:"CACHE_DIR"`
	// TempPath receives in-flight downloads. Empty means the OS temp dir.
	TempPath string `yaml:"temp_path" envconfig:"CACHE_TEMP_PATH"`
}

// FetchConfig holds remote fetch configuration.
type FetchConfig struct {
	HeaderTimeout time.Duration `yaml:"header_timeout" envconfig:"FETCH_HEADER_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"FETCH_READ_TIMEOUT"`
	UserAgent     string        `yaml:"user_agent" envconfig:"FETCH_USER_AGENT"`
	Concurrency   int           `yaml:"concurrency" envconfig:"FETCH_CONCURRENCY"`
	PerHostLimit  int           `yaml:"per_host_limit" envconfig:"FETCH_PER_HOST_LIMIT"`
	// RateLimit is requests per second across all hosts; 0 disables limiting.
	RateLimit   float64 `yaml:"rate_limit" envconfig:"FETCH_RATE_LIMIT"`
	RateBurst   int     `yaml:"rate_burst" envconfig:"FETCH_RATE_BURST"`
	MaxFileSize int64   `yaml:"max_file_size" envconfig:"FETCH_MAX_FILE_SIZE"` // 0 = unlimited
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL"`
}

// EventsConfig holds activity log configuration.
type EventsConfig struct {
	RingBufferSize int `yaml:"ring_buffer_size" envconfig:"EVENTS_RING_BUFFER_SIZE"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// DefaultFetchConfig returns the fetch defaults.
func DefaultFetchConfig() FetchConfig {
	return Default().Fetch
}

// Load reads configuration from file and environment variables.
// Environment variables override file values; defaults fill whatever is left.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9848
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = cache.DefaultDir()
	}
	if c.Fetch.HeaderTimeout == 0 {
		c.Fetch.HeaderTimeout = 30 * time.Second
	}
	if c.Fetch.ReadTimeout == 0 {
		c.Fetch.ReadTimeout = 2 * time.Minute
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "quickstage/1.0"
	}
	if c.Fetch.Concurrency == 0 {
		c.Fetch.Concurrency = 4
	}
	if c.Fetch.PerHostLimit == 0 {
		c.Fetch.PerHostLimit = 4
	}
	if c.Fetch.RateBurst == 0 {
		c.Fetch.RateBurst = 1
	}
	if c.Worker.Count == 0 {
		c.Worker.Count = 2
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = time.Second
	}
	if c.Events.RingBufferSize == 0 {
		c.Events.RingBufferSize = 500
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return fmt.Errorf("CACHE_DIR is required")
	}
	if c.Fetch.Concurrency < 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must not be negative")
	}
	if c.Fetch.PerHostLimit < 0 {
		return fmt.Errorf("FETCH_PER_HOST_LIMIT must not be negative")
	}
	if c.Fetch.RateLimit < 0 {
		return fmt.Errorf("FETCH_RATE_LIMIT must not be negative")
	}
	if c.Fetch.MaxFileSize < 0 {
		return fmt.Errorf("FETCH_MAX_FILE_SIZE must not be negative")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// ValidateServer adds the checks that only apply to the HTTP server.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
}

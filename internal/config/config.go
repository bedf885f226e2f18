package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Queue backends.
const (
	QueueInline   = "inline"
	QueueSQLite   = "sqlite"
	QueueRedis    = "redis"
	QueueFailover = "failover"
)

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Queue struct {
		Backend             string `yaml:"backend"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
		BatchSize           int    `yaml:"batch_size"`
		Concurrency         int    `yaml:"concurrency"`
		RedisKey            string `yaml:"redis_key"`
	} `yaml:"queue"`

	Delivery struct {
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		MaxAttempts    int     `yaml:"max_attempts"`
		BackoffSeconds []int   `yaml:"backoff_seconds"`
		RatePerSecond  float64 `yaml:"rate_per_second"`
		RateBurst      int     `yaml:"rate_burst"`
		UserAgent      string  `yaml:"user_agent"`
	} `yaml:"delivery"`

	Platform struct {
		BaseURL         string `yaml:"base_url"`
		APIKey          string `yaml:"api_key"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"platform"`

	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
		GroupID string   `yaml:"group_id"`
	} `yaml:"kafka"`

	Audit struct {
		Enabled       bool `yaml:"enabled"`
		RetentionDays int  `yaml:"retention_days"`
	} `yaml:"audit"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

// BackupConfig controls periodic sqlite snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads the YAML config at path. A .env file next to the working directory is
// loaded first so ${ENV_VAR} placeholders can be resolved from it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes raw YAML, expanding ${ENV_VAR} placeholders and applying defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/playerhooks.db"
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = QueueSQLite
	}
	if c.Queue.RedisKey == "" {
		c.Queue.RedisKey = "playerhooks:deliveries"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "playerhooks"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 31
	}
}

func (c *Config) PollInterval() time.Duration {
	if c.Queue.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Queue.PollIntervalSeconds) * time.Second
}

func (c *Config) DeliveryTimeout() time.Duration {
	if c.Delivery.TimeoutSeconds <= 0 {
		return 7 * time.Second
	}
	return time.Duration(c.Delivery.TimeoutSeconds) * time.Second
}

// Backoff returns the configured retry delays, or nil to use the built-in schedule.
func (c *Config) Backoff() []time.Duration {
	if len(c.Delivery.BackoffSeconds) == 0 {
		return nil
	}
	out := make([]time.Duration, len(c.Delivery.BackoffSeconds))
	for i, s := range c.Delivery.BackoffSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

func (c *Config) PlatformCacheTTL() time.Duration {
	return time.Duration(c.Platform.CacheTTLSeconds) * time.Second
}

func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

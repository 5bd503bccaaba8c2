// Package config loads and validates worker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all worker configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the operational HTTP endpoint.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// WorkerConfig governs the claim loop and lease timing.
type WorkerConfig struct {
	IdleSeconds      int `mapstructure:"idle_seconds"`
	BackoffSeconds   int `mapstructure:"backoff_seconds"`
	RescueEvery      int `mapstructure:"rescue_every"`
	JobLeaseMinutes  int `mapstructure:"job_lease_minutes"`
	URLLockMinutes   int `mapstructure:"url_lock_minutes"`
	HeartbeatSeconds int `mapstructure:"heartbeat_seconds"`
}

// HTTPConfig configures the document fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRedirects   int    `mapstructure:"max_redirects"`
	UserAgent      string `mapstructure:"user_agent"`
}

// DBConfig controls access to the shared Postgres queue and metrics sink.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
	InitSchema         bool   `mapstructure:"init_schema"`
}

// StorageConfig selects the raw HTML archive backend.
type StorageConfig struct {
	// Backend is one of none, memory, local, gcs.
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for completion event publishing. Publishing is
// disabled when project_id or topic_name is empty.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEOWORKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("worker.idle_seconds", 2)
	v.SetDefault("worker.backoff_seconds", 3)
	v.SetDefault("worker.rescue_every", 30)
	v.SetDefault("worker.job_lease_minutes", 15)
	v.SetDefault("worker.url_lock_minutes", 10)
	v.SetDefault("worker.heartbeat_seconds", 15)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_redirects", 5)
	v.SetDefault("http.user_agent", "pagepulse-bot/1.0")
	v.SetDefault("db.init_schema", false)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Worker.JobLeaseMinutes <= 0 {
		return fmt.Errorf("worker.job_lease_minutes must be > 0")
	}
	if c.Worker.URLLockMinutes <= 0 {
		return fmt.Errorf("worker.url_lock_minutes must be > 0")
	}
	switch c.Storage.Backend {
	case "none", "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, memory, local, gcs")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// IdleDelay is the sleep between claim attempts on an empty queue.
func (c Config) IdleDelay() time.Duration {
	return time.Duration(c.Worker.IdleSeconds) * time.Second
}

// BackoffDelay is the sleep after an unexpected per-job error.
func (c Config) BackoffDelay() time.Duration {
	return time.Duration(c.Worker.BackoffSeconds) * time.Second
}

// JobLease is the staleness bound for the rescue pass.
func (c Config) JobLease() time.Duration {
	return time.Duration(c.Worker.JobLeaseMinutes) * time.Minute
}

// URLLock is the claim lease on individual URL entries.
func (c Config) URLLock() time.Duration {
	return time.Duration(c.Worker.URLLockMinutes) * time.Minute
}

// HeartbeatInterval rate-limits job lease renewals.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Worker.HeartbeatSeconds) * time.Second
}

// MaxConnLifetime bounds pooled connection age.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeMin) * time.Minute
}

// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SITEREPORT_DB_DSN.
const EnvPrefix = "SITEREPORT"

// Scrape backends.
const (
	ScrapeBackendFirecrawl = "firecrawl"
	ScrapeBackendLocal     = "local"
)

// Storage backends.
const (
	StorageBackendMemory = "memory"
	StorageBackendLocal  = "local"
	StorageBackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Report   ReportConfig   `mapstructure:"report"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	TempCart TempCartConfig `mapstructure:"temp_cart"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// PublicBaseURL is where this service is reachable; local storage links use it.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// WebhookConfig holds the order webhook signing secret. Empty disables verification.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

// ScrapeConfig configures the scrape engine and its backend.
type ScrapeConfig struct {
	Backend          string        `mapstructure:"backend"`
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	WaitFor          time.Duration `mapstructure:"wait_for"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	MapLimit         int           `mapstructure:"map_limit"`
	MaxPages         int           `mapstructure:"max_pages"`
	PollAttempts     int           `mapstructure:"poll_attempts"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	PollInitialDelay time.Duration `mapstructure:"poll_initial_delay"`
	RateLimitRPS     float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
	UserAgent        string        `mapstructure:"user_agent"`

	// AllowPrivateTargets admits loopback and private address carts.
	AllowPrivateTargets bool     `mapstructure:"allow_private_targets"`
	DenyHosts           []string `mapstructure:"deny_hosts"`
}

// AnalysisConfig configures the language-model client.
type AnalysisConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Model           string        `mapstructure:"model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxContentChars int           `mapstructure:"max_content_chars"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
}

// ReportConfig stamps document metadata.
type ReportConfig struct {
	Author string `mapstructure:"author"`
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	Backend        string        `mapstructure:"backend"`
	Bucket         string        `mapstructure:"bucket"`
	LocalDir       string        `mapstructure:"local_dir"`
	SigningKey     string        `mapstructure:"signing_key"`
	SignedURLTTL   time.Duration `mapstructure:"signed_url_ttl"`
	GoogleAccessID string        `mapstructure:"google_access_id"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory repository.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds the completion notification topic. An empty project
// selects the in-memory notifier.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PipelineConfig bounds detached fulfillment pipelines.
type PipelineConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
}

// TempCartConfig controls checkout cart lifetime.
type TempCartConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding existing variables. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from defaults, an optional YAML file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.public_base_url", "")
	v.SetDefault("webhook.secret", "")

	v.SetDefault("scrape.backend", ScrapeBackendFirecrawl)
	v.SetDefault("scrape.api_key", "")
	v.SetDefault("scrape.base_url", "https://api.firecrawl.dev")
	v.SetDefault("scrape.request_timeout", "30s")
	v.SetDefault("scrape.wait_for", "2s")
	v.SetDefault("scrape.max_retries", 2)
	v.SetDefault("scrape.retry_base_delay", "1s")
	v.SetDefault("scrape.map_limit", 50)
	v.SetDefault("scrape.max_pages", 5)
	v.SetDefault("scrape.poll_attempts", 6)
	v.SetDefault("scrape.poll_interval", "3s")
	v.SetDefault("scrape.poll_initial_delay", "3s")
	v.SetDefault("scrape.rate_limit_rps", 2)
	v.SetDefault("scrape.rate_limit_burst", 2)
	v.SetDefault("scrape.user_agent", "sitereport-bot/1.0")
	v.SetDefault("scrape.allow_private_targets", false)
	v.SetDefault("scrape.deny_hosts", []string{})

	v.SetDefault("analysis.api_key", "")
	v.SetDefault("analysis.base_url", "https://api.openai.com/v1")
	v.SetDefault("analysis.model", "gpt-4o-mini")
	v.SetDefault("analysis.temperature", 0.2)
	v.SetDefault("analysis.max_content_chars", 8000)
	v.SetDefault("analysis.request_timeout", "90s")
	v.SetDefault("analysis.max_retries", 2)
	v.SetDefault("analysis.retry_base_delay", "1s")
	v.SetDefault("analysis.rate_limit_rps", 1)

	v.SetDefault("report.author", "SiteReport")

	v.SetDefault("storage.backend", StorageBackendMemory)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.local_dir", "./reports")
	v.SetDefault("storage.signing_key", "")
	v.SetDefault("storage.signed_url_ttl", "1h")
	v.SetDefault("storage.google_access_id", "")
	v.SetDefault("storage.private_key_path", "")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "purchase-completed")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("pipeline.max_concurrent", 4)
	v.SetDefault("pipeline.drain_timeout", "2m")

	v.SetDefault("temp_cart.ttl", "1h")
	v.SetDefault("temp_cart.sweep_interval", "10m")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Scrape.Backend {
	case ScrapeBackendFirecrawl:
		if c.Scrape.APIKey == "" {
			return fmt.Errorf("scrape.api_key must be set for the firecrawl backend")
		}
	case ScrapeBackendLocal:
	default:
		return fmt.Errorf("scrape.backend must be %q or %q", ScrapeBackendFirecrawl, ScrapeBackendLocal)
	}
	if c.Scrape.MaxRetries < 0 {
		return fmt.Errorf("scrape.max_retries must be >= 0")
	}
	if c.Scrape.PollAttempts <= 0 {
		return fmt.Errorf("scrape.poll_attempts must be > 0")
	}
	if c.Scrape.MaxPages <= 0 {
		return fmt.Errorf("scrape.max_pages must be > 0")
	}
	if c.Analysis.APIKey == "" {
		return fmt.Errorf("analysis.api_key must be set")
	}
	switch c.Storage.Backend {
	case StorageBackendMemory:
	case StorageBackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
		if c.Server.PublicBaseURL != "" && c.Storage.SigningKey == "" {
			return fmt.Errorf("storage.signing_key must be set when server.public_base_url is set")
		}
	case StorageBackendGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
		if c.Storage.SignedURLTTL > 7*24*time.Hour {
			return fmt.Errorf("storage.signed_url_ttl must be <= 7 days for gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.SignedURLTTL <= 0 {
		return fmt.Errorf("storage.signed_url_ttl must be > 0")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.Pipeline.MaxConcurrent < 0 {
		return fmt.Errorf("pipeline.max_concurrent must be >= 0")
	}
	if c.TempCart.TTL <= 0 {
		return fmt.Errorf("temp_cart.ttl must be > 0")
	}
	return nil
}

// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/perchlink/perch/internal/pipeline"
)

// Provider names accepted by the provider switches below.
const (
	ProviderNoop     = "noop"
	ProviderService  = "service"
	ProviderBuiltin  = "builtin"
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
	ProviderRedis    = "redis"
	ProviderGCS      = "gcs"
	ProviderLocal    = "local"
	ProviderPubSub   = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Registry RegistryConfig `mapstructure:"registry"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Events   EventsConfig   `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PipelineConfig carries step timeouts and the cancellation poll interval.
type PipelineConfig struct {
	Timeouts   pipeline.Timeouts `mapstructure:"timeouts"`
	CancelPoll time.Duration     `mapstructure:"cancel_poll"`
}

// EnrichConfig selects and locates the enrichment services. Page covers
// scraping and metadata together because the builtin provider serves both.
type EnrichConfig struct {
	// Page selects the scrape/metadata implementation: service, builtin, noop.
	Page string `mapstructure:"page"`
	// Screenshot selects the screenshot implementation: service, builtin, noop.
	Screenshot string `mapstructure:"screenshot"`
	// Tags selects the tag generator: service, noop.
	Tags string `mapstructure:"tags"`

	ScrapeURL     string `mapstructure:"scrape_url"`
	MetadataURL   string `mapstructure:"metadata_url"`
	ScreenshotURL string `mapstructure:"screenshot_url"`
	TagsURL       string `mapstructure:"tags_url"`

	UserAgent             string `mapstructure:"user_agent"`
	HeadlessMaxConcurrent int    `mapstructure:"headless_max_concurrent"`

	// PerHostRPS throttles builtin page fetches per hostname; zero disables.
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
}

// StorageConfig controls the primary bookmark store.
type StorageConfig struct {
	// Provider is postgres or memory.
	Provider     string `mapstructure:"provider"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	// Mirror enables the secondary per-user Redis snapshot with fallback.
	Mirror bool `mapstructure:"mirror"`
}

// RedisConfig locates the Redis instance shared by the processing registry
// and the mirror snapshot.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RegistryConfig controls the processing registry backing store.
type RegistryConfig struct {
	// Provider is redis or memory.
	Provider string `mapstructure:"provider"`
}

// BlobConfig controls where screenshot artifacts land.
type BlobConfig struct {
	// Provider is gcs, local, memory, or noop.
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// EventsConfig controls completion-event publishing.
type EventsConfig struct {
	// Provider is pubsub, memory, or noop.
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PERCH")
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
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("logging.development", true)
	v.SetDefault("pipeline.timeouts.scrape", "20s")
	v.SetDefault("pipeline.timeouts.metadata", "10s")
	v.SetDefault("pipeline.timeouts.screenshot", "30s")
	v.SetDefault("pipeline.timeouts.ai", "15s")
	v.SetDefault("pipeline.cancel_poll", "250ms")
	v.SetDefault("enrich.page", ProviderBuiltin)
	v.SetDefault("enrich.screenshot", ProviderNoop)
	v.SetDefault("enrich.tags", ProviderNoop)
	v.SetDefault("enrich.user_agent", "perchbot/1.0 (+https://perch.link/bot)")
	v.SetDefault("enrich.headless_max_concurrent", 2)
	v.SetDefault("enrich.per_host_rps", 2.0)
	v.SetDefault("enrich.per_host_burst", 4)
	v.SetDefault("storage.provider", ProviderPostgres)
	v.SetDefault("storage.max_open_conns", 8)
	v.SetDefault("storage.mirror", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("registry.provider", ProviderRedis)
	v.SetDefault("blob.provider", ProviderNoop)
	v.SetDefault("blob.local_dir", "data/blobs")
	v.SetDefault("events.provider", ProviderNoop)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Storage.Provider == ProviderPostgres && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn must be set when storage.provider is postgres")
	}
	if (c.Storage.Mirror || c.Registry.Provider == ProviderRedis) && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when the registry or mirror uses redis")
	}
	if c.Enrich.Page == ProviderService && (c.Enrich.ScrapeURL == "" || c.Enrich.MetadataURL == "") {
		return fmt.Errorf("enrich.scrape_url and enrich.metadata_url must be set when enrich.page is service")
	}
	if c.Enrich.Screenshot == ProviderService && c.Enrich.ScreenshotURL == "" {
		return fmt.Errorf("enrich.screenshot_url must be set when enrich.screenshot is service")
	}
	if c.Enrich.Screenshot == ProviderBuiltin && c.Enrich.HeadlessMaxConcurrent <= 0 {
		return fmt.Errorf("enrich.headless_max_concurrent must be > 0 when enrich.screenshot is builtin")
	}
	if c.Enrich.Tags == ProviderService && c.Enrich.TagsURL == "" {
		return fmt.Errorf("enrich.tags_url must be set when enrich.tags is service")
	}
	if c.Blob.Provider == ProviderGCS && c.Blob.GCSBucket == "" {
		return fmt.Errorf("blob.gcs_bucket must be set when blob.provider is gcs")
	}
	if c.Blob.Provider == ProviderLocal && c.Blob.LocalDir == "" {
		return fmt.Errorf("blob.local_dir must be set when blob.provider is local")
	}
	if c.Events.Provider == ProviderPubSub && c.Events.ProjectID == "" {
		return fmt.Errorf("events.project_id must be set when events.provider is pubsub")
	}
	return nil
}

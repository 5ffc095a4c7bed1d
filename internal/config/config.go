// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Page archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Sequence counter backends.
const (
	// BackendStore keeps counters next to the documents.
	BackendStore = "store"
	BackendRedis = "redis"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Sequence SequenceConfig `mapstructure:"sequence"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Server   ServerConfig   `mapstructure:"server"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig holds the defaults for a single crawl run.
type CrawlConfig struct {
	Source    string `mapstructure:"source"`
	Recrawl   bool   `mapstructure:"recrawl"`
	StartPage int    `mapstructure:"start_page"`
}

// SequenceConfig controls identity allocation.
type SequenceConfig struct {
	BlockSize    int64  `mapstructure:"block_size"`
	CacheEnabled bool   `mapstructure:"cache_enabled"`
	Backend      string `mapstructure:"backend"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig locates the Redis counter.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// HTTPConfig configures page fetching.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	Headless       bool   `mapstructure:"headless"`
	// AutoHeadless re-fetches JavaScript shells through headless Chrome.
	AutoHeadless   bool   `mapstructure:"auto_headless"`

	// RequestsPerSecond throttles fetches per host; 0 disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ServerConfig controls the HTTP API and its worker pool.
type ServerConfig struct {
	Port       int `mapstructure:"port"`
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// ArchiveConfig selects where raw fetched pages are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig enables run notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether run notifications should be published.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Topic != ""
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TALKCRAWLER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawl.source", "audiodharma")
	v.SetDefault("crawl.recrawl", false)
	v.SetDefault("crawl.start_page", 1)
	v.SetDefault("sequence.block_size", 20)
	v.SetDefault("sequence.cache_enabled", true)
	v.SetDefault("sequence.backend", BackendStore)
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "sequence:")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "talkcrawler/0.1")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.headless", false)
	v.SetDefault("http.auto_headless", false)
	v.SetDefault("http.requests_per_second", 2.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 1)
	v.SetDefault("server.queue_depth", 16)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.Source == "" {
		return fmt.Errorf("crawl.source must be set")
	}
	if c.Crawl.StartPage < 1 {
		return fmt.Errorf("crawl.start_page must be >= 1")
	}
	if c.Sequence.BlockSize < 1 {
		return fmt.Errorf("sequence.block_size must be >= 1")
	}
	switch c.Sequence.Backend {
	case BackendStore:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set when sequence.backend is redis")
		}
	default:
		return fmt.Errorf("sequence.backend %q is not one of store, redis", c.Sequence.Backend)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.driver is postgres")
		}
	case DriverSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.driver is sqlite")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of memory, postgres, sqlite", c.Store.Driver)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set when archive.backend is local")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, memory, local, gcs", c.Archive.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be >= 1")
	}
	if c.Server.QueueDepth < 1 {
		return fmt.Errorf("server.queue_depth must be >= 1")
	}
	return nil
}

// FetchTimeout converts http.timeout_seconds into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Package config loads newsfeed settings from defaults, an optional config
// file, .env and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// NEWSFEED_PAGING_PREFETCH_DISTANCE.
const EnvPrefix = "NEWSFEED"

// Config is the application configuration.
type Config struct {
	NewsAPI  NewsAPIConfig  `mapstructure:"newsapi"`
	Paging   PagingConfig   `mapstructure:"paging"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// NewsAPIConfig configures the upstream HTTP loader.
type NewsAPIConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	PageSize          int           `mapstructure:"page_size"`
	Language          string        `mapstructure:"language"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // 0 = unlimited
	Timeout           time.Duration `mapstructure:"timeout"`
}

// PagingConfig configures every paging session.
type PagingConfig struct {
	InitialPage      int           `mapstructure:"initial_page"`
	PrefetchDistance int           `mapstructure:"prefetch_distance"`
	LoadTimeout      time.Duration `mapstructure:"load_timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	RetryMaxBackoff  time.Duration `mapstructure:"retry_max_backoff"`
}

// CacheConfig configures the shared session cache.
type CacheConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// DefaultsConfig is the default feed.
type DefaultsConfig struct {
	Term   string `mapstructure:"term"`
	From   string `mapstructure:"from"`
	SortBy string `mapstructure:"sort_by"`
}

// ArchiveConfig points at the local SQLite article archive. An empty path
// disables it.
type ArchiveConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures the log file and JSONL event log.
type LogConfig struct {
	Dir    string `mapstructure:"dir"`
	Level  string `mapstructure:"level"`
	Events bool   `mapstructure:"events"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		NewsAPI: NewsAPIConfig{
			BaseURL:           "https://newsapi.org",
			PageSize:          20,
			Language:          "en",
			RequestsPerSecond: 1,
			Timeout:           30 * time.Second,
		},
		Paging: PagingConfig{
			InitialPage:      1,
			PrefetchDistance: 20,
			LoadTimeout:      30 * time.Second,
			RetryAttempts:    3,
			RetryBackoff:     500 * time.Millisecond,
			RetryMaxBackoff:  4 * time.Second,
		},
		Cache: CacheConfig{
			GracePeriod: 5 * time.Second,
		},
		Defaults: DefaultsConfig{
			Term:   "travel",
			From:   "2025-04-01",
			SortBy: "publishedAt",
		},
		Log: LogConfig{
			Level:  "info",
			Events: true,
		},
	}
}

// Dir returns ~/.newsfeed.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".newsfeed")
}

// Load reads the config. An empty path looks for config.{json,yaml,toml} in
// ~/.newsfeed and the working directory and tolerates its absence; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The upstream's own variable name is honoured too.
	_ = v.BindEnv("newsapi.api_key", EnvPrefix+"_NEWSAPI_API_KEY", "NEWSAPI_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("newsapi.api_key", d.NewsAPI.APIKey)
	v.SetDefault("newsapi.base_url", d.NewsAPI.BaseURL)
	v.SetDefault("newsapi.page_size", d.NewsAPI.PageSize)
	v.SetDefault("newsapi.language", d.NewsAPI.Language)
	v.SetDefault("newsapi.requests_per_second", d.NewsAPI.RequestsPerSecond)
	v.SetDefault("newsapi.timeout", d.NewsAPI.Timeout)
	v.SetDefault("paging.initial_page", d.Paging.InitialPage)
	v.SetDefault("paging.prefetch_distance", d.Paging.PrefetchDistance)
	v.SetDefault("paging.load_timeout", d.Paging.LoadTimeout)
	v.SetDefault("paging.retry_attempts", d.Paging.RetryAttempts)
	v.SetDefault("paging.retry_backoff", d.Paging.RetryBackoff)
	v.SetDefault("paging.retry_max_backoff", d.Paging.RetryMaxBackoff)
	v.SetDefault("cache.grace_period", d.Cache.GracePeriod)
	v.SetDefault("defaults.term", d.Defaults.Term)
	v.SetDefault("defaults.from", d.Defaults.From)
	v.SetDefault("defaults.sort_by", d.Defaults.SortBy)
	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.events", d.Log.Events)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.NewsAPI.PageSize < 1 || c.NewsAPI.PageSize > 100:
		return fmt.Errorf("newsapi.page_size must be between 1 and 100, got %d", c.NewsAPI.PageSize)
	case c.NewsAPI.RequestsPerSecond < 0:
		return fmt.Errorf("newsapi.requests_per_second must not be negative")
	case c.Paging.InitialPage < 1:
		return fmt.Errorf("paging.initial_page must be at least 1, got %d", c.Paging.InitialPage)
	case c.Paging.PrefetchDistance < 0:
		return fmt.Errorf("paging.prefetch_distance must not be negative")
	case c.Paging.RetryAttempts < 1:
		return fmt.Errorf("paging.retry_attempts must be at least 1, got %d", c.Paging.RetryAttempts)
	case c.Paging.RetryBackoff < 0 || c.Paging.RetryMaxBackoff < 0:
		return fmt.Errorf("paging retry backoff must not be negative")
	case strings.TrimSpace(c.Defaults.Term) == "":
		return fmt.Errorf("defaults.term must not be empty")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// HasAPIKey reports whether an upstream key is configured.
func (c *Config) HasAPIKey() bool {
	return c.NewsAPI.APIKey != ""
}

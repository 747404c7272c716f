package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	TextGen    TextGenConfig    `yaml:"textgen" mapstructure:"textgen"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Housekeep  HousekeepConfig  `yaml:"housekeep" mapstructure:"housekeep"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TextGenConfig selects and tunes the text-generation backend.
type TextGenConfig struct {
	// Provider is one of "anthropic", "openrouter" or "none".
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OpenRouterConfig holds OpenRouter API settings.
type OpenRouterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Referer string `yaml:"referer" mapstructure:"referer"`
}

// EnrichConfig configures the enrichment orchestrator.
type EnrichConfig struct {
	Categories    []string `yaml:"categories" mapstructure:"categories"`
	FlagThreshold int      `yaml:"flag_threshold" mapstructure:"flag_threshold"`
	BatchLimit    int      `yaml:"batch_limit" mapstructure:"batch_limit"`
	TopTags       int      `yaml:"top_tags" mapstructure:"top_tags"`
}

// IngestConfig configures record ingestion.
type IngestConfig struct {
	DefaultCurrency string `yaml:"default_currency" mapstructure:"default_currency"`
	SourcesFile     string `yaml:"sources_file" mapstructure:"sources_file"`
}

// FetchConfig configures remote record downloads.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit   int    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CircuitConfig configures the backend circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RetryConfig configures retries for startup connections and downloads.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	OpenRouter map[string]ModelPricing `yaml:"openrouter" mapstructure:"openrouter"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// HousekeepConfig configures pruning of historical rows.
type HousekeepConfig struct {
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days"`
}

// ServerConfig configures the query server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the background alert checker run by serve.
type MonitoringConfig struct {
	Enabled               bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	FallbackRateThreshold float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	CostThresholdUSD      float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultCategories is the category vocabulary used when none is configured.
var DefaultCategories = []string{
	"Books",
	"Electronics",
	"Clothing",
	"Home & Garden",
	"Sports & Outdoors",
	"Toys & Games",
	"Health & Beauty",
	"Automotive",
	"Tools & Hardware",
	"Other",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("textgen.provider", "none")
	v.SetDefault("textgen.model", "claude-haiku-4-5-20251001")
	v.SetDefault("textgen.max_tokens", 1000)
	v.SetDefault("textgen.temperature", 0.7)
	v.SetDefault("textgen.timeout_secs", 60)
	v.SetDefault("textgen.requests_per_minute", 60)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("enrich.categories", DefaultCategories)
	v.SetDefault("enrich.flag_threshold", 7)
	v.SetDefault("enrich.batch_limit", 50)
	v.SetDefault("enrich.top_tags", 10)
	v.SetDefault("ingest.default_currency", "USD")
	v.SetDefault("ingest.sources_file", "sources.yaml")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.user_agent", "catalog-cli/1.0")
	v.SetDefault("fetch.rate_limit", 2)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("housekeep.retention_days", 30)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.5)
	v.SetDefault("pricing.anthropic.claude-haiku-4-5-20251001.input", 1.00)
	v.SetDefault("pricing.anthropic.claude-haiku-4-5-20251001.output", 5.00)
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.input", 3.00)
	v.SetDefault("pricing.anthropic.claude-sonnet-4-5-20250929.output", 15.00)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by the given command mode.
// Known modes are "enrich", "ingest" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "enrich":
		switch c.TextGen.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required when textgen.provider is anthropic")
			}
		case "openrouter":
			if c.OpenRouter.Key == "" {
				errs = append(errs, "openrouter.key is required when textgen.provider is openrouter")
			}
		case "none", "":
		default:
			errs = append(errs, fmt.Sprintf("textgen.provider %q is not supported", c.TextGen.Provider))
		}
		if c.Enrich.FlagThreshold < 1 || c.Enrich.FlagThreshold > 10 {
			errs = append(errs, "enrich.flag_threshold must be between 1 and 10")
		}
		if len(c.Enrich.Categories) == 0 {
			errs = append(errs, "enrich.categories must not be empty")
		}
	case "ingest":
		if len(c.Ingest.DefaultCurrency) != 3 {
			errs = append(errs, "ingest.default_currency must be a 3-letter code")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitoring.Enabled && c.Monitoring.WebhookURL == "" {
			errs = append(errs, "monitoring.webhook_url is required when monitoring is enabled")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

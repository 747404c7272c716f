package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "catalog.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "none", cfg.TextGen.Provider)
	assert.Equal(t, 1000, cfg.TextGen.MaxTokens)
	assert.InDelta(t, 0.7, cfg.TextGen.Temperature, 0.001)
	assert.Equal(t, 60, cfg.TextGen.TimeoutSecs)
	assert.Equal(t, 60, cfg.TextGen.RequestsPerMinute)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, DefaultCategories, cfg.Enrich.Categories)
	assert.Equal(t, 7, cfg.Enrich.FlagThreshold)
	assert.Equal(t, 10, cfg.Enrich.TopTags)
	assert.Equal(t, "USD", cfg.Ingest.DefaultCurrency)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30, cfg.Housekeep.RetentionDays)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 1.0, cfg.Pricing.Anthropic["claude-haiku-4-5-20251001"].Input, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/catalog
log:
  level: debug
  format: console
server:
  port: 9090
enrich:
  flag_threshold: 9
  categories: [Books, Other]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 9, cfg.Enrich.FlagThreshold)
	assert.Equal(t, []string{"Books", "Other"}, cfg.Enrich.Categories)
	// Defaults still apply for unset values
	assert.Equal(t, 60, cfg.TextGen.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CATALOG_STORE_DRIVER", "postgres")
	t.Setenv("CATALOG_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CATALOG_SERVER_PORT", "3000")
	t.Setenv("CATALOG_TEXTGEN_PROVIDER", "openrouter")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "openrouter", cfg.TextGen.Provider)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "catalog.db"
	cfg.TextGen.Provider = "none"
	cfg.Enrich.Categories = DefaultCategories
	cfg.Enrich.FlagThreshold = 7
	cfg.Ingest.DefaultCurrency = "USD"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateEnrich_Offline(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("enrich"))
}

func TestValidateEnrich_MissingKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.TextGen.Provider = "anthropic"
	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.TextGen.Provider = "openrouter"
	err = cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter.key is required")

	cfg.OpenRouter.Key = "or-key"
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateEnrich_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.TextGen.Provider = "mystery"
	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "textgen.provider")
}

func TestValidateEnrich_Threshold(t *testing.T) {
	cfg := validDefaults()
	cfg.Enrich.FlagThreshold = 11
	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag_threshold")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" is not supported`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateIngest_Currency(t *testing.T) {
	cfg := validDefaults()
	cfg.Ingest.DefaultCurrency = "DOLLARS"
	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_currency")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_MonitoringWebhook(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.Enabled = true

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.webhook_url")

	cfg.Monitoring.WebhookURL = "http://hooks.local/alerts"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

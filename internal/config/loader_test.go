package config

import (
	"testing"
	"time"

	"github.com/chainflip-io/chainflip-backend-sub000/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestLoadExampleConfigs(t *testing.T) {
	tests := []struct {
		name string
		load func() (*config.Config, error)
	}{
		{"YAML", func() (*config.Config, error) { return LoadFromYAML("../../config.example.yaml") }},
		{"JSON", func() (*config.Config, error) { return LoadFromJSON("../../config.example.json") }},
		{"TOML", func() (*config.Config, error) { return LoadFromTOML("../../config.example.toml") }},
		{"auto-detected YAML", func() (*config.Config, error) { return LoadFromFile("../../config.example.yaml") }},
		{"auto-detected JSON", func() (*config.Config, error) { return LoadFromFile("../../config.example.json") }},
		{"auto-detected TOML", func() (*config.Config, error) { return LoadFromFile("../../config.example.toml") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.load()
			require.NoError(t, err)
			validateConfig(t, cfg, tt.name)
		})
	}
}

// validateConfig checks that the loaded config has expected values
func validateConfig(t *testing.T, cfg *config.Config, format string) {
	t.Helper()

	require.NotEmpty(t, cfg.Ingester.ArchiveURL, "[%s] ingester.archive_url should not be empty", format)
	require.Equal(t, uint64(50), cfg.Ingester.BatchSize, "[%s] ingester.batch_size", format)
	require.Equal(t, 6*time.Second, cfg.Ingester.PollInterval.Duration, "[%s] ingester.poll_interval", format)

	require.NotNil(t, cfg.Ingester.Retry, "[%s] ingester.retry should be set", format)
	require.Equal(t, 5, cfg.Ingester.Retry.MaxAttempts, "[%s] ingester.retry.max_attempts", format)
	require.Equal(t, time.Second, cfg.Ingester.Retry.InitialBackoff.Duration, "[%s] ingester.retry.initial_backoff", format)

	require.NotEmpty(t, cfg.Ingester.DB.Path, "[%s] db.path should not be empty", format)
	require.Equal(t, "WAL", cfg.Ingester.DB.JournalMode, "[%s] db.journal_mode", format)
	require.Equal(t, "NORMAL", cfg.Ingester.DB.Synchronous, "[%s] db.synchronous", format)

	require.NotEmpty(t, cfg.Quoter.BrokerURL, "[%s] quoter.broker_url should not be empty", format)
	require.Equal(t, 1500*time.Millisecond, cfg.Quoter.ResponseTimeout.Duration, "[%s] quoter.response_timeout", format)
	require.Equal(t, 2*time.Minute, cfg.Quoter.EnvironmentCacheTTL.Duration, "[%s] quoter.environment_cache_ttl", format)

	require.NotNil(t, cfg.API, "[%s] api section should be set", format)
	require.True(t, cfg.API.Enabled, "[%s] api.enabled", format)
	require.True(t, cfg.API.CORS.Enabled, "[%s] api.cors.enabled", format)
	require.Contains(t, cfg.API.DepositBounds, "ETH", "[%s] api.deposit_bounds should contain ETH", format)

	require.NotNil(t, cfg.Logging, "[%s] logging section should be set", format)
	require.Equal(t, "info", cfg.Logging.DefaultLevel, "[%s] logging.default_level", format)
	require.Equal(t, "debug", cfg.Logging.GetComponentLevel("ingester"), "[%s] ingester level override", format)

	require.NotNil(t, cfg.Metrics, "[%s] metrics section should be set", format)
	require.True(t, cfg.Metrics.Enabled, "[%s] metrics.enabled", format)
	require.Equal(t, "/metrics", cfg.Metrics.Path, "[%s] metrics.path", format)
}

func TestLoadFromFileUnsupportedFormat(t *testing.T) {
	_, err := LoadFromFile("config.txt")
	require.Contains(t, err.Error(), "unsupported config file format")
}

func TestConfigDefaults(t *testing.T) {
	cfg := &config.Config{
		Ingester: config.IngesterConfig{
			ArchiveURL: "http://localhost:9944/archive",
			DB:         config.DatabaseConfig{Path: "./test.db"},
		},
		Quoter: config.QuoterConfig{
			BrokerURL: "http://localhost:9945/broker",
		},
	}

	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	require.Equal(t, uint64(50), cfg.Ingester.BatchSize)
	require.Equal(t, 6*time.Second, cfg.Ingester.PollInterval.Duration)
	require.Equal(t, "WAL", cfg.Ingester.DB.JournalMode)
	require.Equal(t, "NORMAL", cfg.Ingester.DB.Synchronous)
	require.Equal(t, 5000, cfg.Ingester.DB.BusyTimeout)
	require.Equal(t, 25, cfg.Ingester.DB.MaxOpenConnections)
	require.Equal(t, 1500*time.Millisecond, cfg.Quoter.ResponseTimeout.Duration)
	require.Equal(t, 2*time.Minute, cfg.Quoter.EnvironmentCacheTTL.Duration)
}

func TestConfigValidation(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Ingester: config.IngesterConfig{
				ArchiveURL: "http://localhost:9944/archive",
				DB:         config.DatabaseConfig{Path: "./test.db"},
			},
			Quoter: config.QuoterConfig{
				BrokerURL: "http://localhost:9945/broker",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"valid config", func(c *config.Config) {}, false},
		{"missing archive_url", func(c *config.Config) { c.Ingester.ArchiveURL = "" }, true},
		{"missing db path", func(c *config.Config) { c.Ingester.DB.Path = "" }, true},
		{"missing broker_url", func(c *config.Config) { c.Quoter.BrokerURL = "" }, true},
		{
			"invalid journal mode",
			func(c *config.Config) { c.Ingester.DB.JournalMode = "BOGUS" },
			true,
		},
		{
			"invalid deposit bound",
			func(c *config.Config) {
				c.API = &config.APIConfig{
					DepositBounds: map[string]config.DepositBounds{"ETH": {Min: "not-a-number"}},
				}
			},
			true,
		},
		{
			"unknown logging component",
			func(c *config.Config) {
				c.Logging = &config.LoggingConfig{
					ComponentLevels: map[string]string{"warehouse": "debug"},
				}
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			cfg.ApplyDefaults()

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/common"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
)

// Config represents the complete configuration for the swap indexer.
type Config struct {
	// Ingester contains the block ingestion pipeline configuration
	Ingester IngesterConfig `yaml:"ingester" json:"ingester" toml:"ingester"`

	// Quoter contains the quote aggregator configuration
	Quoter QuoterConfig `yaml:"quoter" json:"quoter" toml:"quoter"`

	// API contains the HTTP API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// IngesterConfig represents the configuration for the block ingestion pipeline.
type IngesterConfig struct {
	// ArchiveURL is the chain archive query endpoint
	ArchiveURL string `yaml:"archive_url" json:"archive_url" toml:"archive_url"`

	// BatchSize is the number of blocks requested per archive fetch
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// PollInterval is how long to sleep when caught up to the chain tip
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// Retry contains archive fetch retry configuration
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// DB contains database configuration
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`
}

// ApplyDefaults sets default values for optional ingester configuration fields.
func (i *IngesterConfig) ApplyDefaults() {
	if i.BatchSize == 0 {
		i.BatchSize = 50
	}
	if i.PollInterval.Duration == 0 {
		i.PollInterval = common.NewDuration(6 * time.Second)
	}

	if i.Retry != nil {
		i.Retry.ApplyDefaults()
	}

	i.DB.ApplyDefaults()
}

// QuoterConfig represents the configuration for the quote aggregator.
type QuoterConfig struct {
	// BrokerURL is the chain broker interface used for reference quotes
	BrokerURL string `yaml:"broker_url" json:"broker_url" toml:"broker_url"`

	// ResponseTimeout bounds how long a quote request waits for providers
	ResponseTimeout common.Duration `yaml:"response_timeout" json:"response_timeout" toml:"response_timeout"`

	// EnvironmentCacheTTL bounds the egress fee environment cache entries
	EnvironmentCacheTTL common.Duration `yaml:"environment_cache_ttl" json:"environment_cache_ttl" toml:"environment_cache_ttl"` //nolint:lll
}

// ApplyDefaults sets default values for optional quoter configuration fields.
func (q *QuoterConfig) ApplyDefaults() {
	if q.ResponseTimeout.Duration == 0 {
		q.ResponseTimeout = common.NewDuration(1500 * time.Millisecond)
	}
	if q.EnvironmentCacheTTL.Duration == 0 {
		q.EnvironmentCacheTTL = common.NewDuration(2 * time.Minute)
	}
}

// RetryConfig represents archive fetch retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	// NORMAL provides a good balance between safety and performance
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	// EnableForeignKeys defaults to false (zero value)
}

// APIConfig represents the HTTP API configuration.
type APIConfig struct {
	// Enabled controls whether the HTTP API is served
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request
	ReadTimeout common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`

	// IdleTimeout is the maximum idle duration for keep-alive connections
	IdleTimeout common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// CORS configures cross-origin resource sharing
	CORS CORSConfig `yaml:"cors" json:"cors" toml:"cors"`

	// DepositBounds contains per-asset deposit amount limits for open-channel
	// requests, as decimal strings in the asset's fine units
	DepositBounds map[string]DepositBounds `yaml:"deposit_bounds,omitempty" json:"deposit_bounds,omitempty" toml:"deposit_bounds,omitempty"` //nolint:lll
}

// DepositBounds limits the deposit amount accepted when opening a channel.
type DepositBounds struct {
	Min string `yaml:"min" json:"min" toml:"min"`
	Max string `yaml:"max" json:"max" toml:"max"`
}

// CORSConfig configures CORS middleware.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(15 * time.Second)
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(30 * time.Second)
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second)
	}
}

// Validate checks if the API configuration is valid.
func (a *APIConfig) Validate() error {
	for asset, bounds := range a.DepositBounds {
		if bounds.Min != "" {
			if _, ok := new(big.Int).SetString(bounds.Min, 10); !ok {
				return fmt.Errorf("deposit_bounds[%s].min: not a decimal integer", asset)
			}
		}
		if bounds.Max != "" {
			if _, ok := new(big.Int).SetString(bounds.Max, 10); !ok {
				return fmt.Errorf("deposit_bounds[%s].max: not a decimal integer", asset)
			}
		}
	}
	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - ingester: Block ingestion pipeline
	//   - archive-client: Chain archive queries
	//   - cursor: Durable cursor management
	//   - handlers: Event handler execution
	//   - status: Swap status derivation
	//   - quote-hub: Quote provider connections
	//   - quote-aggregator: Quote fan-out/fan-in
	//   - api: HTTP API server
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	// Development defaults to false (zero value)
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	// Validate default level
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		// Check if component is valid
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		// Check if level is valid
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
	// Enabled defaults to false (zero value)
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Ingester.ApplyDefaults()
	c.Quoter.ApplyDefaults()

	if c.API != nil {
		c.API.ApplyDefaults()
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Ingester.ArchiveURL == "" {
		return fmt.Errorf("ingester.archive_url is required")
	}

	if c.Ingester.DB.Path == "" {
		return fmt.Errorf("ingester.db.path is required")
	}

	// Validate database settings with defaults
	if c.Ingester.DB.JournalMode != "" && c.Ingester.DB.JournalMode != "WAL" &&
		c.Ingester.DB.JournalMode != "DELETE" && c.Ingester.DB.JournalMode != "TRUNCATE" &&
		c.Ingester.DB.JournalMode != "PERSIST" && c.Ingester.DB.JournalMode != "MEMORY" {
		return fmt.Errorf("ingester.db.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if c.Ingester.DB.Synchronous != "" && c.Ingester.DB.Synchronous != "FULL" &&
		c.Ingester.DB.Synchronous != "NORMAL" && c.Ingester.DB.Synchronous != "OFF" {
		return fmt.Errorf("ingester.db.synchronous must be one of: FULL, NORMAL, OFF")
	}

	if c.Quoter.BrokerURL == "" {
		return fmt.Errorf("quoter.broker_url is required")
	}

	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	// Validate logging configuration
	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	// Validate metrics configuration
	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

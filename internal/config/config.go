// Package config provides centralized configuration management for the
// analysis CLI and dashboard. It loads configuration from environment
// variables with sensible defaults and validates all settings up front so a
// misconfigured run fails before any file is read.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables; CLI flags
// override them after loading.
type Config struct {
	Data     DataConfig
	Analysis AnalysisConfig
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// DataConfig locates the input datasets and the outputs of a batch run.
type DataConfig struct {
	// VaccinationFile is the daily vaccine doses CSV
	VaccinationFile string `env:"VACCINATION_FILE" default:"data/daily-covid-19-vaccine-doses-administered-per-million-people.csv"`

	// DeathsFile is the cumulative excess deaths CSV
	DeathsFile string `env:"DEATHS_FILE" default:"data/estimated-cumulative-excess-deaths-per-100000-people-during-covid-19.csv"`

	// OutputFile receives the regression results (default: regression_results.csv)
	OutputFile string `env:"OUTPUT_FILE" default:"regression_results.csv"`

	// ChartDir receives PNG charts; empty disables chart files
	ChartDir string `env:"CHART_DIR"`
}

// AnalysisConfig holds the per-country analysis settings.
type AnalysisConfig struct {
	// Countries to analyze, separated by semicolons since some OWID entity
	// names contain commas. Empty means the built-in batch selection.
	Countries []string `env:"COUNTRIES" sep:";"`

	// MinSampleSize is the fewest joined rows a country needs (default: 10)
	MinSampleSize int `env:"MIN_SAMPLE_SIZE" default:"10"`

	// Dedupe keeps only the first row per (Entity, Day) in each source
	Dedupe bool `env:"ANALYSIS_DEDUPE" default:"false"`
}

// ServerConfig holds HTTP server settings for the dashboard.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`

	// RequestTimeout is the middleware timeout for requests (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`

	// TrustedProxies lists proxy addresses or CIDRs whose X-Real-IP and
	// X-Forwarded-For headers are believed. Empty trusts none.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds the optional results store settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; empty disables the store.
	// Supports both DATABASE_URL and DB_URL env vars.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// Enabled reports whether a results store is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Package config loads the service settings from layered YAML profiles and
// APP_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults for values other packages also fall back on.
const (
	DefaultServerPort     = 8080
	DefaultMaxRequestSize = 1 << 20
	DefaultStorePath      = "quotes.json"

	// DefaultDispatchIntervalMinutes is the period between webhook pushes.
	DefaultDispatchIntervalMinutes = 30

	// DefaultClientRetryMaxAttempts keeps a delivery to one attempt per
	// dispatch cycle; the next cycle is the retry.
	DefaultClientRetryMaxAttempts     = 1
	DefaultClientRetryMultiplier      = 2.0
	DefaultClientRetryJitterFactor    = 0.25
	DefaultClientCircuitMaxFailures   = 5
	DefaultClientCircuitHalfOpenLimit = 3

	DefaultTransportMaxIdleConns        = 100
	DefaultTransportMaxIdleConnsPerHost = 10
	DefaultTransportIdleConnTimeout     = 90 * time.Second

	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 3
	DefaultLogFileMaxAgeDays = 28
)

// Config mirrors the top-level sections of the YAML profiles.
type Config struct {
	App      AppConfig      `koanf:"app"      validate:"required"`
	Store    StoreConfig    `koanf:"store"    validate:"required"`
	Dispatch DispatchConfig `koanf:"dispatch" validate:"required"`
	Server   ServerConfig   `koanf:"server"   validate:"required"`
	Auth     AuthConfig     `koanf:"auth"`
	Client   ClientConfig   `koanf:"client"   validate:"required"`

	Log       LogConfig       `koanf:"log" validate:"required"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// AppConfig identifies the deployment.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig sizes the gin server.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

// LogConfig selects the console level and format.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig adds a lumberjack-rotated JSON file next to the console.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig enables OTLP export. An https endpoint turns on TLS.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// AuthConfig names the headers an upstream gateway sets after it has
// authenticated the caller. The service trusts them as-is.
type AuthConfig struct {
	Enabled       bool   `koanf:"enabled"`
	SubjectHeader string `koanf:"subject_header" validate:"required_if=Enabled true"`
	RolesHeader   string `koanf:"roles_header"`
	ScopesHeader  string `koanf:"scopes_header"`

	// WriteRole and WriteScope, when set, are required on top of a subject
	// for mutating routes.
	WriteRole  string `koanf:"write_role"`
	WriteScope string `koanf:"write_scope"`
}

// ClientConfig contains settings for the outbound webhook client.
type ClientConfig struct {
	Timeout        time.Duration        `koanf:"timeout"         validate:"required,min=100ms"`
	Retry          RetryConfig          `koanf:"retry"           validate:"required"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker" validate:"required"`
	Transport      TransportConfig      `koanf:"transport"       validate:"required"`
}

// RetryConfig is the exponential backoff applied within one delivery.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"required,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"required,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"required,min=100ms"`
	Multiplier      float64       `koanf:"multiplier"       validate:"required,min=1.1,max=10"`
	JitterFactor    float64       `koanf:"jitter_factor"    validate:"min=0,max=1"`
}

// CircuitBreakerConfig trips the webhook client after repeated failures.
type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

// TransportConfig sizes the idle connection pool.
type TransportConfig struct {
	MaxIdleConns        int           `koanf:"max_idle_conns"          validate:"required,min=1"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host" validate:"required,min=1"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"       validate:"required,min=1s"`
}

// StoreConfig selects the quote store backend.
type StoreConfig struct {
	Driver string `koanf:"driver" validate:"required,oneof=json bolt"`
	Path   string `koanf:"path"   validate:"required"`
}

// DispatchConfig controls the periodic TRMNL webhook push.
type DispatchConfig struct {
	Enabled         bool          `koanf:"enabled"`
	WebhookURL      string        `koanf:"webhook_url"      validate:"omitempty,url"`
	IntervalMinutes int           `koanf:"interval_minutes" validate:"required,min=1"`
	Timeout         time.Duration `koanf:"timeout"          validate:"required,min=100ms"`
	SeedOnStart     bool          `koanf:"seed_on_start"`
}

// Interval returns the dispatch period as a duration.
func (d DispatchConfig) Interval() time.Duration {
	return time.Duration(d.IntervalMinutes) * time.Minute
}

// defaults is the bottom configuration layer. Durations are strings so
// koanf decodes them the same way as YAML values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":        "trmnl-quotes",
		"app.version":     "dev",
		"app.environment": "local",

		"store.driver": "json",
		"store.path":   DefaultStorePath,

		"dispatch.enabled":          true,
		"dispatch.webhook_url":      "",
		"dispatch.interval_minutes": DefaultDispatchIntervalMinutes,
		"dispatch.timeout":          "5s",
		"dispatch.seed_on_start":    true,

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "2m",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,

		"auth.enabled":        false,
		"auth.subject_header": "X-User-ID",
		"auth.roles_header":   "X-User-Roles",
		"auth.scopes_header":  "X-User-Scopes",
		"auth.write_role":     "",
		"auth.write_scope":    "",

		"client.timeout":                           "10s",
		"client.retry.max_attempts":                DefaultClientRetryMaxAttempts,
		"client.retry.initial_interval":            "100ms",
		"client.retry.max_interval":                "5s",
		"client.retry.multiplier":                  DefaultClientRetryMultiplier,
		"client.retry.jitter_factor":               DefaultClientRetryJitterFactor,
		"client.circuit_breaker.max_failures":      DefaultClientCircuitMaxFailures,
		"client.circuit_breaker.timeout":           "30s",
		"client.circuit_breaker.half_open_limit":   DefaultClientCircuitHalfOpenLimit,
		"client.transport.max_idle_conns":          DefaultTransportMaxIdleConns,
		"client.transport.max_idle_conns_per_host": DefaultTransportMaxIdleConnsPerHost,
		"client.transport.idle_conn_timeout":       "90s",

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/trmnl-quotes.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "trmnl-quotes",
		"telemetry.sampling_rate": 1.0,
	}
}

// DefaultConfigDir is where Load looks for profile files.
const DefaultConfigDir = "configs"

// envPrefix marks the environment variables that override file values.
const envPrefix = "APP_"

// Load reads configuration from DefaultConfigDir. See LoadFromDir.
func Load(profile string) (*Config, error) {
	return LoadFromDir(DefaultConfigDir, profile)
}

// LoadFromDir layers configuration sources, later ones winning:
//
//	built-in defaults
//	<dir>/base.yaml            (optional)
//	<dir>/<profile>.yaml       (optional, skipped when profile is empty)
//	APP_* environment variables
//
// The result is not validated; call Validate.
func LoadFromDir(dir, profile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if err := loadYAML(k, filepath.Join(dir, "base.yaml")); err != nil {
		return nil, fmt.Errorf("loading base config: %w", err)
	}

	if profile != "" {
		if err := loadYAML(k, filepath.Join(dir, profile+".yaml")); err != nil {
			return nil, fmt.Errorf("loading profile config %q: %w", profile, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper(k.Keys())), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKeyMapper resolves APP_ variables against the keys already loaded, so
// APP_DISPATCH_INTERVAL_MINUTES lands on dispatch.interval_minutes rather
// than dispatch.interval.minutes. Unknown variables split on every "_".
func envKeyMapper(known []string) func(string) string {
	byFlat := make(map[string]string, len(known))
	for _, key := range known {
		byFlat[strings.ReplaceAll(key, ".", "_")] = key
	}

	return func(name string) string {
		flat := strings.ToLower(strings.TrimPrefix(name, envPrefix))
		if key, ok := byFlat[flat]; ok {
			return key
		}

		return strings.ReplaceAll(flat, "_", ".")
	}
}

// loadYAML merges path into k. A missing file is not an error.
func loadYAML(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig mirrors the shipped defaults with a webhook configured.
func validConfig() *Config {
	return &Config{
		App: AppConfig{Name: "trmnl-quotes", Version: "1.0.0", Environment: "local"},
		Server: ServerConfig{
			Port:            DefaultServerPort,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxRequestSize:  DefaultMaxRequestSize,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Client: ClientConfig{
			Timeout: 10 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:     DefaultClientRetryMaxAttempts,
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     5 * time.Second,
				Multiplier:      DefaultClientRetryMultiplier,
				JitterFactor:    DefaultClientRetryJitterFactor,
			},
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures:   DefaultClientCircuitMaxFailures,
				Timeout:       30 * time.Second,
				HalfOpenLimit: DefaultClientCircuitHalfOpenLimit,
			},
			Transport: TransportConfig{
				MaxIdleConns:        DefaultTransportMaxIdleConns,
				MaxIdleConnsPerHost: DefaultTransportMaxIdleConnsPerHost,
				IdleConnTimeout:     DefaultTransportIdleConnTimeout,
			},
		},
		Store: StoreConfig{Driver: "json", Path: DefaultStorePath},
		Dispatch: DispatchConfig{
			Enabled:         true,
			WebhookURL:      "https://usetrmnl.com/api/custom_plugins/8f2c",
			IntervalMinutes: DefaultDispatchIntervalMinutes,
			Timeout:         10 * time.Second,
			SeedOnStart:     true,
		},
	}
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_AcceptsOptionalVariants(t *testing.T) {
	tests := map[string]func(*Config){
		"bolt store":             func(c *Config) { c.Store.Driver = "bolt"; c.Store.Path = "quotes.db" },
		"no webhook":             func(c *Config) { c.Dispatch.WebhookURL = "" },
		"dispatch disabled":      func(c *Config) { c.Dispatch.Enabled = false },
		"one minute interval":    func(c *Config) { c.Dispatch.IntervalMinutes = 1 },
		"trace level":            func(c *Config) { c.Log.Level = "trace" },
		"pretty format":          func(c *Config) { c.Log.Format = "pretty" },
		"prod environment":       func(c *Config) { c.App.Environment = "prod" },
		"telemetry sampled off":  func(c *Config) { c.Telemetry.SamplingRate = 0 },
		"file sink with path":    func(c *Config) { c.Log.File = LogFileConfig{Enabled: true, Path: "logs/quotes.log"} },
		"file sink disabled":     func(c *Config) { c.Log.File = LogFileConfig{MaxSizeMB: 0} },
		"auth with write role":   func(c *Config) { c.Auth = AuthConfig{Enabled: true, SubjectHeader: "X-User-ID", WriteRole: "editor"} },
		"auth with write scope":  func(c *Config) { c.Auth = AuthConfig{Enabled: true, SubjectHeader: "X-User-ID", WriteScope: "quotes:write"} },
		"auth disabled no names": func(c *Config) { c.Auth = AuthConfig{} },
		"telemetry enabled": func(c *Config) {
			c.Telemetry = TelemetryConfig{
				Enabled:      true,
				Endpoint:     "http://otel-collector:4317",
				ServiceName:  "trmnl-quotes",
				SamplingRate: 0.1,
			}
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"missing app name", func(c *Config) { c.App.Name = "" }, "app.name is required"},
		{"unknown environment", func(c *Config) { c.App.Environment = "staging" }, "app.environment must be one of: local dev qa prod test"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port is required"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port must be at most 65535"},
		{"sub-second read timeout", func(c *Config) { c.Server.ReadTimeout = 500 * time.Millisecond }, "server.read_timeout must be at least 1s"},
		{"missing host", func(c *Config) { c.Server.Host = "" }, "server.host is required"},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level must be one of: trace debug info warn error"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log.format must be one of: json text pretty"},
		{"file sink without path", func(c *Config) { c.Log.File = LogFileConfig{Enabled: true} }, "log.file.path is required when Enabled true"},
		{"oversized log file", func(c *Config) { c.Log.File.MaxSizeMB = 2048 }, "log.file.max_size must be at most 1024"},
		{"telemetry without endpoint", func(c *Config) {
			c.Telemetry = TelemetryConfig{Enabled: true, ServiceName: "trmnl-quotes"}
		}, "telemetry.endpoint is required when Enabled true"},
		{"telemetry endpoint not a url", func(c *Config) {
			c.Telemetry = TelemetryConfig{Enabled: true, Endpoint: "collector", ServiceName: "x"}
		}, "telemetry.endpoint must be a valid URL"},
		{"sampling rate above one", func(c *Config) { c.Telemetry.SamplingRate = 1.5 }, "telemetry.sampling_rate must be at most 1"},
		{"auth without subject header", func(c *Config) { c.Auth = AuthConfig{Enabled: true} }, "auth.subject_header is required when Enabled true"},
		{"client timeout too short", func(c *Config) { c.Client.Timeout = 10 * time.Millisecond }, "client.timeout must be at least 100ms"},
		{"zero retry attempts", func(c *Config) { c.Client.Retry.MaxAttempts = 0 }, "client.retry.max_attempts is required"},
		{"too many retry attempts", func(c *Config) { c.Client.Retry.MaxAttempts = 11 }, "client.retry.max_attempts must be at most 10"},
		{"flat backoff", func(c *Config) { c.Client.Retry.Multiplier = 1.0 }, "client.retry.multiplier must be at least 1.1"},
		{"jitter above one", func(c *Config) { c.Client.Retry.JitterFactor = 2 }, "client.retry.jitter_factor must be at most 1"},
		{"zero breaker failures", func(c *Config) { c.Client.CircuitBreaker.MaxFailures = 0 }, "client.circuit_breaker.max_failures is required"},
		{"zero half-open limit", func(c *Config) { c.Client.CircuitBreaker.HalfOpenLimit = 0 }, "client.circuit_breaker.half_open_limit is required"},
		{"zero idle conns", func(c *Config) { c.Client.Transport.MaxIdleConns = 0 }, "client.transport.max_idle_conns is required"},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver must be one of: json bolt"},
		{"missing store path", func(c *Config) { c.Store.Path = "" }, "store.path is required"},
		{"webhook not a url", func(c *Config) { c.Dispatch.WebhookURL = "usetrmnl" }, "dispatch.webhook_url must be a valid URL"},
		{"zero interval", func(c *Config) { c.Dispatch.IntervalMinutes = 0 }, "dispatch.interval_minutes is required"},
		{"negative interval", func(c *Config) { c.Dispatch.IntervalMinutes = -5 }, "dispatch.interval_minutes must be at least 1"},
		{"dispatch timeout too short", func(c *Config) { c.Dispatch.Timeout = time.Millisecond }, "dispatch.timeout must be at least 100ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_ReportsEveryFailure(t *testing.T) {
	cfg := validConfig()
	cfg.App.Name = ""
	cfg.Store.Driver = "sqlite"
	cfg.Dispatch.IntervalMinutes = 0

	err := cfg.Validate()
	require.Error(t, err)

	lines := strings.Split(err.Error(), "\n")
	assert.Equal(t, "config validation failed:", lines[0])
	assert.Len(t, lines, 4)
	assert.Contains(t, err.Error(), "app.name")
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "dispatch.interval_minutes")
}

func TestValidate_EmptyConfig(t *testing.T) {
	err := (&Config{}).Validate()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "config validation failed:"))
	assert.Contains(t, err.Error(), "app")
	assert.Contains(t, err.Error(), "store")
}

func TestDispatchConfig_Interval(t *testing.T) {
	assert.Equal(t, 30*time.Minute, DispatchConfig{IntervalMinutes: 30}.Interval())
	assert.Equal(t, time.Minute, DispatchConfig{IntervalMinutes: 1}.Interval())
}

func TestKeyPath(t *testing.T) {
	tests := map[string]string{
		"Config.server.port":                     "server.port",
		"Config.client.retry.max_attempts":       "client.retry.max_attempts",
		"Config.dispatch.webhook_url":            "dispatch.webhook_url",
		"Config.client.circuit_breaker.timeout":  "client.circuit_breaker.timeout",
		"detached":                               "detached",
	}

	for namespace, want := range tests {
		assert.Equal(t, want, keyPath(namespace), namespace)
	}
}

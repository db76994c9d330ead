package config

import (
	"time"

	"github.com/nkkko/lista/internal/api/chi"
	"github.com/nkkko/lista/internal/engine"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/notifier"
	"github.com/nkkko/lista/internal/realtime"
	"github.com/nkkko/lista/internal/session"
	"github.com/nkkko/lista/internal/storage"
	"github.com/nkkko/lista/internal/store"
	"github.com/nkkko/lista/internal/telemetry"
	"github.com/nkkko/lista/pkg/client"
)

// ToClientOptions converts to content API client options
func (c *Config) ToClientOptions() []client.ClientOption {
	var opts []client.ClientOption
	if c.API.TimeoutSeconds > 0 {
		opts = append(opts, client.WithTimeout(time.Duration(c.API.TimeoutSeconds)*time.Second))
	}
	return opts
}

// ToRealtimeConfig converts to push transport config. Zero values fall back
// to the transport defaults.
func (c *Config) ToRealtimeConfig() realtime.Config {
	cfg := realtime.DefaultConfig()
	if c.Realtime.URL != "" {
		cfg.URL = c.Realtime.URL
	}
	if c.Realtime.AppKey != "" {
		cfg.AppKey = c.Realtime.AppKey
	}
	if c.Realtime.LingerMs > 0 {
		cfg.Linger = time.Duration(c.Realtime.LingerMs) * time.Millisecond
	}
	if c.Realtime.ReconnectInitialMs > 0 {
		cfg.ReconnectInitial = time.Duration(c.Realtime.ReconnectInitialMs) * time.Millisecond
	}
	if c.Realtime.ReconnectMaxMs > 0 {
		cfg.ReconnectMax = time.Duration(c.Realtime.ReconnectMaxMs) * time.Millisecond
	}
	if c.Realtime.PingIntervalSeconds >= 0 {
		cfg.PingInterval = time.Duration(c.Realtime.PingIntervalSeconds) * time.Second
	}
	if c.Realtime.BufferSize > 0 {
		cfg.BufferSize = c.Realtime.BufferSize
	}
	return cfg
}

// ToSessionConfig converts to session config
func (c *Config) ToSessionConfig() session.Config {
	return session.Config{
		DataDir:  c.Session.DataDir,
		InMemory: c.Session.InMemory,
	}
}

// ToNotificationConfig converts to notification display config
func (c *Config) ToNotificationConfig() store.NotificationConfig {
	cfg := store.DefaultNotificationConfig()
	if c.Notifications.SuccessTimeoutMs > 0 {
		cfg.SuccessTimeout = time.Duration(c.Notifications.SuccessTimeoutMs) * time.Millisecond
	}
	if c.Notifications.ErrorTimeoutMs > 0 {
		cfg.ErrorTimeout = time.Duration(c.Notifications.ErrorTimeoutMs) * time.Millisecond
	}
	if c.Notifications.InfoTimeoutMs > 0 {
		cfg.InfoTimeout = time.Duration(c.Notifications.InfoTimeoutMs) * time.Millisecond
	}
	return cfg
}

// ToStorageConfig converts to badger storage config
func (c *Config) ToStorageConfig() storage.Config {
	return storage.Config{
		DataDir:         c.Storage.DataDir,
		InMemory:        c.Storage.InMemory,
		CacheEnabled:    c.Storage.CacheSize > 0,
		CacheSize:       c.Storage.CacheSize,
		CacheExpiration: time.Duration(c.Storage.CacheExpirationSeconds) * time.Second,
	}
}

// ToNotifierConfig converts to push service config
func (c *Config) ToNotifierConfig() notifier.Config {
	cfg := notifier.DefaultConfig()
	cfg.Addr = c.Push.Addr
	cfg.AppKey = c.Realtime.AppKey
	cfg.MaxIdleTime = time.Duration(c.Push.MaxIdleTime) * time.Second
	cfg.HeartbeatInterval = time.Duration(c.Push.HeartbeatInterval) * time.Second
	if c.Push.ClientBufferSize > 0 {
		cfg.ClientBufferSize = c.Push.ClientBufferSize
	}
	return cfg
}

// ToAPIConfig converts to dev content API config
func (c *Config) ToAPIConfig() chi.Config {
	return chi.Config{
		Addr:         c.Server.Addr,
		ReadTimeout:  time.Duration(c.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(c.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(c.Server.IdleTimeout) * time.Second,
		JWTSecret:    c.Server.JWTSecret,
		ServiceName:  c.Telemetry.ServiceName,
	}
}

// ToLoggingConfig converts to logging config
func (c *Config) ToLoggingConfig() logging.Config {
	var level logging.LogLevel
	switch c.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	default:
		level = logging.LevelInfo
	}

	format := logging.FormatConsole
	if c.Logging.Format == "json" {
		format = logging.FormatJSON
	}

	return logging.Config{
		Level:             level,
		Format:            format,
		IncludeCaller:     c.Logging.IncludeCaller,
		IncludeStacktrace: true,
		GlobalFields:      c.Logging.GlobalFields,
	}
}

// ToTelemetryConfig converts to telemetry config
func (c *Config) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:       c.Telemetry.Enabled,
		ServiceName:   c.Telemetry.ServiceName,
		Endpoint:      c.Telemetry.Endpoint,
		SamplingRatio: c.Telemetry.SamplingRatio,
		Timeout:       5 * time.Second,
		Attributes:    c.Telemetry.Attributes,
	}
}

// ToEngineConfig converts to dev backend config
func (c *Config) ToEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Storage = c.ToStorageConfig()
	cfg.API = c.ToAPIConfig()
	cfg.Push = c.ToNotifierConfig()
	cfg.Telemetry = c.ToTelemetryConfig()
	return cfg
}

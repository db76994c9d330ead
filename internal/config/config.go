package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	API           APIConfig          `yaml:"api"`
	Realtime      RealtimeConfig     `yaml:"realtime"`
	Token         TokenConfig        `yaml:"token"`
	Session       SessionConfig      `yaml:"session"`
	Notifications NotificationConfig `yaml:"notifications"`
	Server        ServerConfig       `yaml:"server"`
	Push          PushConfig         `yaml:"push"`
	Storage       StorageConfig      `yaml:"storage"`
	Logging       LoggingConfig      `yaml:"logging"`
	Telemetry     TelemetryConfig    `yaml:"telemetry"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// APIConfig points the client at the content API
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RealtimeConfig contains push transport settings
type RealtimeConfig struct {
	URL                 string `yaml:"url"`
	AppKey              string `yaml:"app_key"`
	LingerMs            int    `yaml:"linger_ms"`
	ReconnectInitialMs  int    `yaml:"reconnect_initial_ms"`
	ReconnectMaxMs      int    `yaml:"reconnect_max_ms"`
	PingIntervalSeconds int    `yaml:"ping_interval_seconds"`
	BufferSize          int    `yaml:"buffer_size"`
}

// TokenConfig contains the token codec key
type TokenConfig struct {
	Key string `yaml:"key"`
}

// SessionConfig controls where client state is persisted
type SessionConfig struct {
	DataDir  string `yaml:"data_dir"`
	InMemory bool   `yaml:"in_memory"`
}

// NotificationConfig contains notification display durations
type NotificationConfig struct {
	SuccessTimeoutMs int `yaml:"success_timeout_ms"`
	ErrorTimeoutMs   int `yaml:"error_timeout_ms"`
	InfoTimeoutMs    int `yaml:"info_timeout_ms"`
}

// ServerConfig contains settings of the dev content API
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	IdleTimeout  int    `yaml:"idle_timeout"`
	JWTSecret    string `yaml:"jwt_secret"`
}

// PushConfig contains settings of the dev push service
type PushConfig struct {
	Addr              string `yaml:"addr"`
	MaxIdleTime       int    `yaml:"max_idle_time"`
	HeartbeatInterval int    `yaml:"heartbeat_interval"`
	ClientBufferSize  int    `yaml:"client_buffer_size"`
}

// StorageConfig contains settings of the dev content API store
type StorageConfig struct {
	DataDir                string `yaml:"data_dir"`
	InMemory               bool   `yaml:"in_memory"`
	CacheSize              int    `yaml:"cache_size"`
	CacheExpirationSeconds int    `yaml:"cache_expiration_seconds"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Format        string            `yaml:"format"`
	IncludeCaller bool              `yaml:"include_caller"`
	GlobalFields  map[string]string `yaml:"global_fields"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	Enabled       bool              `yaml:"enabled"`
	ServiceName   string            `yaml:"service_name"`
	Endpoint      string            `yaml:"endpoint"`
	SamplingRatio float64           `yaml:"sampling_ratio"`
	Attributes    map[string]string `yaml:"attributes"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8080",
			TimeoutSeconds: 15,
		},
		Realtime: RealtimeConfig{
			URL:                 "ws://localhost:8090/ws",
			AppKey:              "lista-dev",
			LingerMs:            5000,
			ReconnectInitialMs:  500,
			ReconnectMaxMs:      30000,
			PingIntervalSeconds: 25,
			BufferSize:          100,
		},
		Token: TokenConfig{
			Key: "",
		},
		Session: SessionConfig{
			DataDir:  "./data/session",
			InMemory: false,
		},
		Notifications: NotificationConfig{
			SuccessTimeoutMs: 3000,
			ErrorTimeoutMs:   5000,
			InfoTimeoutMs:    4000,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  5,
			WriteTimeout: 10,
			IdleTimeout:  120,
			JWTSecret:    "change-me-in-production",
		},
		Push: PushConfig{
			Addr:              ":8090",
			MaxIdleTime:       60,
			HeartbeatInterval: 20,
			ClientBufferSize:  100,
		},
		Storage: StorageConfig{
			DataDir:                "./data/cms",
			InMemory:               false,
			CacheSize:              1000,
			CacheExpirationSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "console",
			IncludeCaller: false,
			GlobalFields:  map[string]string{},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			ServiceName:   "lista",
			Endpoint:      "localhost:4317",
			SamplingRatio: 0.1,
			Attributes:    map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filePath string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filePath).Msg("Configuration file not found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// Overrides carries command line values; empty fields are ignored
type Overrides struct {
	APIBaseURL  string
	RealtimeURL string
	DataDir     string
	LogLevel    string
}

// LoadConfig loads configuration from file, environment variables, and flags
func LoadConfig(configFile string, overrides Overrides) (*Config, error) {
	var config *Config
	var err error

	if configFile != "" {
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	applyEnvOverrides(config)

	// Flags have the highest priority
	if overrides.APIBaseURL != "" {
		config.API.BaseURL = overrides.APIBaseURL
	}
	if overrides.RealtimeURL != "" {
		config.Realtime.URL = overrides.RealtimeURL
	}
	if overrides.DataDir != "" {
		absDataDir, err := filepath.Abs(overrides.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for data directory: %w", err)
		}
		config.Session.DataDir = filepath.Join(absDataDir, "session")
		config.Storage.DataDir = filepath.Join(absDataDir, "cms")
	}
	if overrides.LogLevel != "" {
		config.Logging.Level = overrides.LogLevel
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LISTA_API_BASE_URL"); v != "" {
		config.API.BaseURL = v
	}
	if v := os.Getenv("LISTA_API_TIMEOUT_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			config.API.TimeoutSeconds = val
		}
	}

	if v := os.Getenv("LISTA_REALTIME_URL"); v != "" {
		config.Realtime.URL = v
	}
	if v := os.Getenv("LISTA_REALTIME_APP_KEY"); v != "" {
		config.Realtime.AppKey = v
	}

	if v := os.Getenv("LISTA_TOKEN_KEY"); v != "" {
		config.Token.Key = v
	}

	if v := os.Getenv("LISTA_SESSION_DATA_DIR"); v != "" {
		config.Session.DataDir = v
	}

	if v := os.Getenv("LISTA_SERVER_ADDR"); v != "" {
		config.Server.Addr = v
	}
	if v := os.Getenv("LISTA_SERVER_JWT_SECRET"); v != "" {
		config.Server.JWTSecret = v
	}
	if v := os.Getenv("LISTA_PUSH_ADDR"); v != "" {
		config.Push.Addr = v
	}
	if v := os.Getenv("LISTA_STORAGE_DATA_DIR"); v != "" {
		config.Storage.DataDir = v
	}

	if v := os.Getenv("LISTA_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LISTA_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	if v := os.Getenv("LISTA_TELEMETRY_ENABLED"); v != "" {
		if val, err := strconv.ParseBool(v); err == nil {
			config.Telemetry.Enabled = val
		}
	}
}

package docstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in Config.Backend.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

// Environment variables read by Config.ApplyEnv.
const (
	EnvBackend          = "DOCSTORE_BACKEND"
	EnvConnectionString = "MONGODB_CONNECTION_STRING"
	EnvDatabaseName     = "MONGODB_DB_NAME"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLoggingLevel     = "LOGGING_LEVEL"
)

// Config selects and tunes a backend.
type Config struct {
	// Backend is BackendMemory or BackendMongo.
	Backend string `yaml:"backend"`

	// ConnectionString is the MongoDB URI. Required for BackendMongo.
	ConnectionString string `yaml:"connection_string"`

	// DatabaseName is the database every collection lives in.
	DatabaseName string `yaml:"database_name"`

	// Membership selects the memory backend's $in polarity: "excludes"
	// (default) or "includes".
	Membership string `yaml:"membership"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// OperationTimeout bounds every store call. Zero disables it.
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// ConnectAttempts is how many times opening the backend is tried
	// before giving up.
	ConnectAttempts int `yaml:"connect_attempts"`

	// Tracing enables an OpenTelemetry span per store call.
	Tracing bool `yaml:"tracing"`

	// Metrics enables OpenTelemetry duration and call-count instruments.
	Metrics bool `yaml:"metrics"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendMemory,
		DatabaseName:     "docstore",
		Membership:       "excludes",
		LogLevel:         "info",
		OperationTimeout: 10 * time.Second,
		ConnectAttempts:  3,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Keys missing from the file
// keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("docstore: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("docstore: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup,
// typically os.LookupEnv. LOG_LEVEL wins over LOGGING_LEVEL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBackend); ok && v != "" {
		c.Backend = v
	}
	if v, ok := lookup(EnvConnectionString); ok && v != "" {
		c.ConnectionString = v
	}
	if v, ok := lookup(EnvDatabaseName); ok && v != "" {
		c.DatabaseName = v
	}
	if v, ok := lookup(EnvLoggingLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendMemory:
		if c.Membership != "" && c.Membership != "excludes" && c.Membership != "includes" {
			errs = append(errs, fmt.Errorf("membership %q: want excludes or includes", c.Membership))
		}
	case BackendMongo:
		if c.ConnectionString == "" {
			errs = append(errs, errors.New("connection_string is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend %q: want %s or %s", c.Backend, BackendMemory, BackendMongo))
	}
	if c.DatabaseName == "" {
		errs = append(errs, errors.New("database_name is required"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.OperationTimeout < 0 {
		errs = append(errs, fmt.Errorf("operation_timeout %s is negative", c.OperationTimeout))
	}
	if c.ConnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("connect_attempts %d is negative", c.ConnectAttempts))
	}
	if len(errs) > 0 {
		return fmt.Errorf("docstore: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level %q: want debug, info, warn or error", s)
	}
}

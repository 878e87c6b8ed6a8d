package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kvdb/kvdb/internal/sweeper"
)

// Storage drivers understood by the server
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverPebble   = "pebble"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage StorageConfig

	// Key and value size limits
	Limits LimitsConfig

	// Admission control
	RateLimit RateLimitConfig

	// Inactivity expiration
	Expiration ExpirationConfig

	// Logging configuration
	Logging LoggingConfig

	// Metrics configuration
	Metrics MetricsConfig

	// Tracing configuration
	Tracing TracingConfig

	// Configuration file path
	ConfigFile string `env:"CONFIG_FILE"`

	// Dotenv file path, read if present
	EnvFile string `env:"ENV_FILE" envDefault:".env"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// Listen address
	ListenOn string `env:"LISTEN_ON" envDefault:"0.0.0.0:3005"`

	// Allowed CORS origins; "*" allows any, "https://*.example.org" is a pattern
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	// Time allowed for in-flight requests on shutdown
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Gin mode: "release", "debug", "test"
	Mode string `env:"GIN_MODE" envDefault:"release"`
}

// StorageConfig holds persistent table configuration
type StorageConfig struct {
	// Driver: "postgres", "sqlite", "pebble"
	Driver string `env:"DATABASE_DRIVER" envDefault:"postgres"`

	// Connection string, SQLite file or pebble directory
	URL string `env:"DATABASE_URL"`

	// Maximum open SQL connections
	MaxOpenConns int `env:"STORAGE_MAX_OPEN_CONNS" envDefault:"5"`

	// Timeout applied to each storage transaction
	QueryTimeout time.Duration `env:"STORAGE_QUERY_TIMEOUT" envDefault:"5s"`
}

// LimitsConfig bounds key and value sizes in bytes
type LimitsConfig struct {
	MaxKeyLength   int `env:"MAX_KEY_NAME_LENGTH" envDefault:"256"`
	MaxValueLength int `env:"MAX_VALUE_LENGTH" envDefault:"1048576"`
}

// RateLimitConfig configures the process-wide token bucket
type RateLimitConfig struct {
	// Tokens added per second; 0 disables limiting
	PerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"10"`

	// Bucket capacity
	BurstSize int `env:"RATE_LIMIT_BURST_SIZE" envDefault:"20"`
}

// ExpirationConfig configures the inactivity sweeper. Both fields must be set
// for the sweeper to run.
type ExpirationConfig struct {
	// Retention window text, e.g. "6 months"
	DeleteUnusedAfter string `env:"DELETE_UNUSED_KEYS_AFTER"`

	// Sweep interval in seconds
	CleanupEverySeconds float64 `env:"KEY_CLEANUP_EVERY_S" envDefault:"0"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Log level: "debug", "info", "warn", "error"
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Log format: "json", "text"
	Format string `env:"LOG_FORMAT" envDefault:"json"`

	// Log file path (empty for stdout)
	Output string `env:"LOG_OUTPUT" envDefault:""`

	// Enable log rotation
	Rotation bool `env:"LOG_ROTATION" envDefault:"true"`

	// Max log file size in MB
	MaxSize int `env:"LOG_MAX_SIZE" envDefault:"100"`

	// Number of backup files to keep
	MaxBackups int `env:"LOG_MAX_BACKUPS" envDefault:"7"`

	// Max age in days
	MaxAge int `env:"LOG_MAX_AGE" envDefault:"30"`
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	// Enable Prometheus metrics
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// Metrics server address
	Addr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Metrics path
	Path string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
	Endpoint string `env:"TRACING_ENDPOINT" envDefault:""`
	Exporter string `env:"TRACING_EXPORTER" envDefault:"grpc"`
	Insecure bool   `env:"TRACING_INSECURE" envDefault:"false"`
}

// SweeperEnabled reports whether both the retention window and the interval are set
func (e ExpirationConfig) SweeperEnabled() bool {
	return strings.TrimSpace(e.DeleteUnusedAfter) != "" && e.CleanupEverySeconds > 0
}

// Interval returns the sweep interval as a duration
func (e ExpirationConfig) Interval() time.Duration {
	return time.Duration(e.CleanupEverySeconds * float64(time.Second))
}

// Load loads configuration from multiple sources. Later sources win:
// 1. Default values
// 2. Configuration file (YAML map of variable names)
// 3. Dotenv file
// 4. Process environment
// 5. Command line flags
func Load(args []string) (*Config, error) {
	fset := flag.NewFlagSet("kvdb", flag.ContinueOnError)
	configFile := fset.String("config", "", "Path to configuration file")
	envFile := fset.String("env-file", "", "Path to dotenv file")
	listenOn := fset.String("listen", "", "HTTP listen address")
	driver := fset.String("database-driver", "", "Storage driver (postgres, sqlite, pebble)")
	databaseURL := fset.String("database-url", "", "Database connection string or path")
	logLevel := fset.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fset.String("log-format", "", "Log format (json, text)")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	environ, err := buildEnvironment(*configFile, *envFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config":
			cfg.ConfigFile = *configFile
		case "env-file":
			cfg.EnvFile = *envFile
		case "listen":
			cfg.Server.ListenOn = *listenOn
		case "database-driver":
			cfg.Storage.Driver = *driver
		case "database-url":
			cfg.Storage.URL = *databaseURL
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// buildEnvironment merges the config file, the dotenv file and the process
// environment into one variable map.
func buildEnvironment(configFile, envFile string) (map[string]string, error) {
	processEnv := env.ToMap(os.Environ())

	if configFile == "" {
		configFile = processEnv["CONFIG_FILE"]
	}
	if envFile == "" {
		envFile = processEnv["ENV_FILE"]
	}
	if envFile == "" {
		envFile = ".env"
	}

	merged := make(map[string]string)

	if configFile != "" {
		values, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		for k, v := range values {
			merged[k] = v
		}
	}

	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
	}
	for k, v := range dotenv {
		merged[k] = v
	}

	for k, v := range processEnv {
		merged[k] = v
	}

	return merged, nil
}

// loadFromFile reads a YAML document mapping variable names to scalar values,
// e.g. "RATE_LIMIT_PER_SECOND: 5". Lists are joined with commas.
func loadFromFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch typed := v.(type) {
		case nil:
			values[k] = ""
		case []interface{}:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			values[k] = strings.Join(parts, ",")
		default:
			values[k] = fmt.Sprint(typed)
		}
	}
	return values, nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.URL == "" {
		switch c.Storage.Driver {
		case DriverSQLite:
			c.Storage.URL = "kvdb.db"
		case DriverPebble:
			c.Storage.URL = "./data/kvdb"
		}
	}

	origins := c.Server.CORSOrigins[:0]
	for _, o := range c.Server.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.CORSOrigins = origins
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenOn == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	for _, origin := range c.Server.CORSOrigins {
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite, DriverPebble:
	default:
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}

	if c.Storage.MaxOpenConns < 1 {
		return fmt.Errorf("storage max open connections must be at least 1")
	}

	if c.Limits.MaxKeyLength < 1 {
		return fmt.Errorf("max key length must be positive")
	}

	if c.Limits.MaxValueLength < 1 {
		return fmt.Errorf("max value length must be positive")
	}

	if c.RateLimit.PerSecond < 0 {
		return fmt.Errorf("rate limit per second cannot be negative")
	}

	if c.RateLimit.PerSecond > 0 && c.RateLimit.BurstSize < 1 {
		return fmt.Errorf("rate limit burst size must be at least 1")
	}

	if c.Expiration.CleanupEverySeconds < 0 {
		return fmt.Errorf("key cleanup interval cannot be negative")
	}

	if strings.TrimSpace(c.Expiration.DeleteUnusedAfter) != "" {
		if _, err := sweeper.ParseRetention(c.Expiration.DeleteUnusedAfter); err != nil {
			return fmt.Errorf("invalid DELETE_UNUSED_KEYS_AFTER: %w", err)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	return nil
}

// validateOrigin accepts "*", an http(s) origin, or a pattern with one '*'
func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	switch stars := strings.Count(origin, "*"); {
	case stars > 1:
		return fmt.Errorf("invalid CORS origin %q: only one '*' is allowed", origin)
	case stars == 1:
		return nil
	}
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		return fmt.Errorf("invalid CORS origin %q: must start with http:// or https://", origin)
	}
	return nil
}

// Redacted returns a copy safe for logging
func (c Config) Redacted() Config {
	if c.Storage.URL != "" && c.Storage.Driver == DriverPostgres {
		c.Storage.URL = "REDACTED"
	}
	return c
}

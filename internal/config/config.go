// Package config loads the server configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvConfigFile    = "TOOLDOCK_CONFIG"
	EnvToolsDir      = "TOOLDOCK_TOOLS_DIR"
	EnvUnitTimeout   = "TOOLDOCK_UNIT_TIMEOUT"
	EnvParallelism   = "TOOLDOCK_PARALLELISM"
	EnvWatch         = "TOOLDOCK_WATCH"
	EnvWatchDebounce = "TOOLDOCK_WATCH_DEBOUNCE"
	EnvMetricsAddr   = "TOOLDOCK_METRICS_ADDR"
	EnvLogLevel      = "TOOLDOCK_LOG_LEVEL"
	EnvLogFormat     = "TOOLDOCK_LOG_FORMAT"
	EnvStrict        = "TOOLDOCK_STRICT"
	EnvServerName    = "TOOLDOCK_SERVER_NAME"

	EnvTraceSampleRate = "TOOLDOCK_TRACE_SAMPLE_RATE"

	// Standard OpenTelemetry variables.
	EnvOTELEnabled     = "OTEL_ENABLED"
	EnvOTELEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTELEnvironment = "OTEL_ENVIRONMENT"
)

// DefaultServerName is the MCP implementation name reported to clients.
const DefaultServerName = "tooldock-mcp-server"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the server settings.
type Config struct {
	// ToolsDir is the directory scanned for tool units.
	ToolsDir string `yaml:"tools_dir"`

	// UnitTimeout bounds loading a single unit.
	UnitTimeout time.Duration `yaml:"unit_timeout"`

	// Parallelism is the number of units loaded at once.
	Parallelism int `yaml:"parallelism"`

	// Watch enables reloading when files in ToolsDir change.
	Watch bool `yaml:"watch"`

	// WatchDebounce is how long the watcher waits for changes to settle.
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// MetricsAddr is the listen address of the /metrics endpoint. Empty
	// disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Strict refuses to serve when the initial discovery pass reports errors.
	Strict bool `yaml:"strict"`

	ServerName string `yaml:"server_name"`

	Tracing TracingConfig `yaml:"tracing"`

	// File is the YAML file the configuration was read from, if any.
	File string `yaml:"-"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector. Setting it enables tracing;
	// enabled without an endpoint writes spans to stderr.
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
	Environment string  `yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ToolsDir:      "tools.d",
		UnitTimeout:   5 * time.Second,
		Parallelism:   4,
		WatchDebounce: 500 * time.Millisecond,
		LogLevel:      "info",
		LogFormat:     "text",
		ServerName:    DefaultServerName,
		Tracing: TracingConfig{
			SampleRate:  1.0,
			Environment: "development",
		},
	}
}

var dotenvOnce sync.Once

// LoadDotenv loads .env from the working directory and from dir, once per
// process. Variables already set in the environment are kept.
func LoadDotenv(dir string) {
	dotenvOnce.Do(func() {
		_ = loadDotenv(dir)
	})
}

func loadDotenv(dir string) error {
	var files []string
	for _, p := range []string{".env", filepath.Join(dir, ".env")} {
		p = filepath.Clean(p)
		if slices.Contains(files, p) {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return nil
	}
	return godotenv.Load(files...)
}

// Load builds the configuration from defaults, the YAML file named by
// TOOLDOCK_CONFIG (or path, when not empty) and the environment. .env files
// are loaded first.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	dir := "."
	if path != "" {
		dir = filepath.Dir(path)
	}
	LoadDotenv(dir)
	if path == "" {
		// .env may have named the file
		path = os.Getenv(EnvConfigFile)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	c.File = path
	return nil
}

// applyEnv overrides fields with the environment variables that are set.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err))
				return
			}
			*dst = b
		}
	}

	str(EnvToolsDir, &c.ToolsDir)
	dur(EnvUnitTimeout, &c.UnitTimeout)
	if v, ok := lookup(EnvParallelism); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvParallelism, v, err))
		} else {
			c.Parallelism = n
		}
	}
	boolean(EnvWatch, &c.Watch)
	dur(EnvWatchDebounce, &c.WatchDebounce)
	str(EnvMetricsAddr, &c.MetricsAddr)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLogFormat, &c.LogFormat)
	boolean(EnvStrict, &c.Strict)
	str(EnvServerName, &c.ServerName)

	boolean(EnvOTELEnabled, &c.Tracing.Enabled)
	str(EnvOTELEndpoint, &c.Tracing.Endpoint)
	str(EnvOTELEnvironment, &c.Tracing.Environment)
	if v, ok := lookup(EnvTraceSampleRate); ok && v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvTraceSampleRate, v, err))
		} else {
			c.Tracing.SampleRate = rate
		}
	}
	if c.Tracing.Endpoint != "" {
		c.Tracing.Enabled = true
	}

	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ToolsDir) == "" {
		errs = append(errs, fmt.Errorf("%w: tools directory is empty", ErrInvalid))
	}
	if c.UnitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: unit timeout must be positive, got %s", ErrInvalid, c.UnitTimeout))
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("%w: parallelism must be at least 1, got %d", ErrInvalid, c.Parallelism))
	}
	if c.WatchDebounce < 0 {
		errs = append(errs, fmt.Errorf("%w: watch debounce must not be negative, got %s", ErrInvalid, c.WatchDebounce))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log format must be text or json, got %q", ErrInvalid, c.LogFormat))
	}
	if strings.TrimSpace(c.ServerName) == "" {
		errs = append(errs, fmt.Errorf("%w: server name is empty", ErrInvalid))
	}
	if r := c.Tracing.SampleRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("%w: trace sample rate must be between 0 and 1, got %g", ErrInvalid, r))
	}
	return errors.Join(errs...)
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, s)
	}
	return level, nil
}

// NewLogger creates the logger described by the configuration. w should be
// stderr for the server, since stdout carries the MCP protocol.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

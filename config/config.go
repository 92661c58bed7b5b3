package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidValue is returned when a configuration value is out of range.
var ErrInvalidValue = errors.New("invalid config value")

// Environment variables read by LoadConfig
const (
	EnvPort           = "WATCHER_PORT"
	EnvHTTPPort       = "HTTP_PORT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvDebounceMs     = "DEBOUNCE_MS"
	EnvMaxWaitMs      = "MAX_WAIT_MS"
	EnvWatchPaths     = "WATCH_PATHS"
	EnvWatchPatterns  = "WATCH_PATTERNS"
	EnvIgnorePatterns = "IGNORE_PATTERNS"
	EnvConfigFile     = "WATCHER_CONFIG"
)

// Config holds the configuration for the file watcher service
type Config struct {
	Port       int    `yaml:"port"`
	HTTPPort   int    `yaml:"http_port"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	DebounceMs int    `yaml:"debounce_ms"`
	MaxWaitMs  int    `yaml:"max_wait_ms"`

	WatchPaths     []string `yaml:"watch_paths"`
	WatchPatterns  []string `yaml:"watch_patterns"`
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// WatchFile and IgnoreFile hold one pattern per line, read from each
	// watched root when present.
	WatchFile  string `yaml:"watch_file"`
	IgnoreFile string `yaml:"ignore_file"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:          50051,
		HTTPPort:      8080,
		LogLevel:      "info",
		LogFormat:     "console",
		DebounceMs:    500,
		MaxWaitMs:     5000,
		WatchPatterns: []string{"**"},
		IgnorePatterns: []string{
			".git/**",
			"*.swp",
			"*~",
		},
		WatchFile:  ".obbywatch",
		IgnoreFile: ".obbyignore",
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// at path, a .env file in the working directory and environment variables,
// later sources overriding earlier ones. An empty path falls back to
// WATCHER_CONFIG.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if port, ok := envInt(EnvPort); ok {
		c.Port = port
	}
	if port, ok := envInt(EnvHTTPPort); ok {
		c.HTTPPort = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.LogLevel = ll
	}
	if lf := os.Getenv(EnvLogFormat); lf != "" {
		c.LogFormat = lf
	}
	if db, ok := envInt(EnvDebounceMs); ok {
		c.DebounceMs = db
	}
	if mw, ok := envInt(EnvMaxWaitMs); ok {
		c.MaxWaitMs = mw
	}
	if paths := envList(EnvWatchPaths); paths != nil {
		c.WatchPaths = paths
	}
	if patterns := envList(EnvWatchPatterns); patterns != nil {
		c.WatchPatterns = patterns
	}
	if patterns := envList(EnvIgnorePatterns); patterns != nil {
		c.IgnorePatterns = patterns
	}
}

// Validate checks ports and delays.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 0 and 65535, got %d", ErrInvalidValue, c.Port)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%w: http_port must be between 0 and 65535, got %d", ErrInvalidValue, c.HTTPPort)
	}
	if c.DebounceMs < 0 {
		return fmt.Errorf("%w: debounce_ms must not be negative, got %d", ErrInvalidValue, c.DebounceMs)
	}
	if c.MaxWaitMs < c.DebounceMs {
		return fmt.Errorf("%w: max_wait_ms (%d) must be at least debounce_ms (%d)",
			ErrInvalidValue, c.MaxWaitMs, c.DebounceMs)
	}
	return nil
}

// Debounce returns DebounceMs as a duration
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// MaxWait returns MaxWaitMs as a duration
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

// envInt ignores values that do not parse, like the defaults it overrides.
func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envList(key string) []string {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package log

import (
	"os"
	"strings"
)

// Config holds logging configuration
type Config struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`

	// Format is console or json
	Format string `yaml:"format"`

	// AddSource adds file:line to every record
	AddSource bool `yaml:"add_source"`
}

// NewConfigFromEnv builds a Config from LOG_LEVEL and LOG_FORMAT.
// ENV=development forces debug level with source locations.
func NewConfigFromEnv() *Config {
	cfg := &Config{
		Level:  getEnvWithDefault("LOG_LEVEL", "info"),
		Format: getEnvWithDefault("LOG_FORMAT", "console"),
	}

	if strings.EqualFold(os.Getenv("ENV"), "development") {
		cfg.Level = "debug"
		cfg.AddSource = true
	}

	return cfg
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

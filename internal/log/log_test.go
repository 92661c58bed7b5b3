package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		t.Setenv("LOG_FORMAT", "")
		t.Setenv("ENV", "")

		cfg := NewConfigFromEnv()
		assert.Equal(t, "info", cfg.Level)
		assert.Equal(t, "console", cfg.Format)
		assert.False(t, cfg.AddSource)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "warn")
		t.Setenv("LOG_FORMAT", "json")
		t.Setenv("ENV", "")

		cfg := NewConfigFromEnv()
		assert.Equal(t, "warn", cfg.Level)
		assert.Equal(t, "json", cfg.Format)
	})

	t.Run("development", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "error")
		t.Setenv("ENV", "development")

		cfg := NewConfigFromEnv()
		assert.Equal(t, "debug", cfg.Level)
		assert.True(t, cfg.AddSource)
	})
}

func TestNewModuleLogger(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&Config{Level: "debug", Format: "json"}, &buf)

	NewModuleLogger("watcher", "buffer").Debug("flushed", "events", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "flushed", record["msg"])
	assert.Equal(t, "watcher", record["module"])
	assert.Equal(t, "buffer", record["component"])
	assert.Equal(t, "fs-coalescer", record["service"])
	assert.Equal(t, float64(3), record["events"])
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&Config{Level: "warn", Format: "console"}, &buf)

	logger := GetLogger()
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.True(t, strings.Contains(out, "shown"))
}

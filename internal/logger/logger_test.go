package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/opsframe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg.Console = true
	cfg.Out = &buf
	l, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, &buf
}

func TestNew(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		l, buf := newBufferLogger(t, Config{Level: "debug"})

		z := l.Zerolog()
		z.Debug().Str("tool", "hris_lookup").Msg("Tool registered")

		assert.Contains(t, buf.String(), `"message":"Tool registered"`)
		assert.Contains(t, buf.String(), `"tool":"hris_lookup"`)
		assert.Nil(t, l.Redactor())
	})

	t.Run("level filters lower events", func(t *testing.T) {
		l, buf := newBufferLogger(t, Config{Level: "warn"})

		z := l.Zerolog()
		z.Info().Msg("quiet")
		z.Warn().Msg("loud")

		assert.NotContains(t, buf.String(), "quiet")
		assert.Contains(t, buf.String(), "loud")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		l, buf := newBufferLogger(t, Config{Level: "chatty"})

		z := l.Zerolog()
		z.Debug().Msg("hidden")
		z.Info().Msg("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "opsframe.log")

		l, err := New(Config{Level: "info", File: logFile})
		require.NoError(t, err)

		z := l.Zerolog()
		z.Info().Msg("written to disk")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to disk")
	})

	t.Run("no outputs", func(t *testing.T) {
		l, err := New(Config{Level: "info"})
		require.NoError(t, err)

		z := l.Zerolog()
		assert.NotPanics(t, func() { z.Info().Msg("dropped") })
		assert.NoError(t, l.Close())
	})
}

func TestLoggerComponent(t *testing.T) {
	l, buf := newBufferLogger(t, Config{Level: "info"})

	c := l.Component("registry")
	c.Info().Msg("Tool discovery completed")

	assert.Contains(t, buf.String(), `"component":"registry"`)
}

func TestLoggerRedaction(t *testing.T) {
	l, buf := newBufferLogger(t, Config{Level: "info", Redaction: true})
	require.NotNil(t, l.Redactor())

	z := l.Zerolog()
	z.Info().Str("api_key", "abc123").Str("user", "ana").Msg("Connecting")

	out := buf.String()
	assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	assert.Contains(t, out, `"user":"ana"`)
	assert.NotContains(t, out, "abc123")
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.LoggingConfig{
		Level:     "debug",
		File:      "/var/log/opsframe.log",
		MaxSize:   50,
		MaxAge:    3,
		Compress:  true,
		Redaction: true,
	})

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "/var/log/opsframe.log", cfg.File)
	assert.Equal(t, 50, cfg.MaxSize)
	assert.Equal(t, 3, cfg.MaxAge)
	assert.True(t, cfg.Compress)
	assert.True(t, cfg.Redaction)
	assert.True(t, cfg.Console)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
}

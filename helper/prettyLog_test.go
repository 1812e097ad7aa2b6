package helper

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrettyHandler(t *testing.T) {
	color.NoColor = true

	t.Run("One line per record with attrs as json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(NewPrettyHandler(&buf, PrettyHandlerOptions{}))

		logger.Info("Embedded batch", slog.Int("chunks", 64))

		out := buf.String()
		assert.Contains(t, out, "INFO:")
		assert.Contains(t, out, "Embedded batch")
		assert.Contains(t, out, `"chunks": 64`)
	})

	t.Run("Errors are printed as their message", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(NewPrettyHandler(&buf, PrettyHandlerOptions{}))

		logger.Error("Search failed", slog.Any("error", errors.New("connection refused")))

		assert.Contains(t, buf.String(), `"error": "connection refused"`)
	})

	t.Run("Attrs of derived loggers are kept", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(NewPrettyHandler(&buf, PrettyHandlerOptions{})).With(slog.String("mode", "advanced"))

		logger.Warn("Judge failed", slog.Int("page", 2))

		out := buf.String()
		assert.Contains(t, out, "WARN:")
		assert.Contains(t, out, `"mode": "advanced"`)
		assert.Contains(t, out, `"page": 2`)
	})
}

func TestNewLogger(t *testing.T) {
	color.NoColor = true

	t.Run("Level filters records", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "warn")

		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("Unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "chatty")

		logger.Debug("hidden")
		logger.Info("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

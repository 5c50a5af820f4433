package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json at requested level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, "ingest", "WARN", "")
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

		logger.Info().Msg("hidden")
		logger.Warn().Msg("shown")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "shown", line["message"])
		assert.Equal(t, "ingest", line["service"])
	})

	t.Run("empty level defaults to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, "ingest", "", "")
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
		assert.Zero(t, buf.Len())
	})

	t.Run("invalid level defaults to info and warns", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, "ingest", "chatty", "")
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
		assert.Contains(t, buf.String(), "Invalid LOG_LEVEL")
	})

	t.Run("console format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&buf, "sim", "debug", "console")
		logger.Debug().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.False(t, json.Valid(buf.Bytes()))
	})
}

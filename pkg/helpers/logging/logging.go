// Package logging builds the process logger for the commands.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger at LOG_LEVEL (default info). LOG_FORMAT=console gives
// human-readable output; anything else is JSON, which is what log collectors
// in Lambda and Cloud Run expect.
func New(service string) zerolog.Logger {
	return newLogger(os.Stderr, service, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func newLogger(out io.Writer, service, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", service).Logger()
	if err != nil {
		logger.Warn().Str("value", level).Msg("Invalid LOG_LEVEL, using info.")
	}
	return logger
}

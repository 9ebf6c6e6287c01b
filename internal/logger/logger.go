// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"
)

// New builds a logger writing to w in the given format ("console" or "json"),
// installs it as the global log.Logger and sets the global level.
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.Nop(), oops.Code("LOGGER_INVALID_LEVEL").With("level", level).Errorf("unknown log level %q", level)
	}

	out := w
	switch strings.ToLower(format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), oops.Code("LOGGER_INVALID_FORMAT").With("format", format).Errorf("unknown log format %q", format)
	}

	zerolog.SetGlobalLevel(lvl)
	logger := zerolog.New(out).With().Timestamp().Caller().Logger()
	log.Logger = logger
	return logger, nil
}

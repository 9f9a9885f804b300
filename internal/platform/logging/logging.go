// Package logging builds the zerolog loggers shared by the season daemon and
// its tooling.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format names accepted by Config.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects log verbosity and encoding.
type Config struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// New builds a logger writing to w.
func New(w io.Writer, cfg Config) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if raw := strings.TrimSpace(cfg.Level); raw != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(raw))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", raw, err)
		}
		level = parsed
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// Setup builds the process logger for service and installs it as the global
// zerolog logger.
func Setup(service string, cfg Config) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger, err := New(os.Stderr, cfg)
	if err != nil {
		return logger, err
	}
	logger = logger.With().Str("service", service).Logger()
	log.Logger = logger
	return logger, nil
}

// Component derives a child logger tagged with a component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// Printf adapts a logger to printf-style callbacks used by dial helpers.
func Printf(logger zerolog.Logger) func(string, ...any) {
	return func(format string, args ...any) {
		logger.Debug().Msgf(format, args...)
	}
}

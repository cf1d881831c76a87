// Package logging provides the process-wide zerolog logger used in place of
// the standard library's log package throughout the server.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

var base zerolog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
	With().Timestamp().Logger()

// Configure installs the process-wide logger. pretty selects the
// human-readable console writer (used on an interactive terminal); set it
// false for plain JSON lines, which is friendlier to log aggregators.
func Configure(level string, pretty bool, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	var w io.Writer = out
	if pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	base = zerolog.New(w).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		base = base.Level(lvl)
	}
}

// Named returns a child logger tagged with a "component" field, used to
// scope log lines to a subsystem (scheduler, connection manager, checkpoint).
func Named(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// Infof logs a formatted message at info level on the base logger.
func Infof(format string, args ...interface{}) {
	base.Info().Msgf(format, args...)
}

// Warnf logs a formatted message at warn level on the base logger.
func Warnf(format string, args ...interface{}) {
	base.Warn().Msgf(format, args...)
}

// Errorf logs a formatted message at error level on the base logger.
func Errorf(format string, args ...interface{}) {
	base.Error().Msgf(format, args...)
}

// Fatalf logs at fatal level then calls os.Exit(1), matching log.Fatalf.
func Fatalf(format string, args ...interface{}) {
	base.Fatal().Msgf(format, args...)
}

// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultService is stamped on every line when Config.Service is empty.
const DefaultService = "crashguard"

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal, panic.
	// Default: info
	Level string

	// Format is the output format: json or console.
	// Default: json
	Format string

	// Caller includes caller file and line number in logs.
	// Default: false
	Caller bool

	// Timestamp enables timestamps in log output.
	// Default: true
	Timestamp bool

	// Service is written as the "service" field. Hosts embedding the
	// supervisor set their own name here.
	// Default: crashguard
	Service string

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Service:   DefaultService,
		Output:    os.Stderr,
	}
}

// current is swapped whole by Init and SetLogger; readers never lock.
var current atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // logging works before main calls Init
func init() {
	Init(DefaultConfig())
}

// Init configures the global logger. Calling it again replaces the logger
// for every subsequent log call; loggers already derived with With or
// WithComponent keep their old output.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.ErrorFieldName = "error"
	zerolog.CallerFieldName = "caller"

	l := build(cfg)
	current.Store(&l)
}

func build(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	service := cfg.Service
	if service == "" {
		service = DefaultService
	}

	lc := zerolog.New(out).With().Str("service", service)
	if cfg.Timestamp {
		lc = lc.Timestamp()
	}
	if cfg.Caller {
		lc = lc.Caller()
	}
	return lc.Logger()
}

// parseLevel converts a level name to zerolog.Level. Unknown or empty
// values fall back to info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return zerolog.WarnLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

func get() *zerolog.Logger {
	return current.Load()
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return *get()
}

// SetLogger replaces the global logger. Tests use this to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	current.Store(&l)
}

// With creates a child logger context with additional fields.
//
//	reloadLog := logging.With().Str("component", "reload").Logger()
func With() zerolog.Context {
	return get().With()
}

// WithComponent creates a child logger tagged with a component field.
func WithComponent(component string) zerolog.Logger {
	return get().With().Str("component", component).Logger()
}

// Trace starts a new message with trace level.
func Trace() *zerolog.Event { return get().Trace() }

// Debug starts a new message with debug level.
func Debug() *zerolog.Event { return get().Debug() }

// Info starts a new message with info level.
//
//	logging.Info().Msg("Supervisor starting")
func Info() *zerolog.Event { return get().Info() }

// Warn starts a new message with warning level.
func Warn() *zerolog.Event { return get().Warn() }

// Error starts a new message with error level.
func Error() *zerolog.Event { return get().Error() }

// Fatal starts a new message with fatal level.
// os.Exit(1) is called after the message is logged.
func Fatal() *zerolog.Event { return get().Fatal() }

// Err starts a new message with error level and adds the error. A nil err
// logs at info.
//
//	logging.Err(err).Msg("Emergency save failed")
func Err(err error) *zerolog.Event { return get().Err(err) }

// SetLevelString updates the global log level from a string.
func SetLevelString(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

// NewTestLogger creates a logger that writes JSON lines to w.
//
//	var buf bytes.Buffer
//	logging.SetLogger(logging.NewTestLogger(&buf))
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

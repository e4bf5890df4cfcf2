// Package logging configures zerolog for the stockhub client and provides the
// field conventions shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a configured minimum level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written.
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Service, if set, is attached to every line as "service".
	Service string
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and level and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(toZerolog(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ParseLevel converts a configuration string into a LogLevel. Unknown
// values yield LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func toZerolog(level LogLevel) zerolog.Level {
	switch ParseLevel(string(level)) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForRequest returns a child of logger for one fetch, carrying a fresh
// request_id with the resource and symbol.
func ForRequest(logger zerolog.Logger, resource, symbol string) zerolog.Logger {
	return logger.With().
		Str("request_id", uuid.NewString()).
		Str("resource", resource).
		Str("symbol", symbol).
		Logger()
}

// Levels used across the client:
//
//	debug  cache hits and misses, queue admissions, job poll ticks
//	info   completed fetches, invalidations, server start and stop
//	warn   rate limit throttling, corrupt cache entries, durable cache failures
//	error  fetches surfacing an error kind, rate limit blocks
//
// Fields: component, request_id, resource, symbol, range, key, cache_hit,
// job_id, status, error_kind, error_class, ttl, elapsed.

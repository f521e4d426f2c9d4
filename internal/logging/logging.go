// Package logging configures process diagnostics via zerolog.
//
// Diagnostics are separate from the telemetry this process exports: they go to
// stderr by default so stdout stays free for console telemetry output.
package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Config selects level, format and output.
type Config struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // json or console
	Output string `toml:"output" yaml:"output"` // stderr, stdout or a file path
}

// New builds a logger for cfg. Unknown levels fall back to info and an
// unopenable output file falls back to stderr.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var w io.Writer
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			w = os.Stderr
		} else {
			w = f
		}
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Global installs New(cfg) as the package-level zerolog logger.
func Global(cfg Config) zerolog.Logger {
	l := New(cfg)
	log.Logger = l
	return l
}

// Throttle passes a logger event through only while the limiter allows,
// counting what it drops. A burst of 5 is allowed, then one per second.
type Throttle struct {
	log     zerolog.Logger
	limiter *rate.Limiter
	dropped atomic.Int64
}

// NewThrottle wraps l.
func NewThrottle(l zerolog.Logger) *Throttle {
	return &Throttle{log: l, limiter: rate.NewLimiter(rate.Every(time.Second), 5)}
}

// Warn returns a warn event, or nil when the limiter refuses. zerolog treats
// methods on a nil event as no-ops.
func (t *Throttle) Warn() *zerolog.Event {
	if !t.limiter.Allow() {
		t.dropped.Add(1)
		return nil
	}
	return t.log.Warn()
}

// Dropped reports how many events were suppressed.
func (t *Throttle) Dropped() int64 { return t.dropped.Load() }

// Package logger builds the *slog.Logger handed to a memopedia run.
//
// Nothing in this module logs through a package-level logger: the command
// creates one logger per run and passes it down to the extractor, the
// refiner and the stores.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level  slog.Level
	pretty bool
	json   bool
	writer io.Writer
}

// Option configures a logger created with New.
type Option func(*config)

// WithDebug lowers the level to Debug when true.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects the charmbracelet/log handler for interactive runs.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects slog's JSON handler. Pretty wins if both are set.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter sends output to w instead of stderr.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writer = w }
}

// New creates a logger. Defaults: text handler, Info level, stderr.
func New(opts ...Option) *slog.Logger {
	cfg := &config{level: slog.LevelInfo, writer: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}
	w := cfg.writer

	switch {
	case cfg.pretty:
		h := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Level:           charmlog.Level(cfg.level),
		})
		return slog.New(h)
	case cfg.json:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.level}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.level}))
	}
}

// Nop returns a logger that drops every record.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrNop returns l, or a Nop logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

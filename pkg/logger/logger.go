package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Init installs the process-wide logger. Production defaults to JSON at info,
// everything else to text at debug; level and format override either default.
func Init(env string, opts ...Option) {
	o := options{out: os.Stdout}
	if env == "production" {
		o.level, o.format = slog.LevelInfo, "json"
	} else {
		o.level, o.format = slog.LevelDebug, "text"
	}
	for _, opt := range opts {
		opt(&o)
	}

	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{Level: o.level}
	if o.format == "json" {
		handler = slog.NewJSONHandler(o.out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.out, handlerOpts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

type options struct {
	level  slog.Level
	format string
	out    io.Writer
}

type Option func(*options)

func WithLevel(level string) Option {
	return func(o *options) {
		if level != "" {
			o.level = ParseLevel(level)
		}
	}
}

func WithFormat(format string) Option {
	return func(o *options) {
		if format == "json" || format == "text" {
			o.format = format
		}
	}
}

func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		// lazy initialize a development logger to avoid nil pointer panics
		Init("development")
	}
	return defaultLogger
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Package logger constructs the write buffer's slog.Logger: a
// tint-colorized handler with millisecond-precision UTC timestamps,
// blank attrs elided, and a static service attr stamped on every
// record so interleaved logs from multiple processes stay attributable.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a logger writing to stdout at Info level, or Debug if
// verbose is set. Every record carries service as a static attr.
func New(service string, verbose bool) *slog.Logger {
	return NewWithOutput(os.Stdout, service, verbose)
}

// NewWithOutput is New with an explicit output writer, for tests and
// for callers that multiplex log destinations.
func NewWithOutput(w io.Writer, service string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(w, &tint.Options{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}))
	if service != "" {
		log = log.With("service", service)
	}
	return log
}

// replaceAttr rewrites the built-in time attr to millisecond-precision
// UTC and drops attrs whose string value is blank.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		a.Value = slog.StringValue(utcMillis(a.Value.Time()))
	}
	if s, ok := a.Value.Any().(string); ok && s == "" {
		return slog.Attr{}
	}
	return a
}

func utcMillis(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s.%03dZ", t.Format("2006-01-02T15:04:05"), t.Nanosecond()/1_000_000)
}

// Package wbtesting holds shared test helpers: a DEBUG-gated slog
// logger and a disposable WAL directory helper.
package wbtesting

import (
	"log/slog"
	"os"
	"testing"
)

// NewLogger returns a slog.Logger whose level is controlled by the DEBUG
// env var: "2" for debug, "1" for info, anything else suppresses all but
// errors.
func NewLogger() *slog.Logger {
	switch os.Getenv("DEBUG") {
	case "2":
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case "1":
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
}

// TempWALDir returns a fresh, test-scoped directory for a WAL segment.
func TempWALDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

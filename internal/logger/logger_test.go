package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWithOutput_StampsServiceAttr(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOutput(&buf, "writebufd", false)
	log.Info("hello")

	require.Contains(t, buf.String(), "writebufd")
}

func TestNewWithOutput_VerboseEnablesDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := context.Background()

	quiet := NewWithOutput(&buf, "test", false)
	require.False(t, quiet.Handler().Enabled(ctx, slog.LevelDebug))
	require.True(t, quiet.Handler().Enabled(ctx, slog.LevelInfo))

	verbose := NewWithOutput(&buf, "test", true)
	require.True(t, verbose.Handler().Enabled(ctx, slog.LevelDebug))
}

func TestNewWithOutput_ElidesBlankAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOutput(&buf, "test", false)
	log.Info("hello", "present", "value", "empty", "")

	out := buf.String()
	require.Contains(t, out, "present")
	require.NotContains(t, out, "empty")
}

func TestUtcMillis_FormatsWithMillisecondPrecision(t *testing.T) {
	t.Parallel()

	ts := time.Date(2020, 9, 14, 18, 21, 50, 123_456_789, time.UTC)
	require.Equal(t, "2020-09-14T18:21:50.123Z", utcMillis(ts))

	eastern := time.FixedZone("UTC+5", 5*3600)
	require.Equal(t, "2020-09-14T18:21:50.123Z", utcMillis(ts.In(eastern)))
}

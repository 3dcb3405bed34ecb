package app

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"nope":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerHonorsLevel(t *testing.T) {
	log := NewLogger("warn")
	if log == nil {
		t.Fatalf("NewLogger returned nil")
	}
	ctx := context.Background()
	if log.Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("info should be filtered at warn level")
	}
	if !log.Enabled(ctx, slog.LevelError) {
		t.Fatalf("error should pass at warn level")
	}
}

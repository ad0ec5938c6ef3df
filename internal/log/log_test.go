package log

import (
	"context"
	"log/slog"
	"testing"
)

func TestLevelSelection(t *testing.T) {
	cases := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"debug", true, true},
		{"DEBUG", true, true},
		{" warn ", false, true},
		{"error", false, false},
		{"info", false, true},
		{"bogus", false, true},
		{"", false, true},
	}
	for _, tc := range cases {
		h := New(tc.level).Handler()
		if got := h.Enabled(context.Background(), slog.LevelDebug); got != tc.debug {
			t.Errorf("level %q: debug enabled = %v, want %v", tc.level, got, tc.debug)
		}
		if got := h.Enabled(context.Background(), slog.LevelWarn); got != tc.warn {
			t.Errorf("level %q: warn enabled = %v, want %v", tc.level, got, tc.warn)
		}
	}
}

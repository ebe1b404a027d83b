package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")
	log.Debug("dropped too")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	log.Warn("kept", "turn", 2)
	out := buf.String()
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"turn":2`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestWithAddsAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo).With("component", "runner")
	log.Info("turn done")
	if !strings.Contains(buf.String(), `"component":"runner"`) {
		t.Fatalf("expected component attr, got: %s", buf.String())
	}
}

func TestNopWritesNothing(t *testing.T) {
	t.Parallel()
	log := Nop()
	log.Error("ignored")
	log.With("a", 1).WithGroup("g").Info("ignored")
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), Text(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	if !strings.Contains(buf.String(), "roundtrip") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewFromFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"hello"`},
		{"text", "msg=hello"},
		{"pretty", "INF"},
		// A bytes.Buffer is never a terminal, so auto means text.
		{"auto", "msg=hello"},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			NewFromFlags("info", tc.format, &buf).Info("hello")
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("format %s: want %q in %q", tc.format, tc.want, buf.String())
			}
		})
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestPrettyHandlerGroupsAndAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil).
		WithAttrs([]slog.Attr{slog.String("scheduler", "math_tip_trick")}).
		WithGroup("turn")
	slog.New(h).Info("step", "n", 2, "reason", "max turns")

	out := buf.String()
	for _, want := range []string{"scheduler=math_tip_trick", "turn.n=2", `turn.reason="max turns"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestPrettyHandlerEmptyGroup(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	if h.WithGroup("") != h {
		t.Fatal("WithGroup(\"\") should return the same handler")
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"simple", false},
		{"has space", true},
		{"a=b", true},
		{`has"quote`, true},
		{"", false},
	}
	for _, tc := range tests {
		if got := needsQuoting(tc.in); got != tc.want {
			t.Errorf("needsQuoting(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

package logx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nil)
		SetLevel(LevelDebug)
		SetDebug(false)
		SetDebugDomains(nil)
	})
	return &buf
}

func TestLogFormat(t *testing.T) {
	buf := captureOutput(t)

	logger := NewLogger("push_notification_1a2b3c4d")
	logger.Info("Delivered %d envelopes", 3)

	output := buf.String()
	if !strings.Contains(output, "[push_notification_1a2b3c4d]") {
		t.Errorf("Expected agent ID in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}
	if !strings.Contains(output, "Delivered 3 envelopes") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
}

func TestDebugRequiresEnable(t *testing.T) {
	buf := captureOutput(t)

	logger := NewLogger("dispatch")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Expected no debug output while disabled, got: %s", buf.String())
	}

	SetDebug(true)
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected debug output once enabled, got: %s", buf.String())
	}
}

func TestSetLevelFiltersBelowThreshold(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	logger := NewLogger("kernel")
	logger.Info("dropped")
	logger.Warn("kept")

	output := buf.String()
	if strings.Contains(output, "dropped") {
		t.Errorf("INFO should be filtered at WARN level: %s", output)
	}
	if !strings.Contains(output, "kept") {
		t.Errorf("WARN should pass at WARN level: %s", output)
	}
}

func TestDomainDebug(t *testing.T) {
	buf := captureOutput(t)
	SetDebug(true)
	SetDebugDomains([]string{"dispatch"})

	ctx := WithAgent(context.Background(), "email_service_0000beef")
	Debug(ctx, "agent", "filtered out")
	Debug(ctx, "dispatch", "routing %s", "x")

	output := buf.String()
	if strings.Contains(output, "filtered out") {
		t.Errorf("agent domain should be filtered: %s", output)
	}
	if !strings.Contains(output, "[email_service_0000beef]") || !strings.Contains(output, "[dispatch] routing x") {
		t.Errorf("Expected dispatch debug line with agent id, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"Error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRecentEntriesFilterByAgent(t *testing.T) {
	captureOutput(t)
	start := time.Now().Add(-time.Second)

	NewLogger("buffer-a").Info("one")
	NewLogger("buffer-b").Info("two")

	entries := GetRecentLogEntries("buffer-a", start)
	if len(entries) == 0 {
		t.Fatal("Expected at least one entry for buffer-a")
	}
	for _, e := range entries {
		if e.AgentID != "buffer-a" {
			t.Errorf("Unexpected agent in filtered entries: %s", e.AgentID)
		}
	}
}

func TestWrap(t *testing.T) {
	captureOutput(t)
	base := errors.New("disk full")

	if Wrap(nil, "ignored") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	err := Wrap(base, "open audit log")
	if !errors.Is(err, base) {
		t.Errorf("Wrap should preserve the cause")
	}
	if err.Error() != "open audit log: disk full" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "rules"))
	log.Info("sent", Int64("company", 42))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "rules" || m["message"] != "sent" {
		t.Fatalf("unexpected line: %v", m)
	}
	if m["company"].(float64) != 42 {
		t.Fatalf("company = %v", m["company"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatal("info should be disabled at warn level")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("nothing happens")
}

func TestFormatLine(t *testing.T) {
	t.Parallel()
	got := formatLine([]byte(`{"level":"warn","message":"send failed","b":"2","a":1,"time":"x"}`))
	want := "[WARN] send failed\n- a=1\n- b=2"
	if got != want {
		t.Fatalf("formatLine = %q, want %q", got, want)
	}
	raw := formatLine([]byte("  not json  "))
	if raw != "not json" {
		t.Fatalf("raw fallback = %q", raw)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("x", 50)
	if got := truncate(s, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 20); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
}

package observability

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFieldConstructors(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		key   string
		value interface{}
	}{
		{"string", String("file", "a.pdf"), "file", "a.pdf"},
		{"int", Int("page", 3), "page", 3},
		{"int64", Int64("offset", int64(42)), "offset", int64(42)},
		{"float64", Float64("margin", 1.5), "margin", 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.field.Key() != tt.key {
				t.Errorf("Key() = %q, want %q", tt.field.Key(), tt.key)
			}
			if tt.field.Value() != tt.value {
				t.Errorf("Value() = %v, want %v", tt.field.Value(), tt.value)
			}
		})
	}
}

func TestErrorField(t *testing.T) {
	err := errors.New("bad xref")
	f := Error("err", err)
	if f.Key() != "err" {
		t.Errorf("Key() = %q, want err", f.Key())
	}
	if f.Value() != err {
		t.Errorf("Value() = %v, want the original error", f.Value())
	}
}

func TestNopLoggerDoesNothing(t *testing.T) {
	var l Logger = NopLogger{}
	l.Debug("a")
	l.Info("b", String("k", "v"))
	l.Warn("c")
	l.Error("d")
	if _, ok := l.With(Int("n", 1)).(NopLogger); !ok {
		t.Errorf("With() should return a NopLogger")
	}
}

func newFixedClockLogger(buf *strings.Builder, min Level) *textLogger {
	return &textLogger{
		mu:    &sync.Mutex{},
		w:     buf,
		min:   min,
		clock: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestTextLoggerFormatsLine(t *testing.T) {
	var buf strings.Builder
	l := newFixedClockLogger(&buf, LevelDebug)
	l.Info("processed", String("file", "a.pdf"), Int("matches", 2))
	got := buf.String()
	want := "2024-05-01T12:00:00.000 INFO processed file=a.pdf matches=2\n"
	if got != want {
		t.Errorf("log line = %q, want %q", got, want)
	}
}

func TestTextLoggerLevelFilter(t *testing.T) {
	var buf strings.Builder
	l := newFixedClockLogger(&buf, LevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("low-severity lines leaked: %q", out)
	}
	if !strings.Contains(out, "WARN shown") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestTextLoggerWithBindsFields(t *testing.T) {
	var buf strings.Builder
	l := newFixedClockLogger(&buf, LevelDebug)
	bound := l.With(String("file", "b.pdf"))
	bound.Warn("geometry lookup failed", Int("page", 1))
	out := buf.String()
	if !strings.Contains(out, "file=b.pdf page=1") {
		t.Errorf("bound field should precede call-site fields: %q", out)
	}
}

func TestTextLoggerQuotesValues(t *testing.T) {
	var buf strings.Builder
	l := newFixedClockLogger(&buf, LevelDebug)
	l.Error("failed", String("path", "my file.pdf"), Error("err", errors.New("disk full")))
	out := buf.String()
	if !strings.Contains(out, `path="my file.pdf"`) {
		t.Errorf("value with spaces should be quoted: %q", out)
	}
	if !strings.Contains(out, `err="disk full"`) {
		t.Errorf("error value should be quoted: %q", out)
	}
}

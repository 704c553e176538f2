package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	return rec
}

func TestSessionIDIsAttached(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := ContextWithSessionID(context.Background(), "s-1")
	log.With(String("component", "surface")).Info(ctx, "hello", Err(errors.New("boom")))

	rec := decodeLine(t, &buf)
	if rec["session_id"] != "s-1" {
		t.Fatalf("session_id = %v, want s-1", rec["session_id"])
	}
	if rec["component"] != "surface" {
		t.Fatalf("component = %v, want surface", rec["component"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("error = %v, want boom", rec["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})
	log.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	log.Warn(context.Background(), "kept")
	if rec := decodeLine(t, &buf); rec["msg"] != "kept" {
		t.Fatalf("msg = %v, want kept", rec["msg"])
	}
}

func TestRequestLoggerReusesID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-7")
	ctx, _ = WithRequestLogger(ctx, nil)
	if got := RequestIDFromContext(ctx); got != "req-7" {
		t.Fatalf("RequestIDFromContext = %q, want req-7", got)
	}

	ctx, id := EnsureRequestID(context.Background())
	if id == "" || RequestIDFromContext(ctx) != id {
		t.Fatalf("EnsureRequestID did not store a generated id")
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on a bare context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("ContextWithLogger(nil) should store a no-op logger")
	}
}

func TestEachLevelMethodLogsAtItsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})
	ctx := context.Background()

	emit := map[string]func(){
		"DEBUG": func() { log.Debug(ctx, "m", Int("n", 1)) },
		"INFO":  func() { log.Info(ctx, "m", Int("n", 1)) },
		"WARN":  func() { log.Warn(ctx, "m", Int("n", 1)) },
		"ERROR": func() { log.Error(ctx, "m", Int("n", 1)) },
	}
	for level, fn := range emit {
		buf.Reset()
		fn()
		rec := decodeLine(t, &buf)
		if rec["level"] != level || rec["n"] != float64(1) {
			t.Fatalf("record = %v, want level %s with n=1", rec, level)
		}
	}
}

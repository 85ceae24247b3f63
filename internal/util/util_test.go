package util

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

type fatalErr struct{ msg string }

func (e *fatalErr) Error() string   { return e.msg }
func (e *fatalErr) Permanent() bool { return true }

func TestRetryStopsOnPermanent(t *testing.T) {
	attempts := 0

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return fmt.Errorf("fetching: %w", &fatalErr{msg: "unsupported symbol"})
	})

	if err == nil {
		t.Fatal("Retry should surface the permanent error")
	}
	var fe *fatalErr
	if !errors.As(err, &fe) {
		t.Fatalf("Retry returned %v, want wrapped *fatalErr", err)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1 (no retry on permanent)", attempts)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Hour, func() error {
		return errors.New("always fails")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry returned %v, want context.Canceled", err)
	}
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "info", "text")

	log.Debug("hidden")
	log.Info("visible", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line logged at info level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "key=value") {
		t.Errorf("text output = %q, want visible key=value", out)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")

	log.Info("hidden")
	log.Warn("visible", "count", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not one JSON line: %v (%q)", err, buf.String())
	}
	if line["msg"] != "visible" {
		t.Errorf("msg = %v, want visible", line["msg"])
	}
	if line["count"] != float64(3) {
		t.Errorf("count = %v, want 3", line["count"])
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
}

func TestRateLimiterFirstWaitImmediate(t *testing.T) {
	rl := NewRateLimiter(6)

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("first Wait took %v, want immediate", elapsed)
	}
}

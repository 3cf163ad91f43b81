package logtail

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func waitUntil(timeout, step time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(step)
	}
	return fn()
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server1.log")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastN(t *testing.T) {
	path := writeLog(t, "a\nb\nc\nd\n")
	lines, err := Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 2 || lines[0] != "c" || lines[1] != "d" {
		t.Fatalf("last 2 lines: %v", lines)
	}
}

func TestTailShortFile(t *testing.T) {
	path := writeLog(t, "only\n")
	lines, err := Tail(path, 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 1 || lines[0] != "only" {
		t.Fatalf("short file: %v", lines)
	}
}

func TestTailEmptyFile(t *testing.T) {
	path := writeLog(t, "")
	lines, err := Tail(path, 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("empty file should yield no lines: %v", lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	if _, err := Tail(filepath.Join(t.TempDir(), "nope.log"), 10); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFollowRelaysAppends(t *testing.T) {
	path := writeLog(t, "old1\nold2\n")
	var out syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Follow(ctx, path, 1, &out) }()

	// initial tail arrives before the watch loop takes over
	if !waitUntil(2*time.Second, 10*time.Millisecond, func() bool {
		return strings.Contains(out.String(), "old2")
	}) {
		t.Fatalf("initial tail missing: %q", out.String())
	}
	if strings.Contains(out.String(), "old1") {
		t.Fatalf("tail window too large: %q", out.String())
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("fresh line\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	if !waitUntil(3*time.Second, 20*time.Millisecond, func() bool {
		return strings.Contains(out.String(), "fresh line")
	}) {
		t.Fatalf("appended line not relayed: %q", out.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Follow did not return after cancel")
	}
}

func TestFollowMissingFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	if err := Follow(ctx, filepath.Join(t.TempDir(), "nope.log"), 5, &out); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

package probe

import (
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
	"time"
)

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

func TestTCPIsListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	p := TCP{}
	live := waitUntil(2*time.Second, 50*time.Millisecond, func() bool {
		ok, err := p.IsListening(port)
		return err == nil && ok
	})
	if !live {
		t.Fatalf("port %d not observed listening", port)
	}

	_ = ln.Close()
	gone := waitUntil(2*time.Second, 50*time.Millisecond, func() bool {
		ok, err := p.IsListening(port)
		return err == nil && !ok
	})
	if !gone {
		t.Fatalf("port %d still observed after close", port)
	}
}

func TestTCPOwnerPID(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	p := TCP{}
	pid, ok, err := p.OwnerPID(port)
	if err != nil {
		t.Fatalf("OwnerPID: %v", err)
	}
	if !ok {
		t.Skip("socket owner not visible to this process")
	}
	if int(pid) != os.Getpid() {
		t.Fatalf("owner pid = %d, want %d", pid, os.Getpid())
	}
}

func TestErrorWrapping(t *testing.T) {
	inner := errors.New("permission denied")
	err := fmt.Errorf("slot 1 liveness check: %w", &Error{Err: inner})
	if !IsProbeError(err) {
		t.Fatalf("wrapped probe error not detected")
	}
	if !errors.Is(err, inner) {
		t.Fatalf("inner cause not reachable through Unwrap")
	}
	if IsProbeError(fmt.Errorf("plain failure")) {
		t.Fatalf("plain error misclassified as probe error")
	}
}

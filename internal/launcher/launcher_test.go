package launcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/chatfleet/internal/env"
	"github.com/loykin/chatfleet/internal/fleet"
	"github.com/loykin/chatfleet/internal/logger"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
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

func testLauncher(t *testing.T, serverCmd string) (*Launcher, fleet.Config) {
	t.Helper()
	cfg := fleet.Default()
	cfg.Paths.BaseDir = t.TempDir()
	cfg.Paths.ServerDir = "."
	cfg.Commands.Server = serverCmd
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return New(cfg, env.New(), logger.SinkConfig{}, log), cfg
}

func TestBuildCommandDirect(t *testing.T) {
	cmd := buildCommand("cargo run")
	if cmd == nil {
		t.Fatalf("nil command")
	}
	if len(cmd.Args) != 2 || cmd.Args[1] != "run" {
		t.Fatalf("args: %v", cmd.Args)
	}
}

func TestBuildCommandShell(t *testing.T) {
	requireUnix(t)
	cmd := buildCommand("echo hi > /dev/null")
	if cmd == nil {
		t.Fatalf("nil command")
	}
	if len(cmd.Args) != 3 || cmd.Args[1] != "-c" {
		t.Fatalf("expected shell invocation, got %v", cmd.Args)
	}
}

func TestBuildCommandEmpty(t *testing.T) {
	if buildCommand("") != nil || buildCommand("   ") != nil {
		t.Fatalf("empty command should yield nil")
	}
}

func TestSlotEnvContract(t *testing.T) {
	l, cfg := testLauncher(t, "true")
	s, _ := cfg.Slot(2)
	kvs := l.slotEnv(s)
	want := map[string]string{
		EnvConfigFile:     cfg.ConfigPath(s),
		EnvPrivateKeyFile: cfg.KeyFile(2),
		EnvHost:           cfg.Host,
		EnvPort:           "3002",
	}
	for k, v := range want {
		found := false
		for _, kv := range kvs {
			if kv == k+"="+v {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("env missing %s=%s in %v", k, v, kvs)
		}
	}
}

func TestLaunchBackgroundWritesSink(t *testing.T) {
	requireUnix(t)
	l, cfg := testLauncher(t, "sh -c 'echo out-line; echo err-line 1>&2'")
	s, _ := cfg.Slot(1)
	res, err := l.LaunchBackground(s)
	if err != nil {
		t.Fatalf("LaunchBackground: %v", err)
	}
	if res.PID <= 0 {
		t.Fatalf("no pid in result: %+v", res)
	}
	logPath := cfg.LogFile(1)
	ok := waitUntil(3*time.Second, 20*time.Millisecond, func() bool {
		b, err := os.ReadFile(logPath)
		return err == nil &&
			strings.Contains(string(b), "out-line") &&
			strings.Contains(string(b), "err-line")
	})
	if !ok {
		t.Fatalf("combined output not in sink %s", logPath)
	}
}

func TestLaunchForegroundRelaysAndExits(t *testing.T) {
	requireUnix(t)
	l, cfg := testLauncher(t, "sh -c 'echo fg-hello'")
	s, _ := cfg.Slot(1)
	var echo bytes.Buffer
	res, err := l.LaunchForeground(context.Background(), s, &echo)
	if err != nil {
		t.Fatalf("LaunchForeground: %v", err)
	}
	if res.ExitErr != nil {
		t.Fatalf("unexpected exit error: %v", res.ExitErr)
	}
	if !strings.Contains(echo.String(), "fg-hello") {
		t.Fatalf("echo missing output: %q", echo.String())
	}
	b, err := os.ReadFile(cfg.LogFile(1))
	if err != nil || !strings.Contains(string(b), "fg-hello") {
		t.Fatalf("sink missing output: %v %q", err, b)
	}
}

func TestLaunchForegroundReportsExitStatus(t *testing.T) {
	requireUnix(t)
	l, cfg := testLauncher(t, "sh -c 'exit 3'")
	s, _ := cfg.Slot(1)
	res, err := l.LaunchForeground(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("LaunchForeground: %v", err)
	}
	if res.ExitErr == nil {
		t.Fatalf("expected non-nil exit error for status 3")
	}
}

func TestLaunchForegroundCancelTerminates(t *testing.T) {
	requireUnix(t)
	l, cfg := testLauncher(t, "sleep 30")
	s, _ := cfg.Slot(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	var res Result
	var ferr error
	go func() {
		res, ferr = l.LaunchForeground(ctx, s, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("LaunchForeground did not return after cancel")
	}
	if !errors.Is(ferr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", ferr)
	}
	gone := waitUntil(2*time.Second, 25*time.Millisecond, func() bool {
		alive, err := gopsproc.PidExists(int32(res.PID))
		return err != nil || !alive
	})
	if !gone {
		t.Fatalf("process %d still alive after cancel", res.PID)
	}
}

func TestInvocationPattern(t *testing.T) {
	l, _ := testLauncher(t, "cargo run")
	got := l.InvocationPattern()
	if len(got) != 2 || got[0] != "cargo" || got[1] != "run" {
		t.Fatalf("pattern: %v", got)
	}
}

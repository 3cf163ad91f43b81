// Package launcher spawns server processes for fleet slots and owns their
// output plumbing. It never decides whether a start "worked" — liveness is
// the supervisor's judgment.
package launcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/loykin/chatfleet/internal/env"
	"github.com/loykin/chatfleet/internal/fleet"
	"github.com/loykin/chatfleet/internal/logger"
	"github.com/loykin/chatfleet/internal/pidstore"
)

// Environment variables every launched server receives. The server binary is
// responsible for interpreting them.
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvPrivateKeyFile = "PRIVATE_KEY_FILE"
	EnvHost           = "HOST"
	EnvPort           = "PORT"
)

// Result reports what a launch produced. For background launches only PID and
// StartUnix are set; foreground launches additionally carry the exit status.
type Result struct {
	PID       int
	StartUnix int64
	ExitErr   error
}

type Launcher struct {
	cfg  fleet.Config
	env  *env.Env
	sink logger.SinkConfig
	log  *slog.Logger
}

func New(cfg fleet.Config, e *env.Env, sink logger.SinkConfig, log *slog.Logger) *Launcher {
	if e == nil {
		e = env.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Launcher{cfg: cfg, env: e, sink: sink, log: log}
}

// slotEnv builds the four-variable contract for a slot on top of the merged
// base environment.
func (l *Launcher) slotEnv(s fleet.Slot) []string {
	return l.env.Merge(env.Vars{
		EnvConfigFile:     l.cfg.ConfigPath(s),
		EnvPrivateKeyFile: l.cfg.KeyFile(s.Number),
		EnvHost:           l.cfg.Host,
		EnvPort:           strconv.Itoa(s.Port),
	})
}

func (l *Launcher) configure(s fleet.Slot) (*exec.Cmd, error) {
	cmd := buildCommand(l.cfg.Commands.Server)
	if cmd == nil {
		return nil, fmt.Errorf("slot %d: empty server command", s.Number)
	}
	cmd.Dir = l.cfg.ServerDir()
	cmd.Env = l.slotEnv(s)
	configureSysProcAttr(cmd)
	return cmd, nil
}

// LaunchBackground spawns the slot's server detached from the caller, with
// combined stdout/stderr going to the slot's log sink. It returns as soon as
// the OS has created the process; confirming liveness is the caller's job.
func (l *Launcher) LaunchBackground(s fleet.Slot) (Result, error) {
	cmd, err := l.configure(s)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(l.cfg.LogsDir(), 0o750); err != nil {
		return Result{}, fmt.Errorf("create logs dir: %w", err)
	}
	sink := l.sink.Sink(l.cfg.LogFile(s.Number))
	cmd.Stdout = sink
	cmd.Stderr = sink
	if err := cmd.Start(); err != nil {
		_ = sink.Close()
		return Result{}, fmt.Errorf("spawn slot %d (%s): %w", s.Number, s.Name, err)
	}
	pid := cmd.Process.Pid
	l.log.Debug("spawned server", "slot", s.Number, "pid", pid)
	// Reap the child if it exits while we are still around; otherwise init
	// adopts it after the CLI exits.
	go func() {
		_ = cmd.Wait()
		_ = sink.Close()
	}()
	return Result{PID: pid, StartUnix: pidstore.StartTime(pid)}, nil
}

// LaunchForeground spawns the slot's server and relays its combined output
// line-by-line to both the log sink and echo until the process exits or ctx
// is canceled. Cancellation terminates the process group before returning.
func (l *Launcher) LaunchForeground(ctx context.Context, s fleet.Slot, echo io.Writer) (Result, error) {
	cmd, err := l.configure(s)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(l.cfg.LogsDir(), 0o750); err != nil {
		return Result{}, fmt.Errorf("create logs dir: %w", err)
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return Result{}, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return Result{}, fmt.Errorf("spawn slot %d (%s): %w", s.Number, s.Name, err)
	}
	// Parent keeps only the read side; the child holds the write side open
	// until it exits, which ends the relay loop below.
	_ = pw.Close()

	pid := cmd.Process.Pid
	res := Result{PID: pid, StartUnix: pidstore.StartTime(pid)}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			terminateGroup(pid)
		case <-stop:
		}
	}()

	sink := l.sink.Sink(l.cfg.LogFile(s.Number))
	sc := bufio.NewScanner(pr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text() + "\n"
		_, _ = io.WriteString(sink, line)
		if echo != nil {
			_, _ = io.WriteString(echo, line)
		}
	}
	_ = pr.Close()
	res.ExitErr = cmd.Wait()
	close(stop)
	_ = sink.Close()
	if ctx.Err() != nil {
		l.log.Info("server stopped", "slot", s.Number, "pid", pid)
		return res, ctx.Err()
	}
	return res, nil
}

// InvocationPattern returns the tokens of the server command, used by the
// orphan sweep to recognize stray server processes by their command line.
func (l *Launcher) InvocationPattern() []string {
	return strings.Fields(l.cfg.Commands.Server)
}

// buildCommand constructs an *exec.Cmd for cmdStr, using a shell only when
// metacharacters require one.
func buildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return nil
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return shellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

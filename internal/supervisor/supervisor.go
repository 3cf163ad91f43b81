// Package supervisor is the orchestration core: it reconciles recorded
// process identities against observed listening sockets and sequences
// idempotent starts, graceful-then-forced stops, and ordered fleet bring-up.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/chatfleet/internal/env"
	"github.com/loykin/chatfleet/internal/fleet"
	"github.com/loykin/chatfleet/internal/journal"
	"github.com/loykin/chatfleet/internal/launcher"
	"github.com/loykin/chatfleet/internal/logger"
	"github.com/loykin/chatfleet/internal/pidstore"
	"github.com/loykin/chatfleet/internal/probe"
)

// State is the lifecycle state of a slot as observed by the supervisor.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Options bound the supervisor's waits. Zero values take the defaults below.
type Options struct {
	// StartWindow bounds how long a background start polls for liveness
	// before the attempt is reported failed.
	StartWindow time.Duration
	// PollInterval is the prober polling cadence within StartWindow.
	PollInterval time.Duration
	// StopGrace is how long a graceful stop waits before force-killing.
	StopGrace time.Duration
	// SettleDelay separates the reset in StartAll from the first start.
	SettleDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.StartWindow <= 0 {
		o.StartWindow = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 5 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = time.Second
	}
	return o
}

// SlotStatus pairs independently derived liveness with the validated identity
// record for one slot. Running comes from the prober only; PID comes from the
// record only.
type SlotStatus struct {
	Slot       int
	Name       string
	Port       int
	ConfigFile string
	Running    bool
	PID        int
	State      State
}

// StartOutcome reports a Start call. AlreadyRunning means the port was live
// before we acted (a no-op success, not an error). ExitErr is set only for
// foreground launches and carries the process's final exit status.
type StartOutcome struct {
	Slot           int
	PID            int
	AlreadyRunning bool
	ExitErr        error
}

// StopOutcome reports a Stop call. WasRunning is false when no live process
// was found by any strategy ("was not running" is a success, not a failure).
type StopOutcome struct {
	Slot       int
	PID        int
	WasRunning bool
	Method     string
}

// Supervisor combines the identity store, liveness prober, and launcher.
// Operations are synchronous: each runs to completion before returning and no
// background workers are spawned.
type Supervisor struct {
	cfg    fleet.Config
	opts   Options
	prober probe.Prober
	store  *pidstore.Store
	launch *launcher.Launcher
	jour   *journal.Journal
	log    *slog.Logger
}

func New(cfg fleet.Config, opts Options, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	o := opts.withDefaults()
	e := env.New()
	return &Supervisor{
		cfg:    cfg,
		opts:   o,
		prober: probe.TCP{},
		store:  pidstore.New(cfg.LogsDir()),
		launch: launcher.New(cfg, e, logger.SinkConfig{}, log),
		log:    log,
	}
}

// SetJournal attaches an optional lifecycle journal. Journal writes are
// best-effort and never fail an operation.
func (s *Supervisor) SetJournal(j *journal.Journal) { s.jour = j }

// Store exposes the identity store (used by the presentation layer).
func (s *Supervisor) Store() *pidstore.Store { return s.store }

func (s *Supervisor) slot(n int) (fleet.Slot, error) {
	sl, ok := s.cfg.Slot(n)
	if !ok {
		return fleet.Slot{}, fmt.Errorf("slot %d: %w", n, ErrUnknownSlot)
	}
	return sl, nil
}

// Start brings a slot to Running. If the slot's port is already observed
// live, Start succeeds immediately without spawning a second process; this is
// the safety invariant preventing duplicate port bindings.
//
// Background starts return once liveness is confirmed (or the wait window
// expires). Foreground starts relay server output to echo until the process
// exits or ctx is canceled.
func (s *Supervisor) Start(ctx context.Context, slotNum int, background bool, echo io.Writer) (StartOutcome, error) {
	sl, err := s.slot(slotNum)
	if err != nil {
		return StartOutcome{}, err
	}
	live, err := s.prober.IsListening(sl.Port)
	if err != nil {
		return StartOutcome{}, fmt.Errorf("slot %d liveness check: %w", slotNum, err)
	}
	if live {
		s.log.Warn("already running", "slot", slotNum, "port", sl.Port)
		return StartOutcome{Slot: slotNum, AlreadyRunning: true}, nil
	}

	s.log.Info("starting server", "slot", slotNum, "name", sl.Name, "port", sl.Port)
	if !background {
		res, err := s.launch.LaunchForeground(ctx, sl, echo)
		if err != nil && !errors.Is(err, context.Canceled) {
			return StartOutcome{Slot: slotNum}, err
		}
		return StartOutcome{Slot: slotNum, PID: res.PID, ExitErr: res.ExitErr}, nil
	}

	res, err := s.launch.LaunchBackground(sl)
	if err != nil {
		return StartOutcome{Slot: slotNum}, err
	}
	if err := s.awaitListening(ctx, sl.Port); err != nil {
		// The attempt failed; the slot is back to Stopped and no identity
		// record is written. The spawned process, if it lingers without
		// binding, is covered by the StopAll orphan sweep.
		return StartOutcome{Slot: slotNum}, fmt.Errorf("slot %d: %w", slotNum, err)
	}
	if err := s.store.Set(slotNum, pidstore.Record{PID: res.PID, StartUnix: res.StartUnix}); err != nil {
		return StartOutcome{Slot: slotNum, PID: res.PID}, err
	}
	s.record(ctx, journal.Event{Slot: slotNum, Type: journal.EventStart, PID: res.PID})
	s.log.Info("server started", "slot", slotNum, "pid", res.PID)
	return StartOutcome{Slot: slotNum, PID: res.PID}, nil
}

// awaitListening polls the prober until the port is observed live, the wait
// window expires, or ctx is canceled. A prober failure is fatal, never
// treated as "not listening".
func (s *Supervisor) awaitListening(ctx context.Context, port int) error {
	deadline := time.Now().Add(s.opts.StartWindow)
	for {
		live, err := s.prober.IsListening(port)
		if err != nil {
			return err
		}
		if live {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w within %s (port %d)", ErrStartTimeout, s.opts.StartWindow, port)
		}
		if err := sleepCtx(ctx, s.opts.PollInterval); err != nil {
			return err
		}
	}
}

// Stop brings a slot to Stopped via an ordered fallback chain: the recorded
// pid first, then whatever process currently owns the listening port. Either
// way the identity record is cleared. Finding nothing to stop is a success.
func (s *Supervisor) Stop(ctx context.Context, slotNum int) (StopOutcome, error) {
	sl, err := s.slot(slotNum)
	if err != nil {
		return StopOutcome{}, err
	}
	chain := []terminator{
		recordTerminator{store: s.store, slot: slotNum},
		portTerminator{prober: s.prober, port: sl.Port},
	}
	out := StopOutcome{Slot: slotNum}
	for _, t := range chain {
		pid, found, terr := t.terminate(s.opts.StopGrace)
		if terr != nil {
			if found {
				return out, fmt.Errorf("slot %d stop via %s: %w", slotNum, t.describe(), terr)
			}
			return out, fmt.Errorf("slot %d stop: %w", slotNum, terr)
		}
		if found {
			out.WasRunning = true
			out.PID = pid
			out.Method = t.describe()
			break
		}
	}
	if err := s.store.Clear(slotNum); err != nil {
		return out, err
	}
	if out.WasRunning {
		s.record(ctx, journal.Event{Slot: slotNum, Type: journal.EventStop, PID: out.PID, Detail: out.Method})
		s.log.Info("server stopped", "slot", slotNum, "pid", out.PID, "via", out.Method)
	} else {
		s.log.Warn("server was not running", "slot", slotNum)
	}
	return out, nil
}

// StartAll resets the fleet (unconditional stop of every slot), waits a short
// settle time, then starts slots in ascending order with delay between
// successive confirmed starts. The first failure aborts the sequence; slots
// already started are left running. Returns the count of started slots.
func (s *Supervisor) StartAll(ctx context.Context, delay time.Duration) (int, error) {
	if _, err := s.StopAll(ctx); err != nil {
		s.log.Warn("reset before start-all was incomplete", "error", err)
	}
	if err := sleepCtx(ctx, s.opts.SettleDelay); err != nil {
		return 0, err
	}
	nums := s.cfg.SlotNumbers()
	started := 0
	for i, n := range nums {
		if _, err := s.Start(ctx, n, true, nil); err != nil {
			return started, fmt.Errorf("start-all aborted: %w", err)
		}
		started++
		if i < len(nums)-1 && delay > 0 {
			s.log.Info("waiting before next start", "delay", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return started, err
			}
		}
	}
	return started, nil
}

// StopAll stops every slot independently (no ordering dependency), then
// sweeps for orphaned server processes that match the launcher's invocation
// pattern but are not accounted for by any identity record. Returns the count
// of slots confirmed stopped or already down.
func (s *Supervisor) StopAll(ctx context.Context) (int, error) {
	var errs []error
	stopped := 0
	for _, n := range s.cfg.SlotNumbers() {
		if _, err := s.Stop(ctx, n); err != nil {
			errs = append(errs, err)
			continue
		}
		stopped++
	}
	s.sweepOrphans()
	return stopped, errors.Join(errs...)
}

// Status independently re-derives liveness for every slot and pairs it with
// the validated identity record. Neither is inferred from the other.
func (s *Supervisor) Status(ctx context.Context) ([]SlotStatus, error) {
	_ = ctx
	out := make([]SlotStatus, 0, len(s.cfg.Slots))
	for _, n := range s.cfg.SlotNumbers() {
		sl, _ := s.cfg.Slot(n)
		live, err := s.prober.IsListening(sl.Port)
		if err != nil {
			return nil, fmt.Errorf("slot %d liveness check: %w", n, err)
		}
		st := SlotStatus{
			Slot:       n,
			Name:       sl.Name,
			Port:       sl.Port,
			ConfigFile: sl.ConfigFile,
			Running:    live,
			State:      StateStopped,
		}
		if live {
			st.State = StateRunning
		}
		if rec, ok, err := s.store.Get(n); err == nil && ok {
			st.PID = rec.PID
		}
		out = append(out, st)
	}
	return out, nil
}

// sweepOrphans terminates stray server processes whose command line matches
// the launcher invocation but that no identity record accounts for. Records
// are already cleared by the preceding stops, so any match is an orphan.
func (s *Supervisor) sweepOrphans() {
	pattern := s.launch.InvocationPattern()
	if len(pattern) == 0 {
		return
	}
	procs, err := gopsproc.Processes()
	if err != nil {
		s.log.Warn("orphan sweep skipped", "error", err)
		return
	}
	self := os.Getpid()
	for _, p := range procs {
		if int(p.Pid) == self {
			continue
		}
		argv, err := p.CmdlineSlice()
		if err != nil || !matchesInvocation(argv, pattern) {
			continue
		}
		s.log.Warn("terminating orphaned server process", "pid", p.Pid)
		_ = p.Terminate()
	}
}

// matchesInvocation reports whether argv looks like the server invocation:
// the executable matches the pattern's first token and every remaining
// pattern token appears in argv.
func matchesInvocation(argv, pattern []string) bool {
	if len(argv) == 0 || len(pattern) == 0 {
		return false
	}
	exe := filepath.Base(argv[0])
	if exe != pattern[0] && !strings.Contains(exe, pattern[0]) {
		return false
	}
	for _, tok := range pattern[1:] {
		found := false
		for _, a := range argv[1:] {
			if a == tok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Supervisor) record(ctx context.Context, ev journal.Event) {
	if s.jour == nil {
		return
	}
	if err := s.jour.Record(ctx, ev); err != nil {
		s.log.Debug("journal write failed", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

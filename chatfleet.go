// Package chatfleet supervises a small fixed fleet of chat server processes
// during development and testing: idempotent starts, graceful-then-forced
// stops, ordered bring-up, and status derived from the OS socket table.
package chatfleet

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/chatfleet/internal/fleet"
	"github.com/loykin/chatfleet/internal/journal"
	"github.com/loykin/chatfleet/internal/logtail"
	"github.com/loykin/chatfleet/internal/supervisor"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = fleet.Config

type Slot = fleet.Slot

type Options = supervisor.Options

type SlotStatus = supervisor.SlotStatus

type StartOutcome = supervisor.StartOutcome

type StopOutcome = supervisor.StopOutcome

type Event = journal.Event

var (
	ErrUnknownSlot  = supervisor.ErrUnknownSlot
	ErrStartTimeout = supervisor.ErrStartTimeout
)

// DefaultConfig returns the compiled-in fleet configuration.
func DefaultConfig() Config { return fleet.Default() }

// LoadConfig reads a TOML overlay over the defaults.
func LoadConfig(path string) (Config, error) { return fleet.Load(path) }

// Supervisor is a thin facade over internal/supervisor.Supervisor, providing
// a stable public API for embedding.
type Supervisor struct {
	inner *supervisor.Supervisor
	cfg   Config
	jour  *journal.Journal
}

func New(cfg Config, opts Options, log *slog.Logger) *Supervisor {
	return &Supervisor{inner: supervisor.New(cfg, opts, log), cfg: cfg}
}

// AttachJournal opens the lifecycle journal at path and wires it into the
// supervisor. Journal writes are best-effort.
func (s *Supervisor) AttachJournal(path string) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	s.jour = j
	s.inner.SetJournal(j)
	return nil
}

// Close releases the journal, if attached.
func (s *Supervisor) Close() error {
	if s.jour == nil {
		return nil
	}
	return s.jour.Close()
}

func (s *Supervisor) Start(ctx context.Context, slot int, background bool, echo io.Writer) (StartOutcome, error) {
	return s.inner.Start(ctx, slot, background, echo)
}

func (s *Supervisor) Stop(ctx context.Context, slot int) (StopOutcome, error) {
	return s.inner.Stop(ctx, slot)
}

func (s *Supervisor) StartAll(ctx context.Context, delay time.Duration) (int, error) {
	return s.inner.StartAll(ctx, delay)
}

func (s *Supervisor) StopAll(ctx context.Context) (int, error) {
	return s.inner.StopAll(ctx)
}

func (s *Supervisor) Status(ctx context.Context) ([]SlotStatus, error) {
	return s.inner.Status(ctx)
}

// History returns recent lifecycle events, newest first. slot <= 0 means all
// slots. Requires an attached journal.
func (s *Supervisor) History(ctx context.Context, slot, limit int) ([]Event, error) {
	if s.jour == nil {
		return nil, nil
	}
	return s.jour.Recent(ctx, slot, limit)
}

// TailLog returns the last n lines of a slot's log sink.
func (s *Supervisor) TailLog(slot, n int) ([]string, error) {
	return logtail.Tail(s.cfg.LogFile(slot), n)
}

// FollowLog streams a slot's log sink to w until ctx is canceled.
func (s *Supervisor) FollowLog(ctx context.Context, slot, n int, w io.Writer) error {
	return logtail.Follow(ctx, s.cfg.LogFile(slot), n, w)
}

package supervisor

import (
	"fmt"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/chatfleet/internal/pidstore"
	"github.com/loykin/chatfleet/internal/probe"
)

// terminator is one strategy for resolving and killing whatever process
// serves a slot. Strategies are tried in order until one confirms a
// termination; a strategy that finds no process reports found=false and the
// chain moves on.
type terminator interface {
	describe() string
	terminate(grace time.Duration) (pid int, found bool, err error)
}

// recordTerminator signals the process named by the slot's identity record.
// A missing or stale record is "not found", not an error.
type recordTerminator struct {
	store *pidstore.Store
	slot  int
}

func (t recordTerminator) describe() string { return "pid record" }

func (t recordTerminator) terminate(grace time.Duration) (int, bool, error) {
	rec, ok, err := t.store.Get(t.slot)
	if err != nil || !ok {
		return 0, false, err
	}
	dead, err := terminatePID(rec.PID, grace)
	if err != nil {
		return rec.PID, true, err
	}
	if !dead {
		return 0, false, nil
	}
	return rec.PID, true, nil
}

// portTerminator resolves the process currently owning the slot's listening
// port through the socket table and signals it directly. This is the fallback
// for slots whose identity record was lost out-of-band.
type portTerminator struct {
	prober probe.Prober
	port   int
}

func (t portTerminator) describe() string { return "port owner" }

func (t portTerminator) terminate(grace time.Duration) (int, bool, error) {
	pid, ok, err := t.prober.OwnerPID(t.port)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	dead, err := terminatePID(int(pid), grace)
	if err != nil {
		return int(pid), true, err
	}
	if !dead {
		return 0, false, nil
	}
	return int(pid), true, nil
}

// terminatePID sends a graceful stop, waits up to grace for the process to
// disappear, then force-kills. It returns dead=false when the pid was already
// gone before we signaled anything.
func terminatePID(pid int, grace time.Duration) (dead bool, err error) {
	p, perr := gopsproc.NewProcess(int32(pid))
	if perr != nil {
		// already gone
		return false, nil
	}
	_ = p.Terminate()
	if waitGone(pid, grace) {
		return true, nil
	}
	_ = p.Kill()
	if waitGone(pid, 500*time.Millisecond) {
		return true, nil
	}
	return true, fmt.Errorf("pid %d still alive after forced kill", pid)
}

func waitGone(pid int, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for {
		exists, err := gopsproc.PidExists(int32(pid))
		if err != nil || !exists {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(25 * time.Millisecond)
	}
}

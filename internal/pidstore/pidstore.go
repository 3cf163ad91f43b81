// Package pidstore persists the last-known process id for each server slot.
// Records are hints for "which process to signal", never authoritative for
// liveness; the port prober owns that judgment.
package pidstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Record is one persisted slot identity. StartUnix is the process start time
// in Unix seconds, recorded to reject reused pids; zero means unknown.
type Record struct {
	PID       int
	StartUnix int64
}

type recordMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// Store keeps one record file per slot under Dir, named server<N>.pid.
// The first line is the pid; an optional second line holds JSON meta.
// Legacy files containing only a pid remain readable.
type Store struct {
	dir string
}

func New(dir string) *Store { return &Store{dir: dir} }

// Path returns the record file path for a slot.
func (s *Store) Path(slot int) string {
	return filepath.Join(s.dir, fmt.Sprintf("server%d.pid", slot))
}

// Get returns the validated record for a slot. A missing file, unparsable
// content, a pid that no longer exists on the OS, or a start-time mismatch
// (pid reuse) all report "no record" without error. Only unexpected I/O
// failures surface as errors.
func (s *Store) Get(slot int) (Record, bool, error) {
	b, err := os.ReadFile(s.Path(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read pid record for slot %d: %w", slot, err)
	}
	rec, ok := parse(string(b))
	if !ok {
		return Record{}, false, nil
	}
	alive, err := gopsproc.PidExists(int32(rec.PID))
	if err != nil || !alive {
		return Record{}, false, nil
	}
	if rec.StartUnix > 0 {
		if cur := procStartUnix(rec.PID); cur > 0 && cur != rec.StartUnix {
			// pid reused by an unrelated process
			return Record{}, false, nil
		}
	}
	return rec, true, nil
}

// Set atomically overwrites the record for a slot.
func (s *Store) Set(slot int, rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("refusing to record non-positive pid %d for slot %d", rec.PID, slot)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(rec.PID))
	sb.WriteByte('\n')
	if rec.StartUnix > 0 {
		meta, err := json.Marshal(recordMeta{StartUnix: rec.StartUnix})
		if err == nil {
			sb.Write(meta)
			sb.WriteByte('\n')
		}
	}
	if err := renameio.WriteFile(s.Path(slot), []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("write pid record for slot %d: %w", slot, err)
	}
	return nil
}

// StartTime returns pid's start time in Unix seconds, or 0 when unknown.
// Recording it alongside the pid lets Get reject reused pids.
func StartTime(pid int) int64 { return procStartUnix(pid) }

// Clear removes the record for a slot. Removing an absent record is a no-op.
func (s *Store) Clear(slot int) error {
	if err := os.Remove(s.Path(slot)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear pid record for slot %d: %w", slot, err)
	}
	return nil
}

func parse(content string) (Record, bool) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return Record{}, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return Record{}, false
	}
	rec := Record{PID: pid}
	if len(lines) >= 2 {
		var m recordMeta
		if err := json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m); err == nil {
			rec.StartUnix = m.StartUnix
		}
	}
	return rec, true
}

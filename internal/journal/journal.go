// Package journal keeps a local history of supervisor lifecycle events so a
// developer can see what happened to each slot after the fact. Writes are
// best-effort; journal failures never fail a supervisor operation.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	EventStart = "start"
	EventStop  = "stop"
)

// Event is one recorded lifecycle transition for a slot.
type Event struct {
	ID         int64
	Slot       int
	Type       string
	PID        int
	Detail     string
	OccurredAt time.Time
}

// Journal stores events in a single-file SQLite database.
type Journal struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS slot_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slot INTEGER NOT NULL,
	event TEXT NOT NULL,
	pid INTEGER NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_slot_events_slot ON slot_events(slot, occurred_at);
`

// Open opens (creating if needed) the journal database at path.
// An empty path opens an in-memory journal.
func Open(path string) (*Journal, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record appends one event.
func (j *Journal) Record(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO slot_events(slot, event, pid, detail, occurred_at) VALUES(?,?,?,?,?)`,
		ev.Slot, ev.Type, ev.PID, ev.Detail, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("record journal event: %w", err)
	}
	return nil
}

// Recent returns up to limit events for a slot, newest first. slot <= 0
// returns events for all slots.
func (j *Journal) Recent(ctx context.Context, slot, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, slot, event, pid, detail, occurred_at FROM slot_events`
	args := []any{}
	if slot > 0 {
		query += ` WHERE slot = ?`
		args = append(args, slot)
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Slot, &ev.Type, &ev.PID, &ev.Detail, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

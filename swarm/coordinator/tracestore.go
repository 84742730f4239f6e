// ABOUTME: SQLite mirror of the engine's event stream, a queryable cache
// ABOUTME: for post-hoc debugging — never the source of truth for mission state.

package coordinator

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/nanoagent/swarmcore/swarm/engine"
)

// TraceStore mirrors engine.Event values into a SQLite database, grounded
// on the teacher's spec/store/SqliteIndex: WAL mode, a trivial schema, and
// an explicit note that this is a cache rebuildable from the live run, not
// an alternate source of truth.
type TraceStore struct {
	db *sql.DB
}

// OpenTraceStore opens or creates a trace database at path and ensures its
// schema.
func OpenTraceStore(path string) (*TraceStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS trace_events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			data TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &TraceStore{db: db}, nil
}

// Mirror drains events until the channel closes, writing each as one row.
// Meant to run in its own goroutine for the lifetime of an engine session.
func (t *TraceStore) Mirror(events <-chan engine.Event) {
	for ev := range events {
		t.record(ev)
	}
}

func (t *TraceStore) record(ev engine.Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	id := ulid.Make().String()
	_, _ = t.db.Exec(
		"INSERT INTO trace_events (id, kind, data, recorded_at) VALUES (?, ?, ?, datetime('now'))",
		id, string(ev.Kind), string(data),
	)
}

// Close closes the underlying database handle.
func (t *TraceStore) Close() error {
	return t.db.Close()
}

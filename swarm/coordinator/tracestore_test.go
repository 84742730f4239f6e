package coordinator

import (
	"path/filepath"
	"testing"

	"github.com/nanoagent/swarmcore/swarm/engine"
)

func TestTraceStoreMirrorsEventsToRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	store, err := OpenTraceStore(path)
	if err != nil {
		t.Fatalf("OpenTraceStore: %v", err)
	}
	defer store.Close()

	events := make(chan engine.Event, 2)
	events <- engine.Event{Kind: engine.EventMessage, Data: map[string]any{"text": "hello"}}
	events <- engine.Event{Kind: engine.EventFinish, Data: map[string]any{"output": "done"}}
	close(events)

	store.Mirror(events)

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM trace_events").Scan(&count); err != nil {
		t.Fatalf("querying row count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 mirrored rows, got %d", count)
	}

	var kind string
	if err := store.db.QueryRow("SELECT kind FROM trace_events ORDER BY rowid LIMIT 1").Scan(&kind); err != nil {
		t.Fatalf("querying first row kind: %v", err)
	}
	if kind != string(engine.EventMessage) {
		t.Fatalf("expected first row kind %q, got %q", engine.EventMessage, kind)
	}
}

func TestOpenTraceStoreReopenPreservesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	first, err := OpenTraceStore(path)
	if err != nil {
		t.Fatalf("OpenTraceStore (first): %v", err)
	}
	first.record(engine.Event{Kind: engine.EventError, Data: map[string]any{"err": "boom"}})
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := OpenTraceStore(path)
	if err != nil {
		t.Fatalf("OpenTraceStore (second): %v", err)
	}
	defer second.Close()

	var count int
	if err := second.db.QueryRow("SELECT COUNT(*) FROM trace_events").Scan(&count); err != nil {
		t.Fatalf("querying row count after reopen: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the row written before close to persist, got count %d", count)
	}
}

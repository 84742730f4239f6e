package tool

import (
	"context"
	"testing"

	"github.com/nanoagent/swarmcore/swarm/blackboard"
)

func TestBlackboardToolCreateAndReadIndex(t *testing.T) {
	store, err := blackboard.Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	bt := NewBlackboardTool(store)
	bt.Configure(Context{AgentName: "alice"})

	_, err = bt.Execute(context.Background(), map[string]any{
		"operation": "create_index",
		"filename":  "notes.md",
		"content":   "---\nname: notes\ndescription: d\nusage_policy: p\n---\nhi\n",
	})
	if err != nil {
		t.Fatalf("create_index: %v", err)
	}

	out, err := bt.Execute(context.Background(), map[string]any{
		"operation": "read_index",
		"filename":  "notes.md",
	})
	if err != nil {
		t.Fatalf("read_index: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty read_index result")
	}
}

func TestBlackboardToolUnknownOperation(t *testing.T) {
	store, err := blackboard.Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	bt := NewBlackboardTool(store)
	_, err = bt.Execute(context.Background(), map[string]any{"operation": "delete_everything"})
	if err == nil {
		t.Fatal("expected an unknown operation to be rejected")
	}
}

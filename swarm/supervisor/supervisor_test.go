package supervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nanoagent/swarmcore/swarm/registry"
)

func newTestRegistry(t *testing.T) *registry.Store {
	t.Helper()
	r, err := registry.Open(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	return r
}

func TestWaitForRunningReturnsTrueOnceAgentFlipsToRunning(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.RegisterStartingWithGoal("worker-1", "worker", "write the report", 1); err != nil {
		t.Fatalf("RegisterStartingWithGoal: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = reg.Register("worker-1", "worker", 1)
	}()

	if !waitForRunning(reg, "worker-1", 2*time.Second) {
		t.Fatal("expected waitForRunning to observe the RUNNING transition")
	}
}

func TestWaitForRunningTimesOutWhenAgentNeverStarts(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.RegisterStartingWithGoal("worker-1", "worker", "write the report", 1); err != nil {
		t.Fatalf("RegisterStartingWithGoal: %v", err)
	}

	if waitForRunning(reg, "worker-1", 100*time.Millisecond) {
		t.Fatal("expected waitForRunning to time out while status stays STARTING")
	}
}

func TestWaitForRunningReturnsFalseForUnknownAgent(t *testing.T) {
	reg := newTestRegistry(t)
	if waitForRunning(reg, "never-registered", 100*time.Millisecond) {
		t.Fatal("expected waitForRunning to time out for an agent that was never registered")
	}
}

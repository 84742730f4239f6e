// ABOUTME: Watches the spawning parent's PID and registry status, and
// ABOUTME: self-terminates a worker if its parent has died or finished.

package middleware

import (
	"context"
	"os"
	"syscall"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/registry"
)

// ParentProcessMonitor terminates the current process if turn.ParentPID no
// longer exists, or if turn.ParentAgentName's registry entry has gone DEAD —
// preventing orphaned workers from running after their parent exits.
func ParentProcessMonitor() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if turn.ParentPID > 0 {
			reason := ""
			if !pidRunning(turn.ParentPID) {
				reason = "Parent process died"
			} else if parentAgentDead(turn.Registry, turn.ParentAgentName) {
				reason = "Parent agent '" + turn.ParentAgentName + "' finished"
			}
			if reason != "" {
				terminateSelf(turn, reason)
			}
		}
		return next(ctx, req)
	}
}

func pidRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func parentAgentDead(reg *registry.Store, parentAgent string) bool {
	if reg == nil || parentAgent == "" {
		return false
	}
	entry := reg.Get(parentAgent)
	if entry == nil {
		return false
	}
	return entry.Status == registry.StatusDead
}

// terminateSelf deregisters the agent and sends itself SIGTERM, mirroring
// the source's graceful-shutdown-over-abrupt-exit choice so deferred
// cleanup (file locks, signal handlers) still runs.
func terminateSelf(turn *Turn, reason string) {
	if turn.Registry != nil && turn.AgentName != "" {
		_ = turn.Registry.Deregister(turn.AgentName, reason)
	}
	_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
}

// ABOUTME: Injects the live, PID-verified agent registry into the system
// ABOUTME: prompt before every call so the model always sees current swarm state.

package middleware

import (
	"context"
	"encoding/json"

	"github.com/nanoagent/swarmcore/llm"
)

const swarmStateHeader = "## REAL-TIME SWARM STATUS (REGISTRY)"

// SwarmState verifies every registered agent's PID and injects the
// resulting report into the system prompt, replacing any prior injection.
func SwarmState() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if turn.Registry != nil {
			report := turn.Registry.VerifyAndSyncPIDs()
			if data, err := json.MarshalIndent(report, "", "  "); err == nil {
				section := swarmStateHeader + "\nThis is the current state of all agents in the swarm, " +
					"synced from the registry. Verified by PID check.\n\n```json\n" + string(data) + "\n```"
				upsertSystemSection(req, swarmStateHeader, section)
			}
		}
		return next(ctx, req)
	}
}

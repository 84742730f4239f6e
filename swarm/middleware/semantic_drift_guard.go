// ABOUTME: Periodically re-anchors a long-running worker to its original
// ABOUTME: spawn goal, countering instruction drift over many turns.

package middleware

import (
	"context"
	"fmt"

	"github.com/nanoagent/swarmcore/llm"
)

const driftReanchorHeader = "## ORIGINAL MISSION GOAL (ANCHOR)"

// driftReanchorEvery mirrors the cadence of the Architect's persistence
// nudge (watchdog_guard.go): every 5 turns is frequent enough to catch
// drift without crowding every single prompt.
const driftReanchorEvery = 5

// SemanticDriftGuard re-injects turn.MissionGoal into the system prompt
// every driftReanchorEvery assistant turns, the same system-section upsert
// technique SwarmState/NotificationAwareness use, applied to a goal that
// doesn't otherwise reappear once the initial spawn prompt scrolls out of a
// trimmed context.
func SemanticDriftGuard() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if turn.MissionGoal != "" && turn.IterationCount > 0 && turn.IterationCount%driftReanchorEvery == 0 {
			section := fmt.Sprintf("%s\nYou were spawned for the following goal. If your recent actions have "+
				"drifted from it, recenter:\n\n%s", driftReanchorHeader, turn.MissionGoal)
			upsertSystemSection(req, driftReanchorHeader, section)
		}
		return next(ctx, req)
	}
}

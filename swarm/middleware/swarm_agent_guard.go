// ABOUTME: Forces forward progress: if a worker's turn produced no tool
// ABOUTME: calls at all, injects a synthetic 'wait' call instead of idling.

package middleware

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nanoagent/swarmcore/llm"
)

const noToolCallGuardReason = "### [SYSTEM GUARD]\nYou did not call any tools. If your task is complete, " +
	"you MUST call the `finish` tool. Otherwise, use appropriate tools to move forward. " +
	"If you are waiting for something, use the `wait` tool explicitly."

// SwarmAgentGuard ensures a worker never ends a turn without calling a
// tool, injecting a synthetic 'wait' call when the model's response was
// pure text (or empty) — generalized from a mid-stream chunk injection to
// a post-accumulation append since this engine hands middleware a fully
// accumulated Response.
func SwarmAgentGuard() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if turn.IsArchitect {
			return next(ctx, req)
		}
		resp, err := next(ctx, req)
		if err != nil || resp == nil {
			return resp, err
		}
		if len(toolCallsOf(resp)) == 0 {
			args, _ := json.Marshal(map[string]any{
				"duration":           0.5,
				"wait_for_new_index": true,
				"reason":             noToolCallGuardReason,
			})
			callID := "call_" + uuid.NewString()[:8]
			resp.Message.Content = append(resp.Message.Content, llm.ToolCallPart(callID, "wait", args))
		}
		return resp, nil
	}
}

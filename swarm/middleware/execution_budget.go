// ABOUTME: Tracks cumulative completion-call token usage for a session and
// ABOUTME: forces a finish once a configured budget is exhausted.

package middleware

import (
	"context"
	"encoding/json"

	"github.com/nanoagent/swarmcore/llm"
)

// ExecutionBudget accumulates turn.TotalTokensUsed from each response's
// Usage and, once turn.TokenBudget is exceeded, rewrites the first tool call
// the model makes into 'finish' (any further calls in the same response
// are left as they are) — the token-budget analogue of the teacher's
// MaxToolRoundsPerInput/MaxTurns round limits in agent/loop.go, which cap
// iteration count rather than spend.
func ExecutionBudget() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		resp, err := next(ctx, req)
		if err != nil || resp == nil {
			return resp, err
		}
		turn.TotalTokensUsed += resp.Usage.TotalTokens

		if turn.TokenBudget > 0 && turn.TotalTokensUsed > turn.TokenBudget {
			calls := toolCallsOf(resp)
			if len(calls) > 0 {
				args, _ := json.Marshal(map[string]any{
					"reason": "Token budget exhausted for this session; wrapping up.",
				})
				rewriteToolCall(resp, func(llm.ToolCallData) bool { return true }, "finish", string(args))
			}
		}
		return resp, nil
	}
}

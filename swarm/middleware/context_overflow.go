// ABOUTME: Trims an overgrown message history before it's sent to the model,
// ABOUTME: keeping the system prompt, the first exchange, and a recent tail.

package middleware

import (
	"context"

	"github.com/nanoagent/swarmcore/llm"
)

// contextCharBudget is a conservative proxy for a provider's token window,
// counted in characters rather than tokens since middleware has no
// tokenizer of its own.
const contextCharBudget = 400_000

// contextOverflowMinMessages mirrors minTurnsForReduction: below this size
// trimming would throw away useful context for no real savings.
const contextOverflowMinMessages = 20

// ContextOverflow drops older middle messages once the request's estimated
// size crosses contextCharBudget, the same head-keep/tail-keep split as the
// teacher's ApplyFidelity "truncate" mode, generalized from Session Turns to
// a flat llm.Message slice.
func ContextOverflow() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if len(req.Messages) >= contextOverflowMinMessages && estimateSize(req.Messages) > contextCharBudget {
			req.Messages = truncateMiddle(req.Messages)
		}
		return next(ctx, req)
	}
}

func estimateSize(msgs []llm.Message) int {
	total := 0
	for i := range msgs {
		total += len(msgs[i].TextContent())
		for _, tc := range msgs[i].ToolCalls() {
			total += len(tc.Arguments)
		}
	}
	return total
}

// truncateMiddle keeps the leading system message(s) plus the first
// exchange, drops the middle, and keeps the most recent two-thirds of all
// messages (at least 6) — same proportions as agent.applyTruncate.
func truncateMiddle(msgs []llm.Message) []llm.Message {
	headEnd := 0
	for headEnd < len(msgs) && msgs[headEnd].Role == llm.RoleSystem {
		headEnd++
	}
	if headEnd < len(msgs) {
		headEnd++ // first user message
	}
	if headEnd < len(msgs) {
		headEnd++ // first assistant reply
	}

	keepRecent := len(msgs) * 2 / 3
	if keepRecent < 6 {
		keepRecent = 6
	}
	tailStart := len(msgs) - keepRecent
	if tailStart <= headEnd {
		return msgs
	}

	out := make([]llm.Message, 0, headEnd+1+len(msgs)-tailStart)
	out = append(out, msgs[:headEnd]...)
	out = append(out, llm.SystemMessage("[Context truncated: earlier tool calls and messages were dropped to stay within the context window.]"))
	out = append(out, msgs[tailStart:]...)
	return out
}

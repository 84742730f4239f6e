// ABOUTME: Drains unread mailbox messages and injects them as a self-reflection
// ABOUTME: thought plus the intervening user message, before the next LLM call.

package middleware

import (
	"context"
	"fmt"

	"github.com/nanoagent/swarmcore/llm"
)

// acknowledgmentThought is appended as an assistant turn before the injected
// intervention, matching the source's self-reflection framing.
const acknowledgmentThought = "I notice the user has left a suggestion about my behavior. " +
	"Let me review it and follow it while continuing the task."

// Mailbox drains turn.AgentName's unread mailbox messages and splices each
// in as an acknowledgment + user-message pair, marking them read as a side
// effect of the drain itself.
func Mailbox() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if turn.Mailbox != nil && turn.AgentName != "" {
			msgs, err := turn.Mailbox.DrainUnread(turn.AgentName)
			if err == nil {
				for _, m := range msgs {
					req.Messages = append(req.Messages,
						llm.AssistantMessage(acknowledgmentThought),
						llm.UserMessage(fmt.Sprintf("[mailbox] %s", m.Content)),
					)
				}
			}
		}
		return next(ctx, req)
	}
}

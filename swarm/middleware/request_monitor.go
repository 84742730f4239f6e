// ABOUTME: Surfaces pending worker permission requests to the Architect's
// ABOUTME: confirmation callback before each turn, at zero token cost.

package middleware

import (
	"context"
	"fmt"
	"log"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/mailbox"
)

// RequestMonitor checks for pending permission requests and routes each to
// turn.Confirm. Architect-only: it runs ahead of the model call so it never
// consumes tokens. With no Confirm callback wired (headless run), pending
// requests are logged and left PENDING for a later attached session —
// blocking this middleware on stdin would stall the whole swarm loop, which
// the source's synchronous CLI fallback doesn't have to worry about.
func RequestMonitor() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if turn.IsArchitect && turn.Requests != nil {
			checkPendingRequests(ctx, turn)
		}
		return next(ctx, req)
	}
}

func checkPendingRequests(ctx context.Context, turn *Turn) {
	pending, err := turn.Requests.ListPending()
	if err != nil || len(pending) == 0 {
		return
	}

	if turn.Confirm == nil {
		log.Printf("[RequestMonitor] %d pending permission request(s) awaiting approval", len(pending))
		return
	}

	for _, r := range pending {
		message := fmt.Sprintf(
			"### PENDING PERMISSION REQUEST\n\n**Agent**: `%s`\n\n**Action**: %s\n\n"+
				"**Command/Content**:\n```\n%s\n```\n**Reason**: *%s*\n\n**Approve this action?**",
			r.AgentName, r.Type, r.Content, r.Reason,
		)
		approved, err := turn.Confirm(ctx, message)
		if err != nil {
			log.Printf("[RequestMonitor] confirmation callback error: %v", err)
			continue
		}
		status := mailbox.RequestDenied
		if approved {
			status = mailbox.RequestApproved
		}
		_ = turn.Requests.UpdateStatus(r.ID, status)
	}
}

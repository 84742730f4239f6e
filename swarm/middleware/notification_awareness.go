// ABOUTME: Injects a tail of the shared notifications.md into the system
// ABOUTME: prompt so every agent sees recent swarm activity without polling.

package middleware

import (
	"context"

	"github.com/nanoagent/swarmcore/llm"
)

const notificationsHeader = "## RECENT NOTIFICATIONS (SWARM HEARTBEAT)"

const (
	notificationContextLines = 20
	notificationMaxChars     = 5000
)

// NotificationAwareness tails notifications.md and injects it into the
// system prompt, so an agent notices mentions of its role or topic without
// having to explicitly read the index.
func NotificationAwareness() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if turn.Blackboard != nil {
			if tail, err := turn.Blackboard.TailNotifications(notificationContextLines, notificationMaxChars); err == nil && tail != "" {
				section := notificationsHeader + "\nThese are the latest actions performed by other agents. " +
					"Check if you are mentioned (@Role) or a topic regarding you was updated.\n\n```text\n" + tail + "\n```"
				upsertSystemSection(req, notificationsHeader, section)
			}
		}
		return next(ctx, req)
	}
}

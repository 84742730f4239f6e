// ABOUTME: Logs the intent (not result) of significant blackboard tool calls
// ABOUTME: to notifications.md, so other agents see activity as it's requested.

package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nanoagent/swarmcore/llm"
)

// significantOperations mirrors the source's significant_tools set, but
// keyed by the blackboard tool's "operation" argument since this swarm
// multiplexes every blackboard action behind one tool name.
var significantOperations = map[string]bool{
	"update_task":     true,
	"create_index":    true,
	"update_index":    true,
	"append_to_index": true,
}

// ActivityLogger appends a one-line summary of each significant blackboard
// call's arguments to notifications.md. It logs the call's stated intent,
// not its outcome — a deliberate choice (see DESIGN.md) matching the
// source, which logs from the raw tool-call arguments before execution.
func ActivityLogger() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		resp, err := next(ctx, req)
		if err != nil || resp == nil || turn.Blackboard == nil {
			return resp, err
		}
		for _, tc := range toolCallsOf(resp) {
			if tc.Name != "blackboard" {
				continue
			}
			args, aerr := tc.ArgumentsMap()
			if aerr != nil {
				continue
			}
			op, _ := args["operation"].(string)
			if !significantOperations[op] {
				continue
			}
			if summary := summarizeOperation(op, args); summary != "" {
				line := fmt.Sprintf("[%s] [%s] %s", time.Now().Format("15:04:05"), turn.AgentName, summary)
				turn.Blackboard.AppendNotification(line) //nolint:errcheck // best-effort logging
			}
		}
		return resp, nil
	}
}

func summarizeOperation(op string, args map[string]any) string {
	filename, _ := args["filename"].(string)
	switch op {
	case "update_task":
		taskID := args["task_id"]
		updates, _ := args["updates"].(map[string]any)
		statusNote := ""
		if s, ok := updates["status"]; ok {
			statusNote = fmt.Sprintf(" Status->%v", s)
		}
		return fmt.Sprintf("Updated Task #%v.%s", taskID, statusNote)
	case "create_index":
		content, _ := args["content"].(string)
		return fmt.Sprintf("Created index '%s': \"%s\"", filename, snippet(content, 150))
	case "update_index":
		content, _ := args["content"].(string)
		return fmt.Sprintf("Posted to '%s': \"%s\"", filename, snippet(content, 150))
	case "append_to_index":
		content, _ := args["content"].(string)
		return fmt.Sprintf("Appended to '%s': \"%s\"", filename, snippet(content, 150))
	}
	return ""
}

func snippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}

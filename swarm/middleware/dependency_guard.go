// ABOUTME: Pre-flight checks a worker's 'blackboard update_task' tool call
// ABOUTME: against the plan's dependency graph, short-circuiting violations
// ABOUTME: into a 'wait' before the (more expensive) store-level rejection.

package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/blackboard"
)

// DependencyGuard loads the central plan's current task graph and rejects
// an in-flight 'update_task' call that would claim a task (status ->
// IN_PROGRESS) whose dependencies aren't all DONE, or that would assign
// more than one agent to a non-standing task. The store's own UpdateTask
// still enforces these rules authoritatively (and runs AutoFix under
// lock); this middleware only saves a worker a failed round trip by
// catching the common case before the tool actually executes.
func DependencyGuard() Middleware {
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
			if aerr != nil || args["operation"] != "update_task" {
				continue
			}
			if reason := dependencyViolation(turn.Blackboard, args); reason != "" {
				newArgs, _ := json.Marshal(map[string]any{
					"duration":           5,
					"wait_for_new_index": false,
					"reason":             "BLOCKED BY GUARD: " + reason + ". Please check dependencies.",
				})
				id := tc.ID
				rewriteToolCall(resp, func(c llm.ToolCallData) bool { return c.ID == id }, "wait", string(newArgs))
			}
		}
		return resp, nil
	}
}

func dependencyViolation(store *blackboard.Store, args map[string]any) string {
	taskID, ok := asInt(args["task_id"])
	if !ok {
		return ""
	}
	updates, _ := args["updates"].(map[string]any)
	if updates == nil {
		return ""
	}

	plan, err := loadPlanReadOnly(store)
	if err != nil || plan == nil {
		return ""
	}
	task := plan.FindTask(taskID)
	if task == nil {
		return ""
	}

	if status, ok := updates["status"].(string); ok && status == string(blackboard.StatusInProgress) {
		for _, dep := range task.Dependencies {
			depTask := plan.FindTask(dep)
			if depTask == nil {
				continue
			}
			if depTask.Status != blackboard.StatusDone {
				return fmt.Sprintf("Dependency Task %d ('%s') is not DONE (Status: %s)", dep, depTask.Description, depTask.Status)
			}
		}
	}

	if rawAssignees, ok := updates["assignees"].([]any); ok && task.Type != blackboard.TaskStanding {
		if len(rawAssignees) > 1 {
			return "Cannot assign multiple agents to a standard task"
		}
	}

	return ""
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// loadPlanReadOnly reads and parses the central plan without taking the
// exclusive write lock UpdateTask uses — this guard only inspects state,
// it never mutates the plan.
func loadPlanReadOnly(store *blackboard.Store) (*blackboard.Plan, error) {
	idx, err := store.ReadIndex(blackboard.CentralPlanFile)
	if err != nil {
		return nil, err
	}
	plan, _, _, err := blackboard.ParsePlan(idx.Body)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

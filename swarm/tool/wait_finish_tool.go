// ABOUTME: wait, finish, and ask_user — the three protocol tools every
// ABOUTME: engine session carries regardless of role, grounding the ReAct
// ABOUTME: loop's blocking/unblocking and termination behavior.

package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nanoagent/swarmcore/swarm/blackboard"
)

// WaitTool pauses execution, optionally waking early on blackboard or
// mailbox activity.
type WaitTool struct {
	blackboardRoot string
	ctx            Context
}

func NewWaitTool(blackboardRoot string) *WaitTool { return &WaitTool{blackboardRoot: blackboardRoot} }

func (t *WaitTool) Configure(c Context) { t.ctx = c }
func (t *WaitTool) Name() string        { return "wait" }
func (t *WaitTool) Description() string {
	return "Pause execution. Sleeps for a duration, or wakes early on new activity " +
		"in global_indices or your mailbox. Use this when waiting on other agents."
}
func (t *WaitTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration":           map[string]any{"type": "number", "default": 15},
			"wait_for_new_index": map[string]any{"type": "boolean", "default": true},
			"reason":             map[string]any{"type": "string"},
		},
	}
}

func (t *WaitTool) maxMtime() time.Time {
	var max time.Time
	indicesDir := filepath.Join(t.blackboardRoot, "global_indices")
	if fi, err := os.Stat(indicesDir); err == nil && fi.ModTime().After(max) {
		max = fi.ModTime()
	}
	entries, _ := os.ReadDir(indicesDir)
	for _, e := range entries {
		if fi, err := e.Info(); err == nil && fi.ModTime().After(max) {
			max = fi.ModTime()
		}
	}
	if t.ctx.AgentName != "" {
		mbox := filepath.Join(t.blackboardRoot, "mailboxes", t.ctx.AgentName+".json")
		if fi, err := os.Stat(mbox); err == nil && fi.ModTime().After(max) {
			max = fi.ModTime()
		}
	}
	return max
}

func (t *WaitTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	duration := 15.0
	if d, ok := args["duration"].(float64); ok {
		duration = d
	}
	waitForIndex := true
	if w, ok := args["wait_for_new_index"].(bool); ok {
		waitForIndex = w
	}
	reason, _ := args["reason"].(string)
	prefix := ""
	if reason != "" {
		prefix = fmt.Sprintf("[Reason: %s] ", reason)
	}

	if !waitForIndex {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(duration * float64(time.Second))):
		}
		return fmt.Sprintf("%sWaited for %.0f seconds.", prefix, duration), nil
	}

	initial := t.maxMtime()
	deadline := time.Now().Add(time.Duration(duration * float64(time.Second)))
	for time.Now().Before(deadline) {
		if t.maxMtime().After(initial) {
			return fmt.Sprintf("%sNew activity detected! Waking up.", prefix), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Sprintf("%sNo new activity detected after %.0f seconds.", prefix, duration), nil
}

// FinishTool signals mission/task completion, pre-checked against
// outstanding work the way the Architect vs. Worker are each accountable for.
type FinishTool struct {
	blackboardRoot string
	role           string
	ctx            Context
}

func NewFinishTool(blackboardRoot, role string) *FinishTool {
	return &FinishTool{blackboardRoot: blackboardRoot, role: role}
}

func (t *FinishTool) Configure(c Context) { t.ctx = c }
func (t *FinishTool) Name() string        { return "finish" }
func (t *FinishTool) Description() string {
	return "Signal that you have completed your task or mission. Provide a detailed " +
		"output paragraph; mention any files produced or modified by absolute path."
}
func (t *FinishTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
			"output": map[string]any{"type": "string"},
		},
		"required": []string{"output"},
	}
}

func (t *FinishTool) Execute(_ context.Context, args map[string]any) (string, error) {
	output, _ := args["output"].(string)
	reason, _ := args["reason"].(string)

	if blocked := t.checkIncompleteTasks(); blocked != "" {
		return blocked, nil
	}

	reasonStr := ""
	if reason != "" {
		reasonStr = fmt.Sprintf("Reason: %s\n\n", reason)
	}
	return fmt.Sprintf("Agent Finished.\n\n%s===========================\n\nOutput: %s", reasonStr, output), nil
}

// checkIncompleteTasks returns a non-empty blocking message when the
// finish precheck fails: the Architect must see every task DONE (or the
// mission marked DONE/UNKNOWN), a Worker must see its own assignments DONE.
func (t *FinishTool) checkIncompleteTasks() string {
	planPath := filepath.Join(t.blackboardRoot, "global_indices", blackboard.CentralPlanFile)
	data, err := os.ReadFile(planPath)
	if err != nil {
		return ""
	}
	_, body := blackboard.ParseFrontMatter(string(data))
	plan, _, _, err := blackboard.ParsePlan(body)
	if err != nil || len(plan.Tasks) == 0 {
		return ""
	}

	isArchitect := t.ctx.IsArchitect
	if isArchitect {
		if plan.Status == blackboard.MissionDone || plan.Status == blackboard.MissionUnknown {
			return ""
		}
		var incomplete []*blackboard.Task
		for _, task := range plan.Tasks {
			if task.Status == blackboard.StatusPending || task.Status == blackboard.StatusInProgress || task.Status == blackboard.StatusBlocked {
				incomplete = append(incomplete, task)
			}
		}
		if len(incomplete) == 0 {
			return ""
		}
		return fmt.Sprintf("BLOCKED: %d incomplete task(s) remain in the central plan. "+
			"As the Architect you must ensure all tasks are DONE before calling finish.", len(incomplete))
	}

	if t.ctx.AgentName == "" {
		return ""
	}
	var inProgress []*blackboard.Task
	for _, task := range plan.Tasks {
		assigned := false
		for _, a := range task.Assignees {
			if a == t.ctx.AgentName {
				assigned = true
				break
			}
		}
		if assigned && task.Status == blackboard.StatusInProgress {
			inProgress = append(inProgress, task)
		}
	}
	if len(inProgress) == 0 {
		return ""
	}
	return fmt.Sprintf("BLOCKED: you have %d IN_PROGRESS task(s) not marked DONE. "+
		"Call blackboard update_task to mark them DONE before calling finish.", len(inProgress))
}

// AskUserTool blocks the loop on a human/TUI confirmation or free-text
// answer, routed through Context's Confirm/RequestInput callbacks (the TAP
// bridge in UI mode, a console prompt in headless mode).
type AskUserTool struct {
	ctx Context
}

func NewAskUserTool() *AskUserTool { return &AskUserTool{} }

func (t *AskUserTool) Configure(c Context) { t.ctx = c }
func (t *AskUserTool) Name() string        { return "ask_user" }
func (t *AskUserTool) Description() string {
	return "Ask the human operator a yes/no confirmation or a free-text question and block until answered."
}
func (t *AskUserTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string"},
			"kind":     map[string]any{"type": "string", "enum": []string{"confirmation", "input"}},
		},
		"required": []string{"question"},
	}
}

func (t *AskUserTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	question, _ := args["question"].(string)
	kind, _ := args["kind"].(string)
	if kind == "input" {
		if t.ctx.RequestInput == nil {
			return "", fmt.Errorf("ask_user: no input handler configured")
		}
		answer, err := t.ctx.RequestInput(ctx, question)
		if err != nil {
			return "", err
		}
		return answer, nil
	}
	if t.ctx.Confirm == nil {
		return "", fmt.Errorf("ask_user: no confirmation handler configured")
	}
	approved, err := t.ctx.Confirm(ctx, question)
	if err != nil {
		return "", err
	}
	if approved {
		return "User approved.", nil
	}
	return "User declined.", nil
}

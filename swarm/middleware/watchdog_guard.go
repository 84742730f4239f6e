// ABOUTME: Enforces the Architect's required protocol order (plan, verify,
// ABOUTME: delegate, finish), nudges persistence while the mission is open,
// ABOUTME: and detects dead agents / swarm-wide deadlock.

package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/blackboard"
)

var executionTools = map[string]bool{"write_file": true, "edit_file": true}

// maxNoAgentStrikes is the number of consecutive no-one-running checks
// before the Architect is forced into deadlock recovery.
const maxNoAgentStrikes = 3

const persistenceTag = "[SYSTEM INTERVENTION: PERSISTENCE GUARD]"

// WatchdogGuard is the Architect's protocol referee: it keeps the
// plan -> verify -> delegate -> finish order, prods the Architect to keep
// monitoring while tasks remain open, surfaces dead-agent alerts, and
// detects deadlock when no sub-agent is running but the mission isn't done.
func WatchdogGuard() Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		if !turn.IsArchitect {
			return next(ctx, req)
		}

		plan, _ := loadPlanReadOnly(turn.Blackboard)
		mission := missionStatus(plan)
		verified := planVerified(req)

		if mission == blackboard.MissionInProgress {
			if dead := deadAgentsWithIncompleteTasks(turn, plan); len(dead) > 0 {
				upsertSystemSection(req, "[SYSTEM ALERT: DEAD AGENT DETECTED]", deadAgentAlert(dead))
			}
			injectPersistenceNudge(req, turn)
		}

		resp, err := next(ctx, req)
		if err != nil || resp == nil {
			return resp, err
		}

		hasPlan := plan != nil
		for _, tc := range toolCallsOf(resp) {
			id := tc.ID
			match := func(c llm.ToolCallData) bool { return c.ID == id }

			switch {
			case tc.Name == "spawn_swarm_agent" && !hasPlan:
				rewriteToWait(resp, match, 0.1,
					"[SYSTEM WARNING] PLAN VIOLATION: You attempted to spawn agents but "+
						"central_plan.md does not exist yet. Required order: "+
						"create_index(central_plan.md) -> ask_user -> spawn_swarm_agent.")
			case tc.Name == "spawn_swarm_agent" && !verified:
				rewriteToWait(resp, match, 0.1,
					"[SYSTEM WARNING] PLAN VIOLATION: central_plan.md exists but you must "+
						"call ask_user for approval first. Required order: "+
						"create_index(central_plan.md) -> ask_user -> spawn_swarm_agent.")
			case executionTools[tc.Name] && !verified:
				rewriteToWait(resp, match, 0.1, fmt.Sprintf(
					"[SYSTEM WARNING] EXECUTION VIOLATION: You are the Architect and attempted "+
						"to execute work directly via '%s'. First call 'ask_user' to verify your "+
						"plan, then use 'spawn_swarm_agent'.", tc.Name))
			case tc.Name == "finish" && mission == blackboard.MissionInProgress:
				rewriteToWait(resp, match, 0.1,
					"PROTOCOL VIOLATION: The Mission is NOT marked as DONE in `central_plan.md`. "+
						"You cannot finish yet.")
			}
		}

		if len(toolCallsOf(resp)) == 0 {
			injectEndOfStreamAction(resp, turn, mission, verified)
		}

		return resp, nil
	}
}

func rewriteToWait(resp *llm.Response, match func(llm.ToolCallData) bool, duration float64, reason string) {
	args, _ := json.Marshal(map[string]any{
		"duration":           duration,
		"wait_for_new_index": false,
		"reason":             reason,
	})
	rewriteToolCall(resp, match, "wait", string(args))
}

// missionStatus mirrors the source's override: a plan with any non-DONE
// task reads as IN_PROGRESS regardless of its own status field; only once
// every task is DONE does the plan's stated status (or absence of a plan)
// decide the outcome.
func missionStatus(plan *blackboard.Plan) blackboard.MissionStatus {
	if plan == nil {
		return blackboard.MissionUnknown
	}
	if len(plan.Tasks) > 0 {
		for _, t := range plan.Tasks {
			if t.Status != blackboard.StatusDone {
				return blackboard.MissionInProgress
			}
		}
	}
	if plan.Status == "" {
		return blackboard.MissionUnknown
	}
	return plan.Status
}

// planVerified reports whether an ask_user tool call anywhere in history
// has a matching tool result, i.e. the Architect has already asked for and
// received plan approval.
func planVerified(req *llm.Request) bool {
	askUserCalls := map[string]bool{}
	for _, m := range req.Messages {
		if m.Role != llm.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls() {
			if tc.Name == "ask_user" {
				askUserCalls[tc.ID] = true
			}
		}
	}
	for _, m := range req.Messages {
		if m.Role == llm.RoleTool && askUserCalls[m.ToolCallID] {
			return true
		}
	}
	return false
}

type deadAgentReport struct {
	Name  string
	Tasks []*blackboard.Task
}

func deadAgentsWithIncompleteTasks(turn *Turn, plan *blackboard.Plan) []deadAgentReport {
	if turn.Registry == nil || plan == nil {
		return nil
	}
	var out []deadAgentReport
	for name, info := range turn.Registry.Read() {
		if name == turn.AgentName || info.Status != "DEAD" {
			continue
		}
		var tasks []*blackboard.Task
		for _, t := range plan.Tasks {
			if (t.Status == blackboard.StatusInProgress || t.Status == blackboard.StatusPending) && hasAssignee(t, name) {
				tasks = append(tasks, t)
			}
		}
		if len(tasks) > 0 {
			out = append(out, deadAgentReport{Name: name, Tasks: tasks})
		}
	}
	return out
}

func hasAssignee(t *blackboard.Task, name string) bool {
	for _, a := range t.Assignees {
		if a == name {
			return true
		}
	}
	return false
}

func deadAgentAlert(dead []deadAgentReport) string {
	lines := []string{"[SYSTEM ALERT: DEAD AGENT DETECTED]"}
	for _, da := range dead {
		var parts []string
		for _, t := range da.Tasks {
			desc := t.Description
			if len(desc) > 80 {
				desc = desc[:80]
			}
			parts = append(parts, fmt.Sprintf("Task #%d(%s): %s", t.ID, t.Status, desc))
		}
		lines = append(lines, fmt.Sprintf("  - Agent '%s' is DEAD with incomplete tasks: %s", da.Name, strings.Join(parts, ", ")))
	}
	lines = append(lines, "ACTION REQUIRED: Spawn a replacement agent for these tasks or reassign them.")
	return strings.Join(lines, "\n")
}

// injectPersistenceNudge appends a reminder every 5 assistant turns while
// the mission remains open, skipping the append if the conversation's last
// message is already an un-actioned copy of the same nudge.
func injectPersistenceNudge(req *llm.Request, turn *Turn) {
	currentTurn := 0
	lastInjectionTurn := -1
	for _, m := range req.Messages {
		if m.Role == llm.RoleAssistant {
			currentTurn++
		}
		if m.Role == llm.RoleUser && strings.Contains(m.TextContent(), persistenceTag) {
			lastInjectionTurn = currentTurn
		}
	}

	shouldInject := false
	if lastInjectionTurn == -1 {
		shouldInject = currentTurn >= 5
	} else {
		shouldInject = (currentTurn - lastInjectionTurn) >= 5
	}
	if !shouldInject {
		return
	}

	if n := len(req.Messages); n > 0 {
		last := req.Messages[n-1]
		if last.Role == llm.RoleUser && strings.Contains(last.TextContent(), persistenceTag) {
			return
		}
	}

	message := fmt.Sprintf("### %s (Turn %d)\nThe mission in `central_plan.md` is NOT yet complete. "+
		"You MUST continue to monitor the agents and coordinate the swarm until ALL tasks are "+
		"marked as 'DONE'. Please take immediate action.", persistenceTag, currentTurn)
	req.Messages = append(req.Messages, llm.UserMessage(message))
	_ = turn
}

// injectEndOfStreamAction synthesizes a tool call when the Architect's turn
// produced none at all: auto-finish if the mission is done, ask_user if the
// plan hasn't been verified yet, otherwise a wait that escalates through
// strikes into a forced deadlock-recovery message.
func injectEndOfStreamAction(resp *llm.Response, turn *Turn, mission blackboard.MissionStatus, verified bool) {
	switch {
	case mission == blackboard.MissionDone:
		args, _ := json.Marshal(map[string]any{"reason": "Auto-finishing as Mission Status is DONE."})
		resp.Message.Content = append(resp.Message.Content, llm.ToolCallPart(synthCallID(), "finish", args))

	case !verified:
		prompt := strings.TrimSpace(resp.Message.TextContent())
		if prompt == "" {
			prompt = "I have drafted a plan. Could you please review and confirm before I proceed?"
		}
		args, _ := json.Marshal(map[string]any{"question": prompt})
		resp.Message.Content = append(resp.Message.Content, llm.ToolCallPart(synthCallID(), "ask_user", args))

	case anyoneElseRunning(turn):
		turn.NoAgentStrikes = 0
		args, _ := json.Marshal(map[string]any{
			"duration": 10, "wait_for_new_index": true,
			"reason": "MISSION IN PROGRESS: Sub-agents are still working. Waiting for updates.",
		})
		resp.Message.Content = append(resp.Message.Content, llm.ToolCallPart(synthCallID(), "wait", args))

	default:
		turn.NoAgentStrikes++
		strikes := turn.NoAgentStrikes
		var reason string
		switch {
		case strikes >= maxNoAgentStrikes:
			turn.NoAgentStrikes = 0
			reason = fmt.Sprintf("[DEADLOCK DETECTED] No sub-agent has been running for %d consecutive "+
				"checks, but the mission is still IN_PROGRESS. You MUST now take recovery action:\n"+
				"1. Check which agents are DEAD with incomplete tasks\n"+
				"2. Either spawn replacements or update central_plan.md status to DONE\n"+
				"3. Call finish when done\nDO NOT just wait again.", strikes)
		case strikes == 1:
			reason = fmt.Sprintf("MISSION IN PROGRESS: But no sub-agent is working. (Strike %d/%d) "+
				"Check REAL-TIME SWARM STATUS — if an agent is DEAD with incomplete tasks, spawn a "+
				"REPLACEMENT agent immediately.", strikes, maxNoAgentStrikes)
		default:
			reason = fmt.Sprintf("MISSION IN PROGRESS: Still no sub-agent running. (Strike %d/%d) "+
				"URGENT: Re-spawn the dead agent NOW. Next check will trigger forced recovery.",
				strikes, maxNoAgentStrikes)
		}
		args, _ := json.Marshal(map[string]any{"duration": 10, "wait_for_new_index": true, "reason": reason})
		resp.Message.Content = append(resp.Message.Content, llm.ToolCallPart(synthCallID(), "wait", args))
	}
}

func anyoneElseRunning(turn *Turn) bool {
	if turn.Registry == nil {
		return false
	}
	for name, info := range turn.Registry.Read() {
		if name == turn.AgentName {
			continue
		}
		switch info.Status {
		case "RUNNING", "IDLE", "STARTING":
			if info.PID == 0 || pidRunning(info.PID) {
				return true
			}
		}
	}
	return false
}

var synthCallSeq int

// synthCallID produces a locally-unique synthetic tool-call id. A counter
// is sufficient here (not a random uuid) since these ids never leave this
// process and only need to be unique within one accumulated response.
func synthCallID() string {
	synthCallSeq++
	return fmt.Sprintf("call_watchdog_%d", synthCallSeq)
}

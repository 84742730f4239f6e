// ABOUTME: UpdateTask applies a CAS-protected partial update to one task in
// ABOUTME: the central plan, enforcing status-transition and assignee rules.

package blackboard

import (
	"fmt"
	"os"

	"github.com/nanoagent/swarmcore/swarm/filelock"
)

// Caller identifies who is performing a blackboard mutation, for the
// access-control checks in UpdateTask. Workers may only touch tasks
// assigned to themselves (or unassigned tasks they are claiming); the
// Architect may override any rule.
type Caller struct {
	AgentName   string
	IsArchitect bool
}

// UpdateTask performs the CAS-protected partial update described in spec
// §4.2/§4.3: re-reads the plan under exclusive lock, runs the passive
// auto-fix pass, checks the caller's access and the requested status
// transition, applies updates, and writes back.
func (s *Store) UpdateTask(filename string, taskID int, updates map[string]any, expectedChecksum string, caller Caller) error {
	if filename == "" {
		filename = CentralPlanFile
	}
	path := s.indexPath(filename)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("index %q not found", filename)
	}
	if expectedChecksum == "" {
		return fmt.Errorf("expected_checksum is required for update_task")
	}

	return filelock.WithLock(path, filelock.Exclusive, os.O_RDWR, filePerm, s.LockTimeout, func(f *os.File) error {
		data, err := os.ReadFile(f.Name())
		if err != nil {
			return err
		}
		content := string(data)
		current := checksum(content)
		if current != expectedChecksum {
			return &CASConflict{Filename: filename, CurrentChecksum: current}
		}

		meta, body := ParseFrontMatter(content)
		plan, start, end, err := ParsePlan(body)
		if err != nil {
			return err
		}

		// Passive auto-fix runs inside the same exclusive-lock window,
		// before the caller's edit is checked, so the plan stays monotone
		// without a separate janitor pass.
		plan.AutoFix()

		target := plan.FindTask(taskID)
		if target == nil {
			return fmt.Errorf("task ID %d not found", taskID)
		}

		if err := validateAssigneeAccess(target, updates, caller); err != nil {
			return err
		}

		if rawStatus, ok := updates["status"]; ok {
			next, ok := rawStatus.(string)
			if !ok {
				return fmt.Errorf("status update must be a string")
			}
			if err := plan.ValidateTransition(target, TaskStatus(next), caller.IsArchitect); err != nil {
				return err
			}
		}

		applyTaskUpdates(target, updates)

		newBody, err := RenderPlanBody(body, plan, start, end)
		if err != nil {
			return err
		}
		newContent, err := RenderFrontMatter(meta, newBody)
		if err != nil {
			return err
		}
		if meta != nil {
			if m2, _ := ParseFrontMatter(newContent); m2 == nil {
				return fmt.Errorf("reconstructed content has invalid YAML frontmatter")
			}
		}
		return writeWhole(f, newContent)
	})
}

// validateAssigneeAccess enforces the single-assignee-or-Architect rule:
// a non-Architect caller may only mutate a task it is assigned to, or one
// it is in the process of claiming via an "assignees" update.
func validateAssigneeAccess(t *Task, updates map[string]any, caller Caller) error {
	if caller.IsArchitect || caller.AgentName == "" {
		return nil
	}
	if rawAssignees, ok := updates["assignees"]; ok {
		if list, ok := rawAssignees.([]any); ok {
			for _, a := range list {
				if name, ok := a.(string); ok && name == caller.AgentName {
					return nil
				}
			}
		}
	}
	if len(t.Assignees) == 0 {
		return nil
	}
	for _, a := range t.Assignees {
		if a == caller.AgentName {
			return nil
		}
	}
	return &AccessDeniedError{Reason: fmt.Sprintf(
		"agent %q cannot update task #%d, assigned to %v; only the assigned agent or the Architect may modify it",
		caller.AgentName, t.ID, t.Assignees)}
}

// applyTaskUpdates merges a raw field map (as decoded from a tool-call's
// JSON arguments) onto a task's typed fields.
func applyTaskUpdates(t *Task, updates map[string]any) {
	for k, v := range updates {
		switch k {
		case "status":
			if s, ok := v.(string); ok {
				t.Status = TaskStatus(s)
			}
		case "description":
			if s, ok := v.(string); ok {
				t.Description = s
			}
		case "result_summary":
			if s, ok := v.(string); ok {
				t.ResultSummary = s
			}
		case "artifact_link":
			if s, ok := v.(string); ok {
				t.ArtifactLink = s
			}
		case "assignees":
			t.Assignees = toStringSlice(v)
		case "dependencies":
			t.Dependencies = toIntSlice(v)
		}
	}
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toIntSlice(v any) []int {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		switch n := item.(type) {
		case float64:
			out = append(out, int(n))
		case int:
			out = append(out, n)
		}
	}
	return out
}

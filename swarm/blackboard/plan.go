// ABOUTME: Central task plan model: parsing, validation, and the
// ABOUTME: auto-unblock / single-assignee passive fix-up applied on every read.

package blackboard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// TaskStatus is one of the allowed task lifecycle states.
type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
	StatusBlocked    TaskStatus = "BLOCKED"
)

// MissionStatus is the overall plan status.
type MissionStatus string

const (
	MissionInProgress MissionStatus = "IN_PROGRESS"
	MissionDone       MissionStatus = "DONE"
	// MissionUnknown is treated as eligible for finish, matching the
	// source's behavior for partially built plans (spec Open Question 1).
	MissionUnknown MissionStatus = "UNKNOWN"
)

// TaskType distinguishes single-assignee "standard" tasks from
// multi-assignee "standing" tasks (e.g. ongoing monitoring duties).
type TaskType string

const (
	TaskStandard TaskType = "standard"
	TaskStanding TaskType = "standing"
)

// Task is one node of the central plan's task graph.
type Task struct {
	ID            int            `json:"id"`
	Type          TaskType       `json:"type"`
	Description   string         `json:"description"`
	Status        TaskStatus     `json:"status"`
	Assignees     []string       `json:"assignees,omitempty"`
	Dependencies  []int          `json:"dependencies,omitempty"`
	ResultSummary string         `json:"result_summary,omitempty"`
	ArtifactLink  string         `json:"artifact_link,omitempty"`
	Extra         map[string]any `json:"-"`
}

// Plan is the JSON object embedded in the central_plan.md fenced block.
type Plan struct {
	MissionGoal string        `json:"mission_goal"`
	Status      MissionStatus `json:"status"`
	Summary     string        `json:"summary"`
	Tasks       []*Task       `json:"tasks"`
}

// validTransitions enumerates the allowed single-step status transitions.
// DONE is terminal for everyone but the Architect, who may force any move.
var validTransitions = map[TaskStatus]map[TaskStatus]bool{
	StatusPending:    {StatusInProgress: true},
	StatusInProgress: {StatusDone: true, StatusPending: true},
	StatusBlocked:    {StatusPending: true},
	StatusDone:       {},
}

// FindTask returns the task with the given id, or nil.
func (p *Plan) FindTask(id int) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Validate enforces the plan invariants from spec §3: every dependency
// references an existing task, no self-dependency, no cycles, and no
// PENDING task with an unfulfilled dependency (it must be BLOCKED).
func (p *Plan) Validate() error {
	ids := make(map[int]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		ids[t.ID] = true
	}

	for _, t := range p.Tasks {
		for _, dep := range t.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("task %d depends on non-existent task %d", t.ID, dep)
			}
			if dep == t.ID {
				return fmt.Errorf("task %d depends on itself (ID: %d)", t.ID, t.ID)
			}
		}
	}

	visited := make(map[int]bool)
	for _, t := range p.Tasks {
		if visited[t.ID] {
			continue
		}
		if cyc := p.hasCycle(t.ID, visited, map[int]bool{}); cyc {
			return fmt.Errorf("circular dependency detected involving task %d", t.ID)
		}
	}

	for _, t := range p.Tasks {
		if len(t.Dependencies) == 0 {
			continue
		}
		var unfulfilled []int
		for _, dep := range t.Dependencies {
			if dt := p.FindTask(dep); dt != nil && dt.Status != StatusDone {
				unfulfilled = append(unfulfilled, dep)
			}
		}
		if len(unfulfilled) > 0 && t.Status == StatusPending {
			return fmt.Errorf("task %d is PENDING but has unfulfilled dependencies %v; status should be BLOCKED", t.ID, unfulfilled)
		}
	}
	return nil
}

func (p *Plan) hasCycle(id int, visited, stack map[int]bool) bool {
	visited[id] = true
	stack[id] = true
	defer delete(stack, id)

	t := p.FindTask(id)
	if t == nil {
		return false
	}
	for _, dep := range t.Dependencies {
		if !visited[dep] {
			if p.hasCycle(dep, visited, stack) {
				return true
			}
		} else if stack[dep] {
			return true
		}
	}
	return false
}

// AutoFix applies the passive, monotone auto-unblock and single-assignee
// truncation pass described in spec §4.2: any BLOCKED task whose
// dependencies are all DONE is promoted to PENDING, and any standard task
// with 2+ assignees is truncated to the first.
func (p *Plan) AutoFix() {
	for _, t := range p.Tasks {
		if t.Status == StatusBlocked && p.depsAllDone(t) {
			t.Status = StatusPending
		}
		if t.Type == TaskStandard && len(t.Assignees) > 1 {
			t.Assignees = t.Assignees[:1]
		}
	}
}

func (p *Plan) depsAllDone(t *Task) bool {
	for _, dep := range t.Dependencies {
		dt := p.FindTask(dep)
		if dt == nil || dt.Status != StatusDone {
			return false
		}
	}
	return true
}

// ValidateTransition checks whether moving a task from current to next is
// legal for a non-Architect caller, and that all of t's dependencies
// (when claiming IN_PROGRESS) are DONE. isArchitect bypasses only the
// transition table; a move to IN_PROGRESS with an unfinished dependency is
// rejected with DependencyNotSatisfiedError for every caller.
func (p *Plan) ValidateTransition(t *Task, next TaskStatus, isArchitect bool) error {
	if t.Status == next {
		return nil
	}
	if !isArchitect {
		allowed := validTransitions[t.Status]
		if !allowed[next] {
			return &StatusTransitionError{Task: t.ID, From: t.Status, To: next}
		}
	}
	if next == StatusInProgress {
		for _, dep := range t.Dependencies {
			dt := p.FindTask(dep)
			if dt != nil && dt.Status != StatusDone {
				return &DependencyNotSatisfiedError{Task: t.ID, Dependency: dep, DepStatus: dt.Status}
			}
		}
	}
	return nil
}

// extractJSONBlock parses body as markdown with goldmark and walks the
// resulting AST for the first fenced code block tagged "json" (the plan
// block), rather than scanning raw text for fence markers — a block
// quoted inside a blockquote or list, or a ```json token appearing inside
// prose, is handled correctly because the tree distinguishes them.
// start/end are byte offsets of the block's content within body: start is
// the first byte after the opening fence's line, end is the first byte of
// the closing fence's line, so body[:start] always ends in "```json\n" and
// body[end:] always begins with the closing "```".
func extractJSONBlock(body string) (jsonStr string, start, end int, err error) {
	source := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	block := findFencedJSONBlock(doc, source)
	if block == nil {
		return "", 0, 0, fmt.Errorf("no JSON block found in plan")
	}

	lines := block.Lines()
	if lines.Len() == 0 {
		return "", 0, 0, fmt.Errorf("malformed JSON block")
	}
	start = lines.At(0).Start
	end = lines.At(lines.Len() - 1).Stop
	return strings.TrimSpace(string(source[start:end])), start, end, nil
}

// findFencedJSONBlock walks node's subtree depth-first for the first
// *ast.FencedCodeBlock whose info string is exactly "json".
func findFencedJSONBlock(node ast.Node, source []byte) *ast.FencedCodeBlock {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if fcb, ok := child.(*ast.FencedCodeBlock); ok && string(fcb.Language(source)) == "json" {
			return fcb
		}
		if found := findFencedJSONBlock(child, source); found != nil {
			return found
		}
	}
	return nil
}

// ParsePlan extracts and unmarshals the plan from an index body.
func ParsePlan(body string) (*Plan, int, int, error) {
	jsonStr, start, end, err := extractJSONBlock(body)
	if err != nil {
		return nil, 0, 0, err
	}
	var p Plan
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return nil, 0, 0, fmt.Errorf("plan JSON decode error: %w", err)
	}
	return &p, start, end, nil
}

// RenderPlanBody re-serializes plan into body, replacing the bytes between
// the previously located fence markers (as returned by extractJSONBlock),
// preserving any prose around them.
func RenderPlanBody(body string, plan *Plan, start, end int) (string, error) {
	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", err
	}
	return body[:start] + string(out) + "\n" + body[end:], nil
}

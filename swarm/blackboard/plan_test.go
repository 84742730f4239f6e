package blackboard

import "testing"

func samplePlan() *Plan {
	return &Plan{
		MissionGoal: "ship feature",
		Status:      MissionInProgress,
		Tasks: []*Task{
			{ID: 1, Type: TaskStandard, Status: StatusDone},
			{ID: 2, Type: TaskStandard, Status: StatusPending, Dependencies: []int{1}},
			{ID: 3, Type: TaskStandard, Status: StatusPending, Dependencies: []int{4}},
		},
	}
}

func TestValidateDetectsMissingDependency(t *testing.T) {
	p := samplePlan()
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for task 3's dangling dependency on task 4")
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	p := &Plan{Tasks: []*Task{
		{ID: 1, Status: StatusPending, Dependencies: []int{2}},
		{ID: 2, Status: StatusPending, Dependencies: []int{1}},
	}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestValidateRejectsPendingWithUnmetDependency(t *testing.T) {
	p := &Plan{Tasks: []*Task{
		{ID: 1, Status: StatusPending},
		{ID: 2, Status: StatusPending, Dependencies: []int{1}},
	}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected PENDING-with-unmet-dependency to fail validation; task 2 should be BLOCKED")
	}
}

func TestAutoFixUnblocksWhenDependenciesComplete(t *testing.T) {
	p := &Plan{Tasks: []*Task{
		{ID: 1, Status: StatusDone},
		{ID: 2, Type: TaskStandard, Status: StatusBlocked, Dependencies: []int{1}, Assignees: []string{"a", "b"}},
	}}
	p.AutoFix()
	task := p.FindTask(2)
	if task.Status != StatusPending {
		t.Fatalf("expected task 2 to be auto-unblocked to PENDING, got %s", task.Status)
	}
	if len(task.Assignees) != 1 {
		t.Fatalf("expected standard task assignees truncated to 1, got %v", task.Assignees)
	}
}

func TestValidateTransitionRejectsDoneToPending(t *testing.T) {
	plan := &Plan{Tasks: []*Task{{ID: 1, Status: StatusDone}}}
	task := plan.FindTask(1)
	if err := plan.ValidateTransition(task, StatusPending, false); err == nil {
		t.Fatal("expected DONE to be a terminal state for non-Architect callers")
	}
}

func TestValidateTransitionArchitectBypassesTable(t *testing.T) {
	plan := &Plan{Tasks: []*Task{{ID: 1, Status: StatusDone}}}
	task := plan.FindTask(1)
	if err := plan.ValidateTransition(task, StatusPending, true); err != nil {
		t.Fatalf("expected Architect to bypass the transition table, got %v", err)
	}
}

func TestValidateTransitionRejectsUnsatisfiedDependencyOnClaim(t *testing.T) {
	plan := &Plan{Tasks: []*Task{
		{ID: 1, Status: StatusPending},
		{ID: 2, Status: StatusBlocked, Dependencies: []int{1}},
	}}
	task := plan.FindTask(2)
	err := plan.ValidateTransition(task, StatusInProgress, false)
	if err == nil {
		t.Fatal("expected claiming IN_PROGRESS to fail while dependency 1 is not DONE")
	}
}

func TestExtractJSONBlockIgnoresTrailingFence(t *testing.T) {
	body := "# Central Plan\n\n```json\n" +
		`{"mission_goal":"g","status":"IN_PROGRESS","tasks":[]}` +
		"\n```\n\n" +
		"Notes:\n\n```text\nnot the plan\n```\n"
	plan, _, _, err := ParsePlan(body)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if plan.MissionGoal != "g" {
		t.Fatalf("expected the first json block's plan, got %+v", plan)
	}
}

func TestExtractJSONBlockErrorsWhenAbsent(t *testing.T) {
	if _, _, _, err := extractJSONBlock("# Central Plan\n\nno fenced block here.\n"); err == nil {
		t.Fatal("expected an error when no json-tagged fenced block is present")
	}
}

func TestParseAndRenderPlanRoundTrip(t *testing.T) {
	body := "# Central Plan\n\n```json\n" +
		`{"mission_goal":"g","status":"IN_PROGRESS","tasks":[{"id":1,"type":"standard","description":"d","status":"PENDING"}]}` +
		"\n```\n\nTrailer text.\n"
	plan, start, end, err := ParsePlan(body)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if plan.MissionGoal != "g" || len(plan.Tasks) != 1 {
		t.Fatalf("unexpected parsed plan: %+v", plan)
	}
	out, err := RenderPlanBody(body, plan, start, end)
	if err != nil {
		t.Fatalf("RenderPlanBody: %v", err)
	}
	reparsed, _, _, err := ParsePlan(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if reparsed.MissionGoal != "g" {
		t.Fatalf("round trip lost mission goal: %+v", reparsed)
	}
}

package middleware

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nanoagent/swarmcore/llm"
)

func TestContextOverflowLeavesSmallHistoryAlone(t *testing.T) {
	req := &llm.Request{Messages: []llm.Message{llm.SystemMessage("sys"), llm.UserMessage("hi")}}
	chain := ContextOverflow()
	_, err := chain(context.Background(), &Turn{}, req, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		if len(r.Messages) != 2 {
			t.Fatalf("expected untouched history, got %d messages", len(r.Messages))
		}
		return staticResponse(), nil
	})
	if err != nil {
		t.Fatalf("ContextOverflow: %v", err)
	}
}

func TestContextOverflowTrimsOversizedHistory(t *testing.T) {
	big := make([]llm.Message, 0, 30)
	big = append(big, llm.SystemMessage("sys"))
	huge := make([]byte, 500_000)
	for i := range huge {
		huge[i] = 'x'
	}
	for i := 0; i < 29; i++ {
		big = append(big, llm.UserMessage(string(huge)))
	}
	req := &llm.Request{Messages: big}
	chain := ContextOverflow()
	var seen int
	_, err := chain(context.Background(), &Turn{}, req, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		seen = len(r.Messages)
		return staticResponse(), nil
	})
	if err != nil {
		t.Fatalf("ContextOverflow: %v", err)
	}
	if seen >= len(big) {
		t.Fatalf("expected the oversized history to be trimmed, got %d messages (was %d)", seen, len(big))
	}
}

type fakeRetryableError struct{ retryable bool }

func (e *fakeRetryableError) Error() string     { return "fake error" }
func (e *fakeRetryableError) IsRetryable() bool { return e.retryable }

func TestErrorRecoveryRetriesRetryableError(t *testing.T) {
	chain := ErrorRecovery()
	attempts := 0
	resp, err := chain(context.Background(), &Turn{}, &llm.Request{}, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		attempts++
		if attempts < 2 {
			return nil, &fakeRetryableError{retryable: true}
		}
		return staticResponse(), nil
	})
	if err != nil {
		t.Fatalf("ErrorRecovery: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response once the retry succeeds")
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestErrorRecoveryPassesThroughNonRetryableError(t *testing.T) {
	chain := ErrorRecovery()
	attempts := 0
	_, err := chain(context.Background(), &Turn{}, &llm.Request{}, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		attempts++
		return nil, &fakeRetryableError{retryable: false}
	})
	if err == nil {
		t.Fatal("expected the non-retryable error to surface")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestLoopBreakerDetectsRepeatingSingleCall(t *testing.T) {
	var msgs []llm.Message
	args := json.RawMessage(`{"x":1}`)
	for i := 0; i < loopDetectionWindow; i++ {
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentPart{llm.ToolCallPart("c", "wait", args)}})
	}
	req := &llm.Request{Messages: msgs}
	chain := LoopBreaker()
	_, err := chain(context.Background(), &Turn{}, req, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		return staticResponse(), nil
	})
	if err != nil {
		t.Fatalf("LoopBreaker: %v", err)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != llm.RoleUser || !contains(last.TextContent(), "Loop detected") {
		t.Fatalf("expected a loop-detected warning appended, got %+v", last)
	}
}

func TestLoopBreakerLeavesVariedHistoryAlone(t *testing.T) {
	var msgs []llm.Message
	for i := 0; i < loopDetectionWindow; i++ {
		args, _ := json.Marshal(map[string]any{"n": i})
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentPart{llm.ToolCallPart("c", "wait", args)}})
	}
	req := &llm.Request{Messages: msgs}
	chain := LoopBreaker()
	_, err := chain(context.Background(), &Turn{}, req, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		return staticResponse(), nil
	})
	if err != nil {
		t.Fatalf("LoopBreaker: %v", err)
	}
	if len(req.Messages) != loopDetectionWindow {
		t.Fatalf("expected no warning appended for varied calls, got %d messages", len(req.Messages))
	}
}

func TestToolResultCacheShortCircuitsRepeatedCall(t *testing.T) {
	args := json.RawMessage(`{"filename":"notes.md"}`)
	req := &llm.Request{Messages: []llm.Message{
		{Role: llm.RoleAssistant, Content: []llm.ContentPart{llm.ToolCallPart("call_1", "read_index", args)}},
		{Role: llm.RoleTool, ToolCallID: "call_1", Content: []llm.ContentPart{llm.ToolResultPart("call_1", "cached body", false)}},
	}}
	chain := ToolResultCache()
	turn := &Turn{}
	resp, err := chain(context.Background(), turn, req, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		return staticResponse(llm.ToolCallPart("call_2", "read_index", args)), nil
	})
	if err != nil {
		t.Fatalf("ToolResultCache: %v", err)
	}
	calls := toolCallsOf(resp)
	if len(calls) != 1 || calls[0].Name != "wait" {
		t.Fatalf("expected the repeated read to be short-circuited to wait, got %+v", calls)
	}
}

func TestToolResultCacheLeavesFirstCallAlone(t *testing.T) {
	args := json.RawMessage(`{"filename":"notes.md"}`)
	chain := ToolResultCache()
	turn := &Turn{}
	resp, err := chain(context.Background(), turn, &llm.Request{}, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		return staticResponse(llm.ToolCallPart("call_1", "read_index", args)), nil
	})
	if err != nil {
		t.Fatalf("ToolResultCache: %v", err)
	}
	if calls := toolCallsOf(resp); len(calls) != 1 || calls[0].Name != "read_index" {
		t.Fatalf("expected the first call to pass through, got %+v", calls)
	}
}

func TestSemanticDriftGuardReanchorsOnCadence(t *testing.T) {
	chain := SemanticDriftGuard()
	turn := &Turn{MissionGoal: "ship the release", IterationCount: driftReanchorEvery}
	req := &llm.Request{Messages: []llm.Message{llm.SystemMessage("base")}}
	_, err := chain(context.Background(), turn, req, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		return staticResponse(), nil
	})
	if err != nil {
		t.Fatalf("SemanticDriftGuard: %v", err)
	}
	if !contains(req.Messages[0].TextContent(), "ship the release") {
		t.Fatalf("expected the mission goal to be re-anchored, got %q", req.Messages[0].TextContent())
	}
}

func TestSemanticDriftGuardSkipsOffCadence(t *testing.T) {
	chain := SemanticDriftGuard()
	turn := &Turn{MissionGoal: "ship the release", IterationCount: driftReanchorEvery - 1}
	req := &llm.Request{Messages: []llm.Message{llm.SystemMessage("base")}}
	_, err := chain(context.Background(), turn, req, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		return staticResponse(), nil
	})
	if err != nil {
		t.Fatalf("SemanticDriftGuard: %v", err)
	}
	if contains(req.Messages[0].TextContent(), "ship the release") {
		t.Fatal("expected no re-anchor off cadence")
	}
}

func TestExecutionBudgetForcesFinishOnceExhausted(t *testing.T) {
	chain := ExecutionBudget()
	turn := &Turn{TokenBudget: 100}
	resp, err := chain(context.Background(), turn, &llm.Request{}, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		resp := staticResponse(llm.ToolCallPart("call_1", "blackboard", json.RawMessage(`{}`)))
		resp.Usage = llm.Usage{TotalTokens: 150}
		return resp, nil
	})
	if err != nil {
		t.Fatalf("ExecutionBudget: %v", err)
	}
	calls := toolCallsOf(resp)
	if len(calls) != 1 || calls[0].Name != "finish" {
		t.Fatalf("expected the tool call to be forced to finish, got %+v", calls)
	}
	if turn.TotalTokensUsed != 150 {
		t.Fatalf("expected TotalTokensUsed to accumulate, got %d", turn.TotalTokensUsed)
	}
}

func TestExecutionBudgetLeavesCallsAloneUnderBudget(t *testing.T) {
	chain := ExecutionBudget()
	turn := &Turn{TokenBudget: 1000}
	resp, err := chain(context.Background(), turn, &llm.Request{}, func(ctx context.Context, r *llm.Request) (*llm.Response, error) {
		resp := staticResponse(llm.ToolCallPart("call_1", "blackboard", json.RawMessage(`{}`)))
		resp.Usage = llm.Usage{TotalTokens: 50}
		return resp, nil
	})
	if err != nil {
		t.Fatalf("ExecutionBudget: %v", err)
	}
	if calls := toolCallsOf(resp); len(calls) != 1 || calls[0].Name != "blackboard" {
		t.Fatalf("expected the call untouched under budget, got %+v", calls)
	}
}

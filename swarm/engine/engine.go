// ABOUTME: ReAct execution engine: drives the middleware-wrapped LLM call,
// ABOUTME: dispatches tool calls, and loops until finish, a natural
// ABOUTME: text-only stop, or the iteration limit is exhausted.

// Package engine implements the swarm's per-agent run loop: one iteration
// builds a request from history, streams a completion through the
// middleware chain, dispatches any tool calls the model made, and appends
// the results back into history — the domain-specific reshaping of the
// teacher's agent.ProcessInput loop.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/blackboard"
	"github.com/nanoagent/swarmcore/swarm/middleware"
	"github.com/nanoagent/swarmcore/swarm/tool"
)

// streamRetries is how many times the engine re-invokes the pipeline after
// a streaming read error before giving up on the iteration.
const streamRetries = 2

// Config configures one Engine instance.
type Config struct {
	Model         string
	SystemPrompt  string
	MaxIterations int

	Client     *llm.Client
	Tools      *tool.Registry
	Middleware middleware.Middleware
	Turn       *middleware.Turn

	// SubagentDepth/MaxSubagentDepth bound invoke_agent recursion; a fresh
	// top-level Engine starts at depth 0.
	SubagentDepth    int
	MaxSubagentDepth int

	// Subagents is the set of named profiles invoke_agent may delegate to.
	Subagents map[string]SubagentProfile
}

// Engine runs one agent's ReAct loop over a growing message history.
type Engine struct {
	cfg     Config
	history []llm.Message
	Events  *Emitter
}

// New creates an Engine seeded with cfg.SystemPrompt as the first message.
// When cfg.Subagents is non-empty and cfg.SubagentDepth hasn't already hit
// cfg.MaxSubagentDepth, invoke_agent is registered on cfg.Tools so the
// model can delegate.
func New(cfg Config) *Engine {
	if cfg.MaxSubagentDepth == 0 {
		cfg.MaxSubagentDepth = 3
	}
	e := &Engine{
		cfg:     cfg,
		history: []llm.Message{llm.SystemMessage(cfg.SystemPrompt)},
		Events:  NewEmitter(),
	}
	if len(cfg.Subagents) > 0 && cfg.Tools != nil && cfg.SubagentDepth < cfg.MaxSubagentDepth {
		_ = cfg.Tools.Register(NewInvokeAgentTool(e))
	}
	return e
}

// Run appends userInput as a user message and drives iterations until the
// model emits a text-only response, a tool call named finish succeeds, or
// MaxIterations is exhausted. It returns the final assistant text, or the
// last non-empty tool result when the loop ended via finish (empty, with an
// error, at the iteration cap).
func (e *Engine) Run(ctx context.Context, userInput string) (string, error) {
	if userInput != "" {
		e.history = append(e.history, llm.UserMessage(userInput))
		e.Events.Emit(EventMessage, map[string]any{"role": "user", "content": userInput})
	}

	for iteration := 0; ; iteration++ {
		if e.cfg.MaxIterations > 0 && iteration >= e.cfg.MaxIterations {
			e.onMaxIterations()
			e.Events.Emit(EventError, map[string]any{"reason": "max_iterations_exceeded"})
			return "", fmt.Errorf("engine: max iterations (%d) exceeded", e.cfg.MaxIterations)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		resp, err := e.callWithRetries(ctx)
		if err != nil {
			e.Events.Emit(EventError, map[string]any{"error": err.Error()})
			return "", err
		}

		toolCalls := resp.ToolCalls()
		text := resp.TextContent()

		if len(toolCalls) == 0 {
			e.history = append(e.history, llm.AssistantMessage(text))
			e.Events.Emit(EventMessage, map[string]any{"role": "assistant", "content": text})
			return text, nil
		}

		e.history = append(e.history, resp.Message)
		e.cfg.Turn.IterationCount++

		results := dispatchToolCalls(ctx, e.Events, e.cfg.Tools, toolCalls)
		downgradeFinishIfBlocked(resp, results)
		finalCalls := resp.ToolCalls() // re-read: downgradeFinishIfBlocked may have renamed a call in place

		finished := false
		for _, r := range results {
			e.history = append(e.history, llm.ToolResultMessage(r.ToolCallID, r.Content, r.IsError))
		}
		for i, tc := range finalCalls {
			if tc.Name == "finish" && !results[i].IsError {
				finished = true
			}
		}
		if finished {
			e.Events.Emit(EventFinish, map[string]any{"output": lastFinishOutput(results)})
			return lastFinishOutput(results), nil
		}
	}
}

// callWithRetries builds a request from history and streams a completion
// through the middleware chain, retrying up to streamRetries times on a
// streaming read error before giving up.
func (e *Engine) callWithRetries(ctx context.Context) (*llm.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= streamRetries; attempt++ {
		req := &llm.Request{
			Model:      e.cfg.Model,
			Messages:   append([]llm.Message(nil), e.history...),
			Tools:      e.cfg.Tools.Definitions(),
			ToolChoice: &llm.ToolChoice{Mode: llm.ToolChoiceAuto},
		}
		if e.cfg.Turn != nil && e.cfg.Turn.AgentName != "" {
			req.Metadata = map[string]string{"agent_name": e.cfg.Turn.AgentName}
		}

		next := func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
			stream, err := e.cfg.Client.Stream(ctx, *req)
			if err != nil {
				return nil, err
			}
			return consumeStream(ctx, e.Events, stream)
		}

		resp, err := e.cfg.Middleware(ctx, e.cfg.Turn, req, next)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("engine: streaming failed after %d retries: %w", streamRetries, lastErr)
}

// onMaxIterations notifies the parent agent's mailbox with the list of
// tasks still in progress when an iteration budget is exhausted without
// reaching finish, so a watching Architect (or parent Worker) can react.
func (e *Engine) onMaxIterations() {
	if e.cfg.Turn == nil || e.cfg.Turn.Mailbox == nil || e.cfg.Turn.ParentAgentName == "" {
		return
	}
	var inProgress []string
	if bb := e.cfg.Turn.Blackboard; bb != nil {
		if idx, err := bb.ReadIndex(blackboard.CentralPlanFile); err == nil {
			if plan, _, _, err := blackboard.ParsePlan(idx.Body); err == nil {
				for _, t := range plan.Tasks {
					if t.Status == blackboard.StatusInProgress {
						inProgress = append(inProgress, fmt.Sprintf("#%d %s", t.ID, t.Description))
					}
				}
			}
		}
	}
	content := fmt.Sprintf("Agent %q exhausted its iteration budget without calling finish. Tasks still IN_PROGRESS: %s",
		e.cfg.Turn.AgentName, strings.Join(inProgress, "; "))
	_ = e.cfg.Turn.Mailbox.Send(e.cfg.Turn.ParentAgentName, "system", content, map[string]any{
		"event": "max_iterations_exceeded",
		"at":    time.Now().Unix(),
	})
}

func lastFinishOutput(results []llm.ToolResultData) string {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Content != "" {
			return results[i].Content
		}
	}
	return ""
}

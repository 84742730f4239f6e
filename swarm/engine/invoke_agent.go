// ABOUTME: invoke_agent tool: synchronous subagent delegation. Constructs a
// ABOUTME: child Engine scoped to the named profile's tools/model and runs
// ABOUTME: it to completion, tracking recursion depth.

package engine

import (
	"context"
	"fmt"

	"github.com/nanoagent/swarmcore/swarm/tool"
)

// SubagentProfile is one named, pre-configured subagent palette an
// invoke_agent call may target. The content behind a profile (its prompt
// library, tool selection) is assembled by the caller; the engine only
// needs the resolved Model/SystemPrompt/Tools to run it.
type SubagentProfile struct {
	Model        string
	SystemPrompt string
	Tools        *tool.Registry
}

// InvokeAgentTool exposes invoke_agent(name, query) to the parent engine's
// model. It is Configure-free: the parent Engine wires itself in directly
// via NewInvokeAgentTool rather than through tool.Context, since it needs
// the parent's Client, Turn, and subagent depth counters, not just the
// per-agent sandbox/blackboard context every other tool gets.
type InvokeAgentTool struct {
	parent *Engine
}

// NewInvokeAgentTool binds the tool to parent, the engine whose Run loop
// will dispatch this call.
func NewInvokeAgentTool(parent *Engine) *InvokeAgentTool {
	return &InvokeAgentTool{parent: parent}
}

func (t *InvokeAgentTool) Name() string        { return "invoke_agent" }
func (t *InvokeAgentTool) Description() string {
	return "Delegate a scoped query to a named subagent and wait for its final answer."
}
func (t *InvokeAgentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":  map[string]any{"type": "string", "description": "Registered subagent profile name"},
			"query": map[string]any{"type": "string"},
		},
		"required": []string{"name", "query"},
	}
}

func (t *InvokeAgentTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	query, _ := args["query"].(string)
	if name == "" || query == "" {
		return "", fmt.Errorf("invoke_agent: both name and query are required")
	}

	profile, ok := t.parent.cfg.Subagents[name]
	if !ok {
		return "", fmt.Errorf("invoke_agent: unknown subagent profile %q", name)
	}

	if t.parent.cfg.SubagentDepth >= t.parent.cfg.MaxSubagentDepth {
		return fmt.Sprintf("BLOCKED: recursion depth limit (%d) reached; cannot invoke %q.",
			t.parent.cfg.MaxSubagentDepth, name), nil
	}

	childTurn := *t.parent.cfg.Turn
	childTurn.IterationCount = 0

	child := New(Config{
		Model:            profile.Model,
		SystemPrompt:     profile.SystemPrompt,
		MaxIterations:    t.parent.cfg.MaxIterations,
		Client:           t.parent.cfg.Client,
		Tools:            profile.Tools,
		Middleware:       t.parent.cfg.Middleware,
		Turn:             &childTurn,
		SubagentDepth:    t.parent.cfg.SubagentDepth + 1,
		MaxSubagentDepth: t.parent.cfg.MaxSubagentDepth,
		Subagents:        t.parent.cfg.Subagents,
	})

	return child.Run(ctx, query)
}

// ABOUTME: Middleware chain: the per-turn interceptors wrapping the engine's
// ABOUTME: LLM call, generalized from the teacher's onion-style request/response
// ABOUTME: middleware into the domain's guard/injector/logger pipeline.

// Package middleware implements the swarm's composable turn interceptors:
// system-prompt injection, tool-call rewriting guards, activity logging, and
// lifecycle monitors, wrapped around one llm.Client call per engine turn.
package middleware

import (
	"context"
	"strings"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/blackboard"
	"github.com/nanoagent/swarmcore/swarm/mailbox"
	"github.com/nanoagent/swarmcore/swarm/registry"
)

// Next continues the middleware chain with a (possibly mutated) request.
type Next func(ctx context.Context, req *llm.Request) (*llm.Response, error)

// Middleware wraps one LLM turn: inspect/mutate req, call next, then
// inspect/mutate the returned response before it reaches the engine. This
// mirrors llm.Middleware's onion shape (llm/client.go) but operates on the
// swarm's per-turn Turn state instead of a bare context.
type Middleware func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error)

// Turn carries everything a middleware needs about the current agent and
// blackboard, held for the lifetime of one engine session and mutated
// in-place across calls (IterationCount, NoAgentStrikes).
type Turn struct {
	AgentName       string
	IsArchitect     bool
	BlackboardDir   string
	Blackboard      *blackboard.Store
	Mailbox         *mailbox.Store
	Requests        *mailbox.RequestStore
	Registry        *registry.Store
	ParentPID       int
	ParentAgentName string

	// IterationCount is the number of assistant turns so far in this
	// session; the engine increments it once per completed turn.
	IterationCount int

	// NoAgentStrikes tracks consecutive Architect turns where no worker was
	// found running while the mission is IN_PROGRESS (watchdog deadlock
	// detection).
	NoAgentStrikes int

	// Confirm routes a permission/confirmation prompt to a human operator
	// (TAP bridge in UI mode); nil means no interactive approver is wired.
	Confirm func(ctx context.Context, message string) (bool, error)

	// MissionGoal anchors SemanticDriftGuard's periodic re-injection; set
	// once at session start from the spawn/mission goal.
	MissionGoal string

	// TokenBudget caps cumulative completion-call token usage for this
	// turn's session; 0 means unlimited. TotalTokensUsed is maintained by
	// ExecutionBudget.
	TokenBudget     int
	TotalTokensUsed int

	// ToolResultCache memoizes a tool call's result by a hash of its name
	// and arguments, keyed and populated by ToolResultCache.
	ToolResultCache map[string]string
}

// Chain composes mws into one Middleware, wrapping right-to-left so the
// first-registered middleware is outermost — matching llm/client.go's
// "registration order for requests, reverse order for responses" contract.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, turn *Turn, req *llm.Request, next Next) (*llm.Response, error) {
		call := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			innerCall := call
			call = func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
				return mw(ctx, turn, req, innerCall)
			}
		}
		return call(ctx, req)
	}
}

// upsertSystemSection finds or appends a marker-delimited section inside the
// first system message's text, matching the source's
// session.system_config.extra_sections upsert-by-header behavior.
func upsertSystemSection(req *llm.Request, header, section string) {
	for i := range req.Messages {
		if req.Messages[i].Role != llm.RoleSystem {
			continue
		}
		text := req.Messages[i].TextContent()
		if idx := strings.Index(text, header); idx != -1 {
			end := strings.Index(text[idx:], "\n\n---\n\n")
			if end == -1 {
				req.Messages[i].Content = []llm.ContentPart{llm.TextPart(text[:idx] + section)}
			} else {
				req.Messages[i].Content = []llm.ContentPart{llm.TextPart(text[:idx] + section + text[idx+end:])}
			}
			return
		}
		req.Messages[i].Content = []llm.ContentPart{llm.TextPart(text + "\n\n---\n\n" + section)}
		return
	}
	req.Messages = append([]llm.Message{llm.SystemMessage(section)}, req.Messages...)
}

// toolCallsOf returns the tool calls requested by resp's message.
func toolCallsOf(resp *llm.Response) []llm.ToolCallData {
	if resp == nil {
		return nil
	}
	return resp.ToolCalls()
}

// rewriteToolCall replaces the first tool call in resp matching pred with a
// differently-named call carrying newArgs, the Go equivalent of the
// source's "rename to wait with a warning" stream rewrite — generalized
// from a mid-stream chunk rewrite to a post-accumulation response rewrite
// since the engine hands middleware a fully accumulated Response, not a
// raw provider delta stream.
func rewriteToolCall(resp *llm.Response, match func(llm.ToolCallData) bool, newName, newArgs string) bool {
	for i := range resp.Message.Content {
		part := &resp.Message.Content[i]
		if part.Kind != llm.ContentToolCall || part.ToolCall == nil {
			continue
		}
		if !match(*part.ToolCall) {
			continue
		}
		part.ToolCall.Name = newName
		part.ToolCall.Arguments = []byte(newArgs)
		return true
	}
	return false
}

// ABOUTME: Tool contract: name, schema, execute, optional per-agent configure
// ABOUTME: hook. Mirrors the engine's own llm.ToolDefinition/RegisteredTool shape.

// Package tool defines the uniform Tool interface shared by every
// blackboard-aware and sandbox-bound tool, plus the universal guardrail
// wrappers (schema validation, sandbox containment, path substitution,
// output truncation).
package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/nanoagent/swarmcore/llm"
)

// Context is the per-agent state injected into a Tool via Configure: the
// agent's identity, its sandbox root, the blackboard, and a hook for
// prompting the human/TUI for input or confirmation.
type Context struct {
	AgentName    string
	IsArchitect  bool
	SandboxRoot  string
	Blackboard   string
	ModelKey     string
	Confirm      func(ctx context.Context, message string) (bool, error)
	RequestInput func(ctx context.Context, question string) (string, error)
}

// Tool is one callable capability exposed to the LLM.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Configurable is implemented by tools that need per-agent context injected
// before first use (the engine calls Configure once per session).
type Configurable interface {
	Configure(c Context)
}

// Definition converts a Tool into the wire-format llm.ToolDefinition the
// provider adapters expect.
func Definition(t Tool) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// Registry is a thread-safe name -> Tool map, mirroring agent.ToolRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) error {
	if t.Name() == "" {
		return fmt.Errorf("tool: name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	return nil
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Remove deletes name, used to build a Worker's excluded-tools palette.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Definitions returns every registered tool's wire definition.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Definition(t))
	}
	return out
}

// Configure applies ctx to every registered tool implementing Configurable.
func (r *Registry) Configure(c Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if cfg, ok := t.(Configurable); ok {
			cfg.Configure(c)
		}
	}
}

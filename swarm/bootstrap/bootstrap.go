// ABOUTME: Shared construction logic for the architect/worker CLI entry
// ABOUTME: points: credential-resolved LLM client, protocol tool registry,
// ABOUTME: and the role-specific middleware chain.

// Package bootstrap assembles the pieces swarm/engine needs (a client, a
// tool registry, a middleware chain) from CLI-level inputs, factored out
// of cmd/architect and cmd/worker the way the teacher keeps cmd/mammoth
// thin and pushes engine construction into the attractor package.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/auth"
	"github.com/nanoagent/swarmcore/swarm/blackboard"
	"github.com/nanoagent/swarmcore/swarm/mailbox"
	"github.com/nanoagent/swarmcore/swarm/middleware"
	"github.com/nanoagent/swarmcore/swarm/registry"
	"github.com/nanoagent/swarmcore/swarm/tool"
)

// knownProviders is the resolution order tried when modelFlag doesn't name
// a provider explicitly via "provider/model" or "provider:variant/model".
var knownProviders = []string{"anthropic", "openai", "gemini"}

// ResolvedModel is what BuildClient figured out from a --model flag: the
// provider key to set on each llm.Request (possibly a "name:sdk" variant)
// and the bare model ID to pass the adapter.
type ResolvedModel struct {
	Provider string
	ModelID  string
}

// BuildClient resolves API keys via resolver, registers every provider it
// has a key for (plus that provider's ":sdk" direct-SDK variant when one
// exists), and parses modelFlag into a ResolvedModel. modelFlag may be a
// bare model ID (provider inferred from the catalog or first available
// key), "provider/model-id", or "provider:sdk/model-id" to pick the
// direct-SDK adapter explicitly.
func BuildClient(resolver *auth.Resolver, modelFlag string) (*llm.Client, ResolvedModel, error) {
	var opts []llm.ClientOption
	registered := map[string]bool{}

	for _, name := range knownProviders {
		key, ok := resolver.Lookup(name)
		if !ok {
			continue
		}
		opts = append(opts, llm.WithProvider(name, llm.NewAdapterForProvider(name, key)))
		registered[name] = true
		if sdk := llm.NewSDKAdapterForProvider(name, key); sdk != nil {
			opts = append(opts, llm.WithProvider(name+":sdk", sdk))
		}
	}
	if len(registered) == 0 {
		return nil, ResolvedModel{}, fmt.Errorf("bootstrap: no provider API key found (checked %v)", knownProviders)
	}

	resolved := parseModelFlag(modelFlag, registered)
	opts = append(opts, llm.WithDefaultProvider(resolved.Provider))
	return llm.NewClient(opts...), resolved, nil
}

func parseModelFlag(modelFlag string, registered map[string]bool) ResolvedModel {
	provider, modelID, hasSlash := cutOnce(modelFlag, '/')
	if hasSlash {
		return ResolvedModel{Provider: provider, ModelID: modelID}
	}

	info := llm.DefaultCatalog().GetModelInfo(modelFlag)
	if info != nil && registered[info.Provider] {
		return ResolvedModel{Provider: info.Provider, ModelID: info.ID}
	}
	for _, name := range knownProviders {
		if registered[name] {
			return ResolvedModel{Provider: name, ModelID: modelFlag}
		}
	}
	return ResolvedModel{ModelID: modelFlag}
}

func cutOnce(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// ProtocolTools is the common tool set every engine session carries
// regardless of role: the blackboard interface plus wait/finish/ask_user.
// spawn_swarm_agent is added separately by the architect entry point only.
func ProtocolTools(store *blackboard.Store, role string) *tool.Registry {
	reg := tool.NewRegistry()
	_ = reg.Register(tool.NewBlackboardTool(store))
	_ = reg.Register(tool.NewWaitTool(store.Root))
	_ = reg.Register(tool.NewFinishTool(store.Root, role))
	_ = reg.Register(tool.NewAskUserTool())
	return reg
}

// StandardMiddleware returns the full, order-sensitive middleware chain
// shared by architect and worker sessions alike; the Turn's IsArchitect
// only changes what the guards do (WatchdogGuard and RequestMonitor act
// only for the Architect, SwarmAgentGuard only for Workers), not which are
// installed.
func StandardMiddleware() middleware.Middleware {
	return middleware.Chain(
		middleware.ParentProcessMonitor(),
		middleware.SwarmState(),
		middleware.NotificationAwareness(),
		middleware.Mailbox(),
		middleware.RequestMonitor(),
		middleware.SemanticDriftGuard(),
		middleware.ContextOverflow(),
		middleware.ToolResultCache(),
		middleware.LoopBreaker(),
		middleware.DependencyGuard(),
		middleware.WatchdogGuard(),
		middleware.ExecutionBudget(),
		middleware.ErrorRecovery(),
		middleware.SwarmAgentGuard(),
		middleware.ActivityLogger(),
	)
}

// NewTurn builds the middleware.Turn shared across a session's iterations.
func NewTurn(agentName string, isArchitect bool, store *blackboard.Store, mb *mailbox.Store, requests *mailbox.RequestStore, reg *registry.Store, parentPID int, parentAgent, missionGoal string, tokenBudget int) *middleware.Turn {
	return &middleware.Turn{
		AgentName:       agentName,
		IsArchitect:     isArchitect,
		BlackboardDir:   store.Root,
		Blackboard:      store,
		Mailbox:         mb,
		Requests:        requests,
		Registry:        reg,
		ParentPID:       parentPID,
		ParentAgentName: parentAgent,
		MissionGoal:     missionGoal,
		TokenBudget:     tokenBudget,
	}
}

// ConsoleConfirm prompts on stdout/stdin for a yes/no answer; the headless
// stand-in for the TAP bridge's interactive confirm, wired onto an
// Architect Turn's Confirm field so RequestMonitor has somewhere to route
// pending permission requests.
func ConsoleConfirm(ctx context.Context, message string) (bool, error) {
	fmt.Println(message)
	fmt.Print("Approve? [y/N] ")
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y", nil
}

// ToolContext builds the per-agent tool.Context injected via reg.Configure.
func ToolContext(agentName string, isArchitect bool, store *blackboard.Store, modelKey string) tool.Context {
	return tool.Context{
		AgentName:   agentName,
		IsArchitect: isArchitect,
		SandboxRoot: store.ResourcesDir,
		Blackboard:  store.Root,
		ModelKey:    modelKey,
		Confirm:     ConsoleConfirm,
		RequestInput: func(ctx context.Context, question string) (string, error) {
			fmt.Println(question)
			var answer string
			fmt.Scanln(&answer)
			return answer, nil
		},
	}
}

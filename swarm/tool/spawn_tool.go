// ABOUTME: spawn_swarm_agent — the Architect-only tool that launches a new
// ABOUTME: Worker process via the supervisor and blocks until it handshakes.

package tool

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nanoagent/swarmcore/swarm/registry"
	"github.com/nanoagent/swarmcore/swarm/supervisor"
)

// SpawnTool launches a named Worker agent as a child process.
type SpawnTool struct {
	reg           *registry.Store
	workerBinary  string
	maxIterations int
	keysPath      string
	ctx           Context
}

// NewSpawnTool binds a spawn_swarm_agent tool to a registry and the path to
// the Worker CLI entry point.
func NewSpawnTool(reg *registry.Store, workerBinary string, maxIterations int, keysPath string) *SpawnTool {
	return &SpawnTool{reg: reg, workerBinary: workerBinary, maxIterations: maxIterations, keysPath: keysPath}
}

func (t *SpawnTool) Configure(c Context) { t.ctx = c }
func (t *SpawnTool) Name() string        { return "spawn_swarm_agent" }
func (t *SpawnTool) Description() string {
	return "Spawn a new Worker agent as a child process, sharing this blackboard. " +
		"Blocks until the new agent reports itself RUNNING or the startup handshake times out."
}

func (t *SpawnTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":          map[string]any{"type": "string", "description": "Unique agent name"},
			"role":          map[string]any{"type": "string"},
			"goal":          map[string]any{"type": "string"},
			"model":         map[string]any{"type": "string"},
			"exclude_tools": map[string]any{"type": "array"},
		},
		"required": []string{"name", "role", "goal"},
	}
}

func (t *SpawnTool) Execute(_ context.Context, args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	role, _ := args["role"].(string)
	goal, _ := args["goal"].(string)
	model, _ := args["model"].(string)

	if name == "" || role == "" || goal == "" {
		return "", fmt.Errorf("spawn_swarm_agent: name, role, and goal are required")
	}
	if existing := t.reg.Get(name); existing != nil && existing.Status != registry.StatusDead {
		return "", fmt.Errorf("spawn_swarm_agent: agent %q already active (status %s)", name, existing.Status)
	}

	var excluded []string
	if raw, ok := args["exclude_tools"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				excluded = append(excluded, s)
			}
		}
	}

	cfg := supervisor.SpawnConfig{
		WorkerBinary:  t.workerBinary,
		Name:          name,
		Role:          role,
		Goal:          goal,
		BlackboardDir: t.ctx.Blackboard,
		Model:         model,
		ExcludedTools: excluded,
		MaxIterations: t.maxIterations,
		ParentPID:     os.Getpid(),
		ParentAgent:   t.ctx.AgentName,
		KeysPath:      t.keysPath,
	}

	pid, err := supervisor.Spawn(t.reg, cfg)
	if err != nil {
		return "", err
	}

	excludedNote := ""
	if len(excluded) > 0 {
		excludedNote = fmt.Sprintf(" (tools excluded: %s)", strings.Join(excluded, ", "))
	}
	return fmt.Sprintf("Spawned agent %q (role=%s, pid=%d) and confirmed RUNNING.%s", name, role, pid, excludedNote), nil
}

// ABOUTME: Coordinator wraps the engine, the Architect's full tool palette,
// ABOUTME: and the optional status server/trace mirror into one run loop.

// Package coordinator owns the Architect's mission lifecycle: it composes
// an engine.Engine from swarm/bootstrap's building blocks, optionally
// mirrors its event stream into a SQLite trace database and serves a
// read-only HTTP status endpoint, and deregisters the Architect from the
// registry when the run ends — the domain-specific reshaping of the
// teacher's spec/agents/swarm.go SwarmOrchestrator.RunLoop.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nanoagent/swarmcore/llm"
	"github.com/nanoagent/swarmcore/swarm/blackboard"
	"github.com/nanoagent/swarmcore/swarm/bootstrap"
	"github.com/nanoagent/swarmcore/swarm/engine"
	"github.com/nanoagent/swarmcore/swarm/mailbox"
	"github.com/nanoagent/swarmcore/swarm/registry"
	"github.com/nanoagent/swarmcore/swarm/tap"
	"github.com/nanoagent/swarmcore/swarm/tool"
)

const architectAgentName = "architect"

// Config configures one Coordinator run.
type Config struct {
	Goal          string
	Model         string
	ModelProvider string
	MaxIterations int
	WorkerBinary  string
	WorkerMaxIter int
	KeysPath      string

	// StatusAddr, if non-empty, starts the read-only status HTTP server
	// (e.g. "127.0.0.1:2390"). Empty disables it.
	StatusAddr string
	// TraceDBPath, if non-empty, mirrors engine events into a SQLite
	// database at this path (e.g. B/logs/trace.db). Empty disables it.
	TraceDBPath string

	// TAPMode, if true, drives the session over the TAP stdio protocol
	// instead of printing a plain console prompt for confirmations: a
	// tap.Bridge over TAPOut/TAPIn (os.Stdout/os.Stdin when nil) emits
	// every engine event as a TAP event line and answers Confirm/
	// RequestInput via the stdin rendezvous instead of ConsoleConfirm.
	TAPMode bool
	TAPOut  io.Writer
	TAPIn   io.Reader
}

// Coordinator owns one Architect session's engine, tool registry, and
// supporting infrastructure (status server, trace store).
type Coordinator struct {
	cfg   Config
	store *blackboard.Store
	reg   *registry.Store
	eng   *engine.Engine

	status *StatusServer
	trace  *TraceStore
	bridge *tap.Bridge
}

// New builds a Coordinator against an already-open blackboard, registry,
// mailbox, and permission-request store, and an already-resolved LLM
// client — the pieces cmd/architect assembles via swarm/bootstrap/swarm/auth.
func New(cfg Config, store *blackboard.Store, reg *registry.Store, mb *mailbox.Store, requests *mailbox.RequestStore, client *llm.Client) (*Coordinator, error) {
	if err := ensureCentralPlan(store, cfg.Goal); err != nil {
		return nil, fmt.Errorf("coordinator: initializing central plan: %w", err)
	}

	tools := bootstrap.ProtocolTools(store, "architect")
	_ = tools.Register(tool.NewSpawnTool(reg, cfg.WorkerBinary, cfg.WorkerMaxIter, cfg.KeysPath))

	toolCtx := bootstrap.ToolContext(architectAgentName, true, store, cfg.ModelProvider)
	turn := bootstrap.NewTurn(architectAgentName, true, store, mb, requests, reg, 0, "", cfg.Goal, 0)
	turn.Confirm = bootstrap.ConsoleConfirm

	c := &Coordinator{cfg: cfg, store: store, reg: reg}

	if cfg.TAPMode {
		out := cfg.TAPOut
		if out == nil {
			out = os.Stdout
		}
		in := cfg.TAPIn
		if in == nil {
			in = os.Stdin
		}
		bridge := tap.New(out, in)
		c.bridge = bridge
		toolCtx.Confirm = bridge.Confirm
		toolCtx.RequestInput = bridge.RequestInput
		turn.Confirm = bridge.Confirm
	}
	tools.Configure(toolCtx)

	eng := engine.New(engine.Config{
		Model:         cfg.Model,
		SystemPrompt:  architectSystemPrompt(cfg.Goal),
		MaxIterations: cfg.MaxIterations,
		Client:        client,
		Tools:         tools,
		Middleware:    bootstrap.StandardMiddleware(),
		Turn:          turn,
	})
	c.eng = eng

	if cfg.TraceDBPath != "" {
		trace, err := OpenTraceStore(cfg.TraceDBPath)
		if err != nil {
			return nil, fmt.Errorf("coordinator: opening trace store: %w", err)
		}
		c.trace = trace
		go trace.Mirror(eng.Events.Subscribe())
	}

	if cfg.StatusAddr != "" {
		c.status = NewStatusServer(reg, store)
	}

	return c, nil
}

// Run registers the Architect as RUNNING, starts the status server (if
// configured), drives the engine to completion, and always deregisters and
// tears down supporting infrastructure on the way out.
func (c *Coordinator) Run(ctx context.Context) (string, error) {
	if err := c.reg.Register(architectAgentName, "architect", os.Getpid()); err != nil {
		return "", fmt.Errorf("coordinator: registering architect: %w", err)
	}
	defer func() { _ = c.reg.Deregister(architectAgentName, "architect exited") }()

	if c.status != nil {
		go c.status.ListenAndServe(c.cfg.StatusAddr) //nolint:errcheck // errors are discarded inside, not fatal to the run
		defer c.status.Close()
	}
	if c.trace != nil {
		defer c.trace.Close()
	}
	if c.bridge != nil {
		c.bridge.Start()
		go c.bridge.Mirror(c.eng.Events.Subscribe())
	}
	defer c.eng.Events.Close()

	return c.eng.Run(ctx, "")
}

// ensureCentralPlan creates an empty, valid central_plan.md when the
// blackboard doesn't already carry one — the fresh-run case, or a
// --keep-history run against a directory that was never initialized.
func ensureCentralPlan(store *blackboard.Store, goal string) error {
	if _, err := store.ReadIndex(blackboard.CentralPlanFile); err == nil {
		return nil
	}
	plan := blackboard.Plan{
		MissionGoal: goal,
		Status:      blackboard.MissionInProgress,
		Summary:     "Mission started; no tasks planned yet.",
		Tasks:       []*blackboard.Task{},
	}
	body, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	content := fmt.Sprintf(
		"---\nname: central_plan\ndescription: The swarm's single source of truth for task state.\nusage_policy: Only the Architect creates this file; all agents may read it; updates go through update_task/update_index with a CAS checksum.\n---\n\n```json\n%s\n```\n",
		body,
	)
	return store.CreateIndex(blackboard.CentralPlanFile, content)
}

func architectSystemPrompt(goal string) string {
	return fmt.Sprintf(
		"You are the Architect of a multi-agent swarm. Your mission:\n%s\n\n"+
			"Break the mission into tasks in the central plan, spawn Workers with "+
			"spawn_swarm_agent to execute them, monitor progress via the blackboard and "+
			"the live registry injected into your system prompt, and call finish only "+
			"once every task is DONE.",
		goal,
	)
}

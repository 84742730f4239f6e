// ABOUTME: CLI entrypoint for a Worker agent process, spawned by the
// ABOUTME: Architect's spawn_swarm_agent tool via swarm/supervisor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nanoagent/swarmcore/swarm/auth"
	"github.com/nanoagent/swarmcore/swarm/blackboard"
	"github.com/nanoagent/swarmcore/swarm/bootstrap"
	"github.com/nanoagent/swarmcore/swarm/engine"
	"github.com/nanoagent/swarmcore/swarm/mailbox"
	"github.com/nanoagent/swarmcore/swarm/registry"
	"github.com/nanoagent/swarmcore/swarm/tool"
)

var version = "dev"

// config is the flag set swarm/supervisor.Spawn constructs for a Worker
// child process, plus the optional --mcp-server-id/--mcp-server-cmd pair,
// which Spawn does not pass.
type config struct {
	name            string
	role            string
	goal            string
	blackboardDir   string
	parentPID       int
	parentAgentName string
	maxIterations   int
	model           string
	keysPath        string
	excludeTools    string
	mcpServerID     string
	mcpServerCmd    string
}

func main() {
	bootstrap.LoadDotEnv(".env")
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	os.Exit(run(cfg))
}

func parseFlags(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.StringVar(&cfg.name, "name", "", "unique agent name (required)")
	fs.StringVar(&cfg.role, "role", "", "agent role (required)")
	fs.StringVar(&cfg.goal, "goal", "", "assigned goal (required)")
	fs.StringVar(&cfg.blackboardDir, "blackboard", "", "shared blackboard root directory (required)")
	fs.IntVar(&cfg.parentPID, "parent-pid", 0, "PID of the spawning parent agent")
	fs.StringVar(&cfg.parentAgentName, "parent-agent-name", "", "name of the spawning parent agent")
	fs.IntVar(&cfg.maxIterations, "max-iterations", 0, "iteration budget (0 = unlimited)")
	fs.StringVar(&cfg.model, "model", "", "model ID, optionally \"provider/model\" or \"provider:sdk/model\"")
	fs.StringVar(&cfg.keysPath, "keys", "", "path to a keys.json credential file")
	fs.StringVar(&cfg.excludeTools, "exclude-tools", "", "comma-separated tool names to exclude")
	fs.StringVar(&cfg.mcpServerID, "mcp-server-id", "", "prefix for tools discovered from an MCP server (paired with --mcp-server-cmd)")
	fs.StringVar(&cfg.mcpServerCmd, "mcp-server-cmd", "", "command and args (space-separated) launching an MCP server over stdio")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "worker %s — runs one Worker agent's ReAct loop against a shared blackboard\n\n", version)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.name == "" || cfg.role == "" || cfg.goal == "" || cfg.blackboardDir == "" {
		return cfg, fmt.Errorf("--name, --role, --goal, and --blackboard are required")
	}
	return cfg, nil
}

func run(cfg config) int {
	store, err := blackboard.Open(cfg.blackboardDir, templatesDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening blackboard: %v\n", err)
		return 1
	}
	reg, err := registry.Open(filepath.Join(cfg.blackboardDir, "registry.json"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening registry: %v\n", err)
		return 1
	}
	mb, err := mailbox.Open(filepath.Join(cfg.blackboardDir, "mailboxes"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening mailbox: %v\n", err)
		return 1
	}
	requests, err := mailbox.OpenRequests(filepath.Join(cfg.blackboardDir, "requests"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening permission requests: %v\n", err)
		return 1
	}

	resolver, err := auth.NewResolver(cfg.keysPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: resolving credentials: %v\n", err)
		return 1
	}
	client, resolved, err := bootstrap.BuildClient(resolver, cfg.model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer client.Close()

	pid := os.Getpid()
	if err := reg.Register(cfg.name, cfg.role, pid); err != nil {
		fmt.Fprintf(os.Stderr, "error: registering agent: %v\n", err)
		return 1
	}
	defer func() { _ = reg.Deregister(cfg.name, "worker exited") }()

	tools := bootstrap.ProtocolTools(store, cfg.role)
	for _, name := range strings.Split(cfg.excludeTools, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			tools.Remove(name)
		}
	}
	if cfg.mcpServerID != "" && cfg.mcpServerCmd != "" {
		if err := registerMCPTools(tools, cfg.mcpServerID, cfg.mcpServerCmd); err != nil {
			fmt.Fprintf(os.Stderr, "error: connecting to MCP server %q: %v\n", cfg.mcpServerID, err)
			return 1
		}
	}
	tools.Configure(bootstrap.ToolContext(cfg.name, false, store, resolved.Provider))

	turn := bootstrap.NewTurn(cfg.name, false, store, mb, requests, reg, cfg.parentPID, cfg.parentAgentName, cfg.goal, 0)

	eng := engine.New(engine.Config{
		Model:         resolved.ModelID,
		SystemPrompt:  workerSystemPrompt(cfg),
		MaxIterations: cfg.maxIterations,
		Client:        client,
		Tools:         tools,
		Middleware:    bootstrap.StandardMiddleware(),
		Turn:          turn,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	output, runErr := eng.Run(ctx, "")
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		return 1
	}
	fmt.Println(output)
	return 0
}

// registerMCPTools connects to the MCP server described by id/cmdline (a
// space-separated command and its arguments) and registers one Tool per
// remote tool the server advertises.
func registerMCPTools(reg *tool.Registry, id, cmdline string) error {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return fmt.Errorf("empty --mcp-server-cmd")
	}
	discovered, err := tool.DiscoverMCPTools(context.Background(), tool.MCPServerSpec{
		ID:      id,
		Command: fields[0],
		Args:    fields[1:],
	})
	if err != nil {
		return err
	}
	for _, t := range discovered {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func workerSystemPrompt(cfg config) string {
	return fmt.Sprintf(
		"You are %q, a Worker agent in a multi-agent swarm with role %q.\n\n"+
			"Your assigned goal:\n%s\n\n"+
			"Collaborate through the shared blackboard (global_indices/ for plans and "+
			"signals, resources/ for artifacts). Claim tasks assigned to you, mark them "+
			"IN_PROGRESS before starting and DONE when finished, and call finish once your "+
			"assigned work is complete.",
		cfg.name, cfg.role, cfg.goal,
	)
}

func templatesDir() string {
	return os.Getenv("SWARMCORE_TEMPLATES_DIR")
}

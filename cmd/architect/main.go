// ABOUTME: CLI entrypoint for the Architect agent: the swarm's mission
// ABOUTME: owner, which plans, spawns Workers, and supervises to completion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nanoagent/swarmcore/swarm/auth"
	"github.com/nanoagent/swarmcore/swarm/blackboard"
	"github.com/nanoagent/swarmcore/swarm/bootstrap"
	"github.com/nanoagent/swarmcore/swarm/coordinator"
	"github.com/nanoagent/swarmcore/swarm/mailbox"
	"github.com/nanoagent/swarmcore/swarm/registry"
)

var version = "dev"

type config struct {
	goal          string
	blackboardDir string
	model         string
	keysPath      string
	workerBinary  string
	maxIterations int
	workerMaxIter int
	keepHistory   bool
	showVersion   bool
	statusAddr    string
	traceDB       string
	tapMode       bool
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
	if cfg.showVersion {
		fmt.Printf("architect %s\n", version)
		os.Exit(0)
	}
	os.Exit(run(cfg))
}

func parseFlags(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("architect", flag.ContinueOnError)
	fs.StringVar(&cfg.goal, "goal", "", "mission goal (required)")
	fs.StringVar(&cfg.blackboardDir, "blackboard", ".blackboard", "blackboard root directory")
	fs.StringVar(&cfg.model, "model", "", "model ID, optionally \"provider/model\" or \"provider:sdk/model\"")
	fs.StringVar(&cfg.keysPath, "keys", "", "path to a keys.json credential file")
	fs.StringVar(&cfg.workerBinary, "worker-binary", "", "path to the worker binary (default: sibling of this executable)")
	fs.IntVar(&cfg.maxIterations, "max-iterations", 0, "Architect's own iteration budget (0 = unlimited)")
	fs.IntVar(&cfg.workerMaxIter, "worker-max-iterations", 0, "iteration budget handed to spawned Workers (0 = unlimited)")
	fs.BoolVar(&cfg.keepHistory, "keep-history", false, "keep an existing blackboard instead of starting fresh")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")
	fs.StringVar(&cfg.statusAddr, "status-addr", "", "address for the read-only status HTTP server, e.g. 127.0.0.1:2390 (empty disables it)")
	fs.StringVar(&cfg.traceDB, "trace-db", "", "path to a SQLite database mirroring engine events (empty disables it)")
	fs.BoolVar(&cfg.tapMode, "tap", false, "drive the session over the TAP stdio protocol instead of a console confirmation prompt")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "architect %s — owns a mission, plans it, and supervises Workers to completion\n\n", version)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.goal == "" {
		return cfg, fmt.Errorf("--goal is required")
	}
	return cfg, nil
}

func run(cfg config) int {
	if !cfg.keepHistory {
		if err := os.RemoveAll(cfg.blackboardDir); err != nil {
			fmt.Fprintf(os.Stderr, "error: clearing blackboard for a fresh run: %v\n", err)
			return 1
		}
	}

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

	workerBinary := cfg.workerBinary
	if workerBinary == "" {
		workerBinary = defaultWorkerBinary()
	}

	coord, err := coordinator.New(coordinator.Config{
		Goal:          cfg.goal,
		Model:         resolved.ModelID,
		ModelProvider: resolved.Provider,
		MaxIterations: cfg.maxIterations,
		WorkerBinary:  workerBinary,
		WorkerMaxIter: cfg.workerMaxIter,
		KeysPath:      cfg.keysPath,
		StatusAddr:    cfg.statusAddr,
		TraceDBPath:   cfg.traceDB,
		TAPMode:       cfg.tapMode,
	}, store, reg, mb, requests, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	output, runErr := coord.Run(ctx)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		return 1
	}
	// In TAP mode stdout is reserved for the NDJSON event stream; the
	// engine's own "finish" event already carries the final output.
	if !cfg.tapMode {
		fmt.Println(output)
	}
	return 0
}

func templatesDir() string {
	return os.Getenv("SWARMCORE_TEMPLATES_DIR")
}

func defaultWorkerBinary() string {
	exe, err := os.Executable()
	if err != nil {
		return "worker"
	}
	return filepath.Join(filepath.Dir(exe), "worker")
}

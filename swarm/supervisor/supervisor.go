// ABOUTME: Process supervisor: spawns Worker subprocesses, redirects logs,
// ABOUTME: waits for the STARTING->RUNNING registry handshake, and reaps
// ABOUTME: failed starts. No pack example does real OS-process supervision
// ABOUTME: (see DESIGN.md L9); this is a justified direct os/exec use.

// Package supervisor launches and tracks Worker agent processes.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nanoagent/swarmcore/swarm/registry"
)

// SpawnConfig describes one Worker process to launch.
type SpawnConfig struct {
	// WorkerBinary is the path to the worker CLI entry point.
	WorkerBinary  string
	Name          string
	Role          string
	Goal          string
	BlackboardDir string
	Model         string
	ExcludedTools []string
	MaxIterations int
	ParentPID     int
	ParentAgent   string
	KeysPath      string
}

const handshakeTimeout = 15 * time.Second
const handshakePoll = 500 * time.Millisecond

// Spawn launches a Worker as a detached child process with stdout/stderr
// redirected to B/logs/{name}.log, writes an initial STARTING registry
// row, then polls the registry until the child flips itself to RUNNING.
// On handshake timeout the child is terminated, marked DEAD, and an error
// is returned.
func Spawn(reg *registry.Store, cfg SpawnConfig) (pid int, err error) {
	logDir := filepath.Join(cfg.BlackboardDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return 0, err
	}
	logPath := filepath.Join(logDir, cfg.Name+".log")
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("supervisor: open log %s: %w", logPath, err)
	}
	defer logFile.Close()

	args := []string{
		"--name", cfg.Name,
		"--role", cfg.Role,
		"--goal", cfg.Goal,
		"--blackboard", cfg.BlackboardDir,
		"--parent-pid", fmt.Sprintf("%d", cfg.ParentPID),
		"--parent-agent-name", cfg.ParentAgent,
	}
	if cfg.MaxIterations > 0 {
		args = append(args, "--max-iterations", fmt.Sprintf("%d", cfg.MaxIterations))
	}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.KeysPath != "" {
		args = append(args, "--keys", cfg.KeysPath)
	}
	if len(cfg.ExcludedTools) > 0 {
		joined := cfg.ExcludedTools[0]
		for _, t := range cfg.ExcludedTools[1:] {
			joined += "," + t
		}
		args = append(args, "--exclude-tools", joined)
	}

	cmd := exec.Command(cfg.WorkerBinary, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	// New process group so the supervisor can later kill the whole tree
	// (e.g. a worker's own spawned tool subprocesses) with one signal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("supervisor: start %s: %w", cfg.WorkerBinary, err)
	}
	pid = cmd.Process.Pid

	// Detach: we don't want the parent to block in Wait(); a reaper
	// goroutine still needs to consume the exit status to avoid zombies.
	go func() {
		_ = cmd.Wait()
	}()

	if err := reg.RegisterStartingWithGoal(cfg.Name, cfg.Role, cfg.Goal, pid); err != nil {
		killProcessGroup(pid)
		return 0, fmt.Errorf("supervisor: register starting: %w", err)
	}

	if !waitForRunning(reg, cfg.Name, handshakeTimeout) {
		killProcessGroup(pid)
		reg.Deregister(cfg.Name, "failed to reach RUNNING within handshake timeout")
		return 0, fmt.Errorf("agent %q failed to start within %s; process terminated", cfg.Name, handshakeTimeout)
	}

	return pid, nil
}

func waitForRunning(reg *registry.Store, name string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e := reg.Get(name); e != nil && e.Status == registry.StatusRunning {
			return true
		}
		time.Sleep(handshakePoll)
	}
	return false
}

// killProcessGroup terminates a spawned worker and its process group, so
// any grandchildren (e.g. browser automation drivers) are reaped too.
func killProcessGroup(pid int) {
	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(200 * time.Millisecond)
	syscall.Kill(-pid, syscall.SIGKILL)
}

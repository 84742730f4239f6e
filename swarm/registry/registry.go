// ABOUTME: Agent registry: atomic registry.json read-modify-write with PID
// ABOUTME: liveness verification and a grace period for just-spawned agents.

// Package registry tracks the live set of swarm agent processes, keyed by
// agent name, in a single JSON file guarded by filelock.
package registry

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nanoagent/swarmcore/swarm/filelock"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusIdle     Status = "IDLE"
	StatusDead     Status = "DEAD"
)

// startingGracePeriod is how long a STARTING agent is exempt from PID
// liveness checks, giving a just-spawned process time to call
// Register itself.
const startingGracePeriod = 30 * time.Second

const lockTimeout = 10 * time.Second

// Entry is one agent's registry row.
type Entry struct {
	PID        int     `json:"pid"`
	Role       string  `json:"role"`
	Goal       string  `json:"goal,omitempty"`
	Status     Status  `json:"status"`
	StartTime  float64 `json:"start_time"`
	SpawnTime  float64 `json:"spawn_time,omitempty"`
	ExitTime   float64 `json:"exit_time,omitempty"`
	ExitReason string  `json:"exit_reason,omitempty"`

	// VerifiedStatus is a transient annotation set only by VerifyAndSyncPIDs,
	// never persisted as the row's own Status.
	VerifiedStatus Status `json:"verified_status,omitempty"`
}

// Registry is the full name -> Entry map.
type Registry map[string]*Entry

// Store is bound to one registry.json path.
type Store struct {
	Path string
}

// Open ensures registry.json exists (empty object) and returns a bound Store.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			return nil, err
		}
	}
	return &Store{Path: path}, nil
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Read loads the full registry under a shared lock. Returns an empty
// Registry (never nil, never an error) if the file is missing or corrupt,
// matching the source's defensive "always return something usable" policy.
func (s *Store) Read() Registry {
	var reg Registry
	err := filelock.WithLock(s.Path, filelock.Shared, os.O_RDONLY, 0o644, lockTimeout, func(f *os.File) error {
		data, err := os.ReadFile(f.Name())
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, &reg)
	})
	if err != nil || reg == nil {
		return Registry{}
	}
	return reg
}

// readModifyWrite loads, applies mutate, and writes back under one
// exclusive lock acquisition, matching the source's _read_and_write helper.
func (s *Store) readModifyWrite(mutate func(Registry)) error {
	return filelock.WithLock(s.Path, filelock.Exclusive, os.O_RDWR|os.O_CREATE, 0o644, lockTimeout, func(f *os.File) error {
		data, err := os.ReadFile(f.Name())
		if err != nil {
			return err
		}
		reg := Registry{}
		if len(data) > 0 {
			json.Unmarshal(data, &reg) //nolint:errcheck // corrupt file falls back to empty registry
		}
		mutate(reg)
		out, err := json.MarshalIndent(reg, "", "  ")
		if err != nil {
			return err
		}
		if _, err := f.Seek(0, 0); err != nil {
			return err
		}
		if _, err := f.Write(out); err != nil {
			return err
		}
		return f.Truncate(int64(len(out)))
	})
}

// Register marks an agent RUNNING, preserving any spawn_time a supervisor
// already wrote for grace-period tracking.
func (s *Store) Register(name, role string, pid int) error {
	return s.readModifyWrite(func(reg Registry) {
		existing := reg[name]
		var spawnTime float64
		if existing != nil {
			spawnTime = existing.SpawnTime
		}
		reg[name] = &Entry{
			PID:       pid,
			Role:      role,
			Status:    StatusRunning,
			StartTime: nowUnix(),
			SpawnTime: spawnTime,
		}
	})
}

// RegisterStarting writes the initial STARTING row a supervisor creates
// before a child process has had a chance to call Register itself.
func (s *Store) RegisterStarting(name, role string, pid int) error {
	return s.RegisterStartingWithGoal(name, role, "", pid)
}

// RegisterStartingWithGoal is RegisterStarting plus the mission goal the
// supervisor handed the child, carried for system-prompt/status display.
func (s *Store) RegisterStartingWithGoal(name, role, goal string, pid int) error {
	return s.readModifyWrite(func(reg Registry) {
		reg[name] = &Entry{
			PID:       pid,
			Role:      role,
			Goal:      goal,
			Status:    StatusStarting,
			StartTime: nowUnix(),
			SpawnTime: nowUnix(),
		}
	})
}

// Deregister marks an agent DEAD; idempotent.
func (s *Store) Deregister(name, reason string) error {
	return s.readModifyWrite(func(reg Registry) {
		if e, ok := reg[name]; ok {
			e.Status = StatusDead
			e.ExitTime = nowUnix()
			e.ExitReason = reason
		}
	})
}

// Update patches arbitrary fields on an existing agent entry via a
// read-modify-write closure.
func (s *Store) Update(name string, fn func(*Entry)) error {
	return s.readModifyWrite(func(reg Registry) {
		if e, ok := reg[name]; ok {
			fn(e)
		}
	})
}

// Get returns one agent's entry, or nil if unknown.
func (s *Store) Get(name string) *Entry {
	return s.Read()[name]
}

// IsActive reports whether name is RUNNING, IDLE, or STARTING.
func (s *Store) IsActive(name string) bool {
	e := s.Get(name)
	if e == nil {
		return false
	}
	return e.Status == StatusRunning || e.Status == StatusIdle || e.Status == StatusStarting
}

// pidAlive sends signal 0 to probe whether pid refers to a live process,
// without actually signaling it.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscallSigZero()) == nil
}

// VerifyAndSyncPIDs verifies every non-DEAD entry's PID, marking absent
// ones DEAD, and returns the annotated snapshot used for system-prompt
// injection by the SwarmState middleware. DEAD rows are never re-verified
// or re-timestamped; STARTING rows younger than the grace period are left
// alone.
func (s *Store) VerifyAndSyncPIDs() Registry {
	report := Registry{}
	err := s.readModifyWrite(func(reg Registry) {
		now := nowUnix()
		for name, e := range reg {
			if e.Status == StatusDead {
				copyEntry := *e
				copyEntry.VerifiedStatus = StatusDead
				report[name] = &copyEntry
				continue
			}
			if e.Status == StatusStarting {
				spawn := e.SpawnTime
				if spawn == 0 {
					spawn = e.StartTime
				}
				if now-spawn < startingGracePeriod.Seconds() {
					copyEntry := *e
					copyEntry.VerifiedStatus = StatusStarting
					report[name] = &copyEntry
					continue
				}
			}

			alive := pidAlive(e.PID)
			if !alive {
				e.Status = StatusDead
				if e.ExitTime == 0 {
					e.ExitTime = now
				}
				if e.ExitReason == "" {
					e.ExitReason = "PID not found (verified by SwarmStateMiddleware)"
				}
			}
			copyEntry := *e
			if alive {
				copyEntry.VerifiedStatus = StatusRunning
			} else {
				copyEntry.VerifiedStatus = StatusDead
			}
			report[name] = &copyEntry
		}
	})
	if err != nil {
		return Registry{}
	}
	return report
}

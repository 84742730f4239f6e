// ABOUTME: Timeout-bounded advisory file locks used to serialize blackboard access.
// ABOUTME: Works across processes (OS-level flock) and off the main goroutine.

// Package filelock provides scoped, timeout-bounded advisory file locking.
//
// Every blackboard artifact (an index file, registry.json, a mailbox file)
// is protected by an exclusive or shared lock on its own path. Locks are
// acquired with a polling loop rather than a blocking syscall so that a
// caller on any goroutine can bound how long it is willing to wait; Go has
// no per-goroutine signal/alarm mechanism to interrupt a blocked flock(2)
// call, so polling with LOCK_NB is the portable way to honor a timeout.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned when a lock could not be acquired within the
// configured timeout.
var ErrTimeout = errors.New("filelock: timed out acquiring lock")

// Mode selects the lock flavor.
type Mode int

const (
	// Exclusive excludes all other exclusive and shared holders.
	Exclusive Mode = iota
	// Shared allows other shared holders but excludes exclusive ones.
	Shared
)

const pollInterval = 50 * time.Millisecond

// Lock represents a held advisory lock on an open file descriptor. Release
// it with Unlock; the zero value is not usable.
type Lock struct {
	file *os.File
	path string
}

// Acquire opens (creating if necessary) the file at path and blocks, polling
// every 50ms, until an advisory lock of the given mode is obtained or
// timeout elapses. The returned Lock must be released with Unlock on every
// exit path (success, error, panic via defer).
//
// flags lets the caller pick the open mode (os.O_RDONLY for a pure reader,
// os.O_RDWR|os.O_CREATE for a read-modify-write cycle); perm is the file
// mode used only when the file does not yet exist.
func Acquire(path string, mode Mode, flags int, perm os.FileMode, timeout time.Duration) (*Lock, error) {
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return nil, fmt.Errorf("filelock: open %s: %w", path, err)
	}

	how := unix.LOCK_EX
	if mode == Shared {
		how = unix.LOCK_SH
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: f, path: path}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			f.Close()
			return nil, fmt.Errorf("filelock: flock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, path, timeout)
		}
		time.Sleep(pollInterval)
	}
}

// File returns the underlying open file descriptor, valid until Unlock.
func (l *Lock) File() *os.File {
	return l.file
}

// Unlock releases the advisory lock and closes the file descriptor. Safe to
// call once; subsequent calls are no-ops.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}

// WithLock acquires a lock on path, invokes fn with the open file, and
// always releases the lock afterward regardless of how fn returns.
func WithLock(path string, mode Mode, flags int, perm os.FileMode, timeout time.Duration, fn func(f *os.File) error) error {
	lock, err := Acquire(path, mode, flags, perm, timeout)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return fn(lock.file)
}

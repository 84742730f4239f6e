// ABOUTME: Signal-zero liveness probe, isolated so the syscall import stays
// ABOUTME: confined to one small file.

package registry

import "syscall"

// syscallSigZero is signal 0: sending it never actually signals the
// process, but the OS still validates that the PID exists and is
// reachable, so Signal's error return is a pure liveness check.
func syscallSigZero() syscall.Signal {
	return syscall.Signal(0)
}

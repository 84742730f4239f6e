// ABOUTME: Typed error hierarchy for blackboard operations, modeled on the
// ABOUTME: llm package's SDKError/IsRetryable convention.

package blackboard

import (
	"fmt"
)

// CASConflict is returned when an update_index/update_task call's
// expected_checksum does not match the on-disk content. The caller's
// only valid recovery is to re-read and retry.
type CASConflict struct {
	Filename        string
	CurrentChecksum string
}

func (e *CASConflict) Error() string {
	return fmt.Sprintf("CAS failed for %s: current checksum %s", e.Filename, e.CurrentChecksum)
}

// IsRetryable reports that CAS conflicts are always caller-retryable,
// mirroring llm.SDKError's capability-check convention.
func (e *CASConflict) IsRetryable() bool { return true }

// AccessDeniedError is returned when a non-Architect caller attempts to
// write outside the sandbox, or to mutate a task assigned to someone else.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string { return "access denied: " + e.Reason }

// StatusTransitionError is returned for a disallowed task status move.
type StatusTransitionError struct {
	Task     int
	From, To TaskStatus
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %q -> %q for task #%d", e.From, e.To, e.Task)
}

// DependencyNotSatisfiedError is returned when claiming a task whose
// dependency is not yet DONE.
type DependencyNotSatisfiedError struct {
	Task, Dependency int
	DepStatus        TaskStatus
}

func (e *DependencyNotSatisfiedError) Error() string {
	return fmt.Sprintf("cannot claim task #%d: dependency #%d is %q, not DONE", e.Task, e.Dependency, e.DepStatus)
}

// PlanViolationError wraps a Plan.Validate() failure.
type PlanViolationError struct {
	Reason string
}

func (e *PlanViolationError) Error() string { return "invalid central plan: " + e.Reason }

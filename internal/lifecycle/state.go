package lifecycle

import (
	"errors"
	"fmt"
)

// State is the declared target state of a VM. The Executor's job is to
// drive libvirt toward this state idempotently.
type State string

const (
	// StateAbsent means the domain is undefined and its volumes are gone.
	StateAbsent State = "absent"
	// StatePresent means the domain is defined but not necessarily running.
	StatePresent State = "present"
	// StateRunning means the domain is defined and running.
	StateRunning State = "running"
	// StateStopped means the domain is defined and shut off.
	StateStopped State = "stopped"
)

// ParseState parses a target state name.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateAbsent, StatePresent, StateRunning, StateStopped:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown target state %q (must be absent, present, running, or stopped)", s)
	}
}

// Domain states (from libvirt VIR_DOMAIN_* constants).
const (
	domainStateRunning = 1
	domainStateShutoff = 5
)

// StateToString converts a libvirt domain state to a human-readable string.
func StateToString(state int32) string {
	switch state {
	case 0:
		return "no state"
	case 1:
		return "running"
	case 2:
		return "blocked"
	case 3:
		return "paused"
	case 4:
		return "shutdown"
	case 5:
		return "shutoff"
	case 6:
		return "crashed"
	case 7:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// ExecutionError wraps a failed libvirt or storage operation with enough
// context to diagnose which VM and which step failed.
type ExecutionError struct {
	VM  string
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("vm %q: %s: %v", e.VM, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError reports whether err is an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

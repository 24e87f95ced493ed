package pool

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by Submit after Terminate, and resolves every
	// task still pending when the pool terminates.
	ErrClosed = errors.New("pool: terminated")
	// ErrCanceled resolves a queued task removed by Cancel.
	ErrCanceled = errors.New("pool: task canceled")
	// ErrUnknownKind is returned when a request has no Fn and no handler is
	// registered for its kind.
	ErrUnknownKind = errors.New("pool: no handler for task kind")
)

// QueueFullError is returned by Submit when MaxQueueSize tasks are queued.
// Callers should retry later or shed load.
type QueueFullError struct {
	Kind  string
	Limit int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("pool: queue full (%d tasks), rejected %q task", e.Limit, e.Kind)
}

// TimeoutError resolves a task that outlived TaskTimeout. Dispatched is true
// when a unit was already running it; that unit keeps running.
type TimeoutError struct {
	TaskID     string
	Kind       string
	Timeout    time.Duration
	Dispatched bool
}

func (e *TimeoutError) Error() string {
	state := "queued"
	if e.Dispatched {
		state = "running"
	}
	return fmt.Sprintf("pool: task %s (%s) timed out after %s while %s", e.TaskID, e.Kind, e.Timeout, state)
}

// Timeout reports true, matching the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// UnitFailureError resolves a task whose unit crashed while running it.
// The task is lost; resubmit it if still needed.
type UnitFailureError struct {
	UnitID int
	TaskID string
	Cause  string
}

func (e *UnitFailureError) Error() string {
	return fmt.Sprintf("pool: unit %d failed running task %s: %s", e.UnitID, e.TaskID, e.Cause)
}

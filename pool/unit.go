package pool

import (
	"context"
	"fmt"
)

type unitState int

const (
	unitIdle unitState = iota
	unitBusy
	unitTerminated
)

func (s unitState) String() string {
	switch s {
	case unitIdle:
		return "idle"
	case unitBusy:
		return "busy"
	default:
		return "terminated"
	}
}

// message is the task-in half of the unit protocol.
type message struct {
	taskID string
	kind   string
	input  any
	fn     Handler
}

// reply is the result-out half. fatal marks a unit that is exiting.
type reply struct {
	unitID int
	taskID string
	data   any
	err    error
	fatal  bool
}

// unit is one execution context. The goroutine only reads id, in and ctx;
// state and current are owned by the pool under Pool.mu.
type unit struct {
	id  int
	in  chan message
	ctx context.Context

	state   unitState
	current *task
}

// run executes messages until the inbox closes. A panic or runtime.Goexit
// in a handler ends the unit; the deferred report tells the pool which task
// was in flight.
func (u *unit) run(out chan<- reply, stopped <-chan struct{}) {
	var (
		cur   message
		busy  bool
		clean bool
	)
	defer func() {
		if clean {
			return
		}
		cause := "unit exited unexpectedly"
		if r := recover(); r != nil {
			cause = fmt.Sprintf("panic: %v", r)
		}
		r := reply{unitID: u.id, fatal: true}
		if busy {
			r.taskID = cur.taskID
		}
		r.err = &UnitFailureError{UnitID: u.id, TaskID: r.taskID, Cause: cause}
		send(out, stopped, r)
	}()

	for m := range u.in {
		cur, busy = m, true
		data, err := m.fn(u.ctx, m.input)
		busy = false
		send(out, stopped, reply{unitID: u.id, taskID: m.taskID, data: data, err: err})
	}
	clean = true
}

func send(out chan<- reply, stopped <-chan struct{}, r reply) {
	select {
	case out <- r:
	case <-stopped:
	}
}

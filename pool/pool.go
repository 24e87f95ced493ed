package pool

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IvanBrykalov/computecore/internal/util"
)

// Pool runs tasks on a bounded, self-healing set of execution units.
// All methods are safe for concurrent use.
type Pool struct {
	opt Options

	// ---- guarded by mu ----
	mu       sync.Mutex
	queue    taskQueue
	tasks    map[string]*task // queued or assigned
	units    map[int]*unit
	idle     []*unit // LIFO: the most recently used unit is reused first
	nextUnit int
	seq      uint64
	closed   bool

	replies  chan reply
	stopped  chan struct{} // closed once units are gone; unblocks late replies
	loopDone chan struct{}
	unitsWG  sync.WaitGroup
	ctx      context.Context // handed to handlers, cancelled on Terminate
	cancel   context.CancelFunc

	// ---- lock-free counters ----
	_         util.CacheLinePad
	submitted util.Counter
	completed util.Counter
	failed    util.Counter
	timedOut  util.Counter
	rejected  util.Counter
	crashes   util.Counter
}

// New validates opt, starts MinUnits units and the reply loop.
func New(opt Options) (*Pool, error) {
	opt.applyDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		opt:      opt,
		tasks:    make(map[string]*task),
		units:    make(map[int]*unit),
		replies:  make(chan reply, opt.MaxUnits),
		stopped:  make(chan struct{}),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	p.mu.Lock()
	for i := 0; i < opt.MinUnits; i++ {
		p.spawnLocked()
	}
	p.reportLocked()
	p.mu.Unlock()

	go p.loop()
	opt.Logger.Info("pool started",
		"min_units", opt.MinUnits,
		"max_units", opt.MaxUnits,
		"max_queue_size", opt.MaxQueueSize,
		"task_timeout", opt.TaskTimeout,
	)
	return p, nil
}

// Submit queues a task and returns its Future. It never blocks: a full
// queue yields *QueueFullError immediately. ctx is not retained; use
// Future.Wait to bound the wait and Cancel to withdraw a queued task.
func (p *Pool) Submit(ctx context.Context, req Request) (*Future, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn := req.Fn
	if fn == nil {
		fn = p.opt.Handlers[req.Kind]
		if fn == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.queue.Len() >= p.opt.MaxQueueSize {
		p.rejected.Inc()
		p.opt.Metrics.Rejected(req.Kind)
		p.opt.Logger.Warn("task rejected, queue full", "kind", req.Kind, "queued", p.queue.Len())
		return nil, &QueueFullError{Kind: req.Kind, Limit: p.opt.MaxQueueSize}
	}

	p.seq++
	t := &task{
		id:         uuid.NewString(),
		kind:       req.Kind,
		input:      req.Input,
		priority:   req.Priority,
		fn:         fn,
		enqueuedAt: time.Now(),
		seq:        p.seq,
		state:      taskQueued,
	}
	t.future = newFuture(t.id)
	t.timer = time.AfterFunc(p.opt.TaskTimeout, func() { p.expire(t) })

	p.tasks[t.id] = t
	heap.Push(&p.queue, t)
	p.submitted.Inc()
	p.opt.Metrics.Submitted(t.kind)
	p.opt.Logger.Debug("task queued", "task_id", t.id, "kind", t.kind, "priority", t.priority)

	p.dispatchLocked()
	p.reportLocked()
	return t.future, nil
}

// Cancel withdraws a task that is still queued; its future resolves with
// ErrCanceled. Running tasks cannot be cancelled and Cancel returns false.
func (p *Pool) Cancel(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[taskID]
	if !ok || t.state != taskQueued {
		return false
	}
	heap.Remove(&p.queue, t.index)
	p.finishLocked(t, nil, ErrCanceled)
	p.reportLocked()
	return true
}

// Terminate stops accepting tasks, resolves every pending future with
// ErrClosed and shuts the units down. Handlers observe cancellation of
// their ctx; Terminate waits for running handlers until ctx ends.
func (p *Pool) Terminate(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.loopDone
		return nil
	}
	p.closed = true
	n := len(p.tasks)
	for p.queue.Len() > 0 {
		heap.Pop(&p.queue)
	}
	for _, t := range p.tasks {
		p.finishLocked(t, nil, ErrClosed)
	}
	for _, u := range p.units {
		close(u.in)
		u.state = unitTerminated
	}
	p.idle = nil
	p.mu.Unlock()

	p.cancel()
	p.opt.Logger.Info("pool terminating", "cancelled_tasks", n)

	done := make(chan struct{})
	go func() {
		p.unitsWG.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("pool: units still running: %w", ctx.Err())
	}
	close(p.stopped)
	<-p.loopDone

	p.mu.Lock()
	p.units = map[int]*unit{}
	p.reportLocked()
	p.mu.Unlock()
	p.opt.Logger.Info("pool terminated")
	return err
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Units        int    `json:"units"`
	Idle         int    `json:"idle"`
	Busy         int    `json:"busy"`
	Queued       int    `json:"queued"`
	MinUnits     int    `json:"min_units"`
	MaxUnits     int    `json:"max_units"`
	MaxQueueSize int    `json:"max_queue_size"`
	Submitted    uint64 `json:"submitted"`
	Completed    uint64 `json:"completed"`
	Failed       uint64 `json:"failed"`
	TimedOut     uint64 `json:"timed_out"`
	Rejected     uint64 `json:"rejected"`
	Crashes      uint64 `json:"crashes"`
}

// Stats returns current sizes and lifetime counters. It has no side effects.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Units:        len(p.units),
		Idle:         len(p.idle),
		Queued:       p.queue.Len(),
		MinUnits:     p.opt.MinUnits,
		MaxUnits:     p.opt.MaxUnits,
		MaxQueueSize: p.opt.MaxQueueSize,
	}
	s.Busy = p.busyLocked()
	p.mu.Unlock()

	s.Submitted = p.submitted.Load()
	s.Completed = p.completed.Load()
	s.Failed = p.failed.Load()
	s.TimedOut = p.timedOut.Load()
	s.Rejected = p.rejected.Load()
	s.Crashes = p.crashes.Load()
	return s
}

// -------------------- internals --------------------

// loop consumes unit replies until Terminate has collected every unit.
func (p *Pool) loop() {
	defer close(p.loopDone)
	for {
		select {
		case r := <-p.replies:
			p.handleReply(r)
		case <-p.stopped:
			return
		}
	}
}

func (p *Pool) handleReply(r reply) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u := p.units[r.unitID]
	t := p.tasks[r.taskID]
	if t != nil && t.state != taskAssigned {
		t = nil
	}
	if t == nil && r.taskID != "" {
		p.opt.Logger.Debug("late result discarded", "task_id", r.taskID, "unit_id", r.unitID)
	}

	if r.fatal {
		p.crashes.Inc()
		p.opt.Metrics.UnitCrashed()
		p.opt.Logger.Error("unit failed", "unit_id", r.unitID, "task_id", r.taskID, "error", r.err)
		if u != nil {
			u.state = unitTerminated
			u.current = nil
			delete(p.units, r.unitID)
		}
		if t != nil {
			p.recordLocked(t, r.err)
			p.finishLocked(t, nil, r.err)
		}
		if !p.closed && len(p.units) < p.opt.MinUnits {
			p.spawnLocked()
		}
	} else {
		if t != nil {
			p.recordLocked(t, r.err)
			p.finishLocked(t, r.data, r.err)
		}
		if u != nil && !p.closed {
			u.state = unitIdle
			u.current = nil
			p.idle = append(p.idle, u)
		}
	}

	if !p.closed {
		p.dispatchLocked()
	}
	p.reportLocked()
}

// dispatchLocked hands queued tasks to idle units, spawning units up to
// MaxUnits when none is idle.
func (p *Pool) dispatchLocked() {
	for p.queue.Len() > 0 {
		if len(p.idle) == 0 {
			if len(p.units) >= p.opt.MaxUnits {
				return
			}
			p.spawnLocked()
		}
		u := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]

		t := heap.Pop(&p.queue).(*task)
		t.state = taskAssigned
		t.unit = u.id
		t.startedAt = time.Now()
		u.state = unitBusy
		u.current = t

		// An idle unit's inbox is empty, so this never blocks.
		u.in <- message{taskID: t.id, kind: t.kind, input: t.input, fn: t.fn}
	}
}

// spawnLocked starts a unit and parks it on the idle stack.
func (p *Pool) spawnLocked() *unit {
	p.nextUnit++
	u := &unit{
		id:    p.nextUnit,
		in:    make(chan message, 1),
		ctx:   p.ctx,
		state: unitIdle,
	}
	p.units[u.id] = u
	p.idle = append(p.idle, u)

	p.unitsWG.Add(1)
	go func() {
		defer p.unitsWG.Done()
		u.run(p.replies, p.stopped)
	}()
	p.opt.Logger.Debug("unit spawned", "unit_id", u.id, "units", len(p.units))
	return u
}

// expire fires from the task timer.
func (p *Pool) expire(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch t.state {
	case taskQueued:
		heap.Remove(&p.queue, t.index)
	case taskAssigned:
	default:
		return
	}
	dispatched := t.state == taskAssigned
	p.timedOut.Inc()
	p.opt.Metrics.TimedOut(t.kind, dispatched)
	p.opt.Logger.Warn("task timed out", "task_id", t.id, "kind", t.kind, "dispatched", dispatched, "unit_id", t.unit)
	p.finishLocked(t, nil, &TimeoutError{
		TaskID:     t.id,
		Kind:       t.kind,
		Timeout:    p.opt.TaskTimeout,
		Dispatched: dispatched,
	})
	p.reportLocked()
}

// finishLocked resolves t exactly once and forgets it. A unit still running
// a timed-out task keeps it as current until its reply arrives.
func (p *Pool) finishLocked(t *task, v any, err error) {
	if t.state == taskFinished {
		return
	}
	t.state = taskFinished
	t.timer.Stop()
	delete(p.tasks, t.id)
	t.future.resolve(v, err)
}

// recordLocked accounts a task that a unit finished (or crashed on).
func (p *Pool) recordLocked(t *task, err error) {
	if err != nil {
		p.failed.Inc()
	} else {
		p.completed.Inc()
	}
	p.opt.Metrics.Completed(t.kind, time.Since(t.startedAt), err)
}

func (p *Pool) busyLocked() int {
	busy := 0
	for _, u := range p.units {
		if u.state == unitBusy {
			busy++
		}
	}
	return busy
}

func (p *Pool) reportLocked() {
	p.opt.Metrics.Units(len(p.units), p.busyLocked())
	p.opt.Metrics.Queue(p.queue.Len())
}

// Package pool executes tasks on a bounded set of execution units with
// priority ordering, backpressure, per-task timeouts and crash recovery.
//
// Each unit is a goroutine with a private inbox. The pool hands a unit one
// message {taskID, kind, input} at a time and the unit answers
// {taskID, data|err} on the pool's reply channel; units never touch pool
// state. A single loop goroutine consumes replies, so every state
// transition (queue insert/remove, unit idle/busy, task resolution)
// happens under one short-held mutex.
//
// Sizing: MinUnits units start with the pool. When tasks are queued and no
// unit is idle, dispatch spawns units up to MaxUnits. A unit that panics
// (or exits through runtime.Goexit) fails its task with *UnitFailureError
// and is discarded; a replacement is spawned only while the pool is below
// MinUnits.
//
// Timeouts: a task still queued when TaskTimeout fires is removed and
// rejected. A task already running cannot be interrupted; its caller is
// released with *TimeoutError and the late result is discarded.
package pool

//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flowmesh/flowmesh/event"
)

// Status is the lifecycle state of an execution. Terminal states are
// absorbing.
type Status string

// Execution lifecycle states.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Execution is one run of a workflow. Fields are guarded by mu because the
// engine mutates them from the execution's worker while API callers read
// them concurrently.
type Execution struct {
	mu sync.RWMutex

	id         string
	workflowID string
	status     Status
	startedAt  time.Time
	endedAt    time.Time
	finalState map[string]any
	err        *Error
	events     []*event.Event

	cancel context.CancelFunc
}

// ID returns the execution id.
func (x *Execution) ID() string { return x.id }

// WorkflowID returns the id of the workflow being executed.
func (x *Execution) WorkflowID() string { return x.workflowID }

// Status returns the current lifecycle state.
func (x *Execution) Status() Status {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.status
}

// StartedAt returns when the execution started.
func (x *Execution) StartedAt() time.Time {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.startedAt
}

// EndedAt returns when the execution reached a terminal state, or the zero
// time while it is still running.
func (x *Execution) EndedAt() time.Time {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.endedAt
}

// FinalState returns the state snapshot captured when the execution
// terminated. Nil while the execution is in flight.
func (x *Execution) FinalState() map[string]any {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.finalState
}

// Err returns the structured error of a failed execution, or nil.
func (x *Execution) Err() *Error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.err
}

// Events returns the events recorded so far, in emission order.
func (x *Execution) Events() []*event.Event {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*event.Event, len(x.events))
	copy(out, x.events)
	return out
}

// Cancel requests cancellation. The engine checks the token at step
// boundaries; the in-flight node body is not force-killed but its returned
// edge is discarded.
func (x *Execution) Cancel() {
	x.mu.RLock()
	cancel := x.cancel
	x.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (x *Execution) recordEvent(evt *event.Event) {
	x.mu.Lock()
	x.events = append(x.events, evt)
	x.mu.Unlock()
}

func (x *Execution) setStatus(s Status) {
	x.mu.Lock()
	x.status = s
	x.mu.Unlock()
}

func (x *Execution) finish(s Status, finalState map[string]any, err *Error) {
	x.mu.Lock()
	x.status = s
	x.endedAt = time.Now()
	x.finalState = finalState
	x.err = err
	cancel := x.cancel
	x.cancel = nil
	x.mu.Unlock()
	// Release the execution context's timer.
	if cancel != nil {
		cancel()
	}
}

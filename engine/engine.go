//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package engine drives parsed workflows: it resolves node configurations,
// invokes node bodies, selects edges, routes data between nodes, and
// publishes lifecycle events. One node runs at a time per execution;
// executions run in parallel on a bounded worker pool.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/flowmesh/flowmesh/event"
	"github.com/flowmesh/flowmesh/log"
	"github.com/flowmesh/flowmesh/registry"
	"github.com/flowmesh/flowmesh/workflow"
)

// defaultPoolSize bounds the number of concurrently running executions.
const defaultPoolSize = 256

// StateSeeder builds the initial state for a new execution. It lets
// embedders (schedulers, trigger services) seed credentials such as
// JWT_token without the core knowing about authentication. The returned map
// replaces the merged initial state.
type StateSeeder func(def *workflow.Definition, initial map[string]any) map[string]any

// Options contains configuration options for creating an Engine.
type Options struct {
	// Bus is the event bus lifecycle events are published on.
	Bus *event.Bus
	// Store is the definition store consulted for sub-workflow invocation.
	Store *workflow.DefinitionStore
	// Seeder builds each execution's initial state.
	Seeder StateSeeder
	// Timeout is a wall-clock deadline applied to every execution.
	Timeout time.Duration
	// PoolSize bounds concurrently running executions (default 256).
	PoolSize int
}

// Option is a function that configures an Engine.
type Option func(*Options)

// WithBus sets the event bus lifecycle events are published on.
func WithBus(bus *event.Bus) Option {
	return func(o *Options) {
		o.Bus = bus
	}
}

// WithDefinitionStore sets the store consulted for sub-workflow invocation.
func WithDefinitionStore(store *workflow.DefinitionStore) Option {
	return func(o *Options) {
		o.Store = store
	}
}

// WithStateSeeder installs a hook that builds each execution's initial state.
func WithStateSeeder(seeder StateSeeder) Option {
	return func(o *Options) {
		o.Seeder = seeder
	}
}

// WithTimeout sets a wall-clock deadline applied to every execution.
// Exceeding it fails the execution with a TimeoutError.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithPoolSize bounds the number of concurrently running executions.
func WithPoolSize(size int) Option {
	return func(o *Options) {
		o.PoolSize = size
	}
}

// Engine executes workflow definitions.
type Engine struct {
	registry *registry.Registry
	parser   *workflow.Parser
	bus      *event.Bus
	store    *workflow.DefinitionStore
	pool     *ants.Pool
	seeder   StateSeeder
	timeout  time.Duration

	mu         sync.RWMutex
	executions map[string]*Execution
}

// New creates an engine over the given node registry.
func New(reg *registry.Registry, opts ...Option) (*Engine, error) {
	var options Options
	options.PoolSize = defaultPoolSize
	for _, opt := range opts {
		opt(&options)
	}
	if options.Bus == nil {
		options.Bus = event.NewBus()
	}
	if options.Store == nil {
		options.Store = workflow.NewDefinitionStore()
	}
	if options.PoolSize <= 0 {
		options.PoolSize = defaultPoolSize
	}

	pool, err := ants.NewPool(options.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("creating execution pool: %w", err)
	}

	return &Engine{
		registry:   reg,
		parser:     workflow.NewParser(reg),
		bus:        options.Bus,
		store:      options.Store,
		pool:       pool,
		seeder:     options.Seeder,
		timeout:    options.Timeout,
		executions: make(map[string]*Execution),
	}, nil
}

// Close releases the engine's worker pool. In-flight executions finish.
func (e *Engine) Close() {
	e.pool.Release()
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *event.Bus {
	return e.bus
}

// Definitions returns the engine's workflow definition store.
func (e *Engine) Definitions() *workflow.DefinitionStore {
	return e.store
}

// RunOption configures a single execution.
type RunOption func(*runConfig)

type runConfig struct {
	initialState map[string]any
	timeout      time.Duration
}

// WithInitialState merges extra entries over the definition's initialState
// for this execution.
func WithInitialState(initial map[string]any) RunOption {
	return func(rc *runConfig) {
		rc.initialState = initial
	}
}

// WithRunTimeout overrides the engine-level deadline for this execution.
func WithRunTimeout(timeout time.Duration) RunOption {
	return func(rc *runConfig) {
		rc.timeout = timeout
	}
}

// Execute parses def and runs it to completion synchronously. The returned
// Execution is terminal. A parse or validation failure is returned without
// creating an execution.
func (e *Engine) Execute(ctx context.Context, def *workflow.Definition, opts ...RunOption) (*Execution, error) {
	parsed, x, runCtx, err := e.prepare(ctx, def, opts...)
	if err != nil {
		return nil, err
	}
	e.run(runCtx, parsed, x)
	return x, nil
}

// Submit parses def and schedules it on the worker pool, returning the
// pending execution immediately. Use Get or the event bus to observe
// progress.
func (e *Engine) Submit(def *workflow.Definition, opts ...RunOption) (*Execution, error) {
	parsed, x, runCtx, err := e.prepare(context.Background(), def, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.pool.Submit(func() {
		e.run(runCtx, parsed, x)
	}); err != nil {
		e.forget(x.id)
		return nil, fmt.Errorf("submitting execution: %w", err)
	}
	return x, nil
}

// Get returns a tracked execution by id.
func (e *Engine) Get(executionID string) (*Execution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	x, ok := e.executions[executionID]
	return x, ok
}

// List returns all tracked executions.
func (e *Engine) List() []*Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Execution, 0, len(e.executions))
	for _, x := range e.executions {
		out = append(out, x)
	}
	return out
}

// prepare parses and validates the definition, seeds state, and registers a
// pending execution.
func (e *Engine) prepare(ctx context.Context, def *workflow.Definition, opts ...RunOption) (*workflow.ParsedWorkflow, *Execution, context.Context, error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	parsed, err := e.parser.Parse(def)
	if err != nil {
		return nil, nil, nil, err
	}

	initial := make(map[string]any, len(parsed.InitialState)+len(rc.initialState))
	for k, v := range parsed.InitialState {
		initial[k] = v
	}
	for k, v := range rc.initialState {
		initial[k] = v
	}
	if e.seeder != nil {
		initial = e.seeder(def, initial)
	}
	parsed.InitialState = initial

	timeout := e.timeout
	if rc.timeout > 0 {
		timeout = rc.timeout
	}
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	x := &Execution{
		id:         uuid.New().String(),
		workflowID: parsed.ID,
		status:     StatusPending,
		startedAt:  time.Now(),
		cancel:     cancel,
	}

	e.mu.Lock()
	e.executions[x.id] = x
	e.mu.Unlock()

	log.Debugf("engine: prepared execution %s for workflow %s", x.id, parsed.ID)
	return parsed, x, runCtx, nil
}

func (e *Engine) forget(executionID string) {
	e.mu.Lock()
	delete(e.executions, executionID)
	e.mu.Unlock()
}

// invoker adapts the engine to node.Invoker for sub-workflow invocation.
// Nested executions get their own id and event stream.
type invoker struct {
	engine *Engine
}

// RunWorkflow looks up a stored definition and executes it as a nested
// execution, returning its final state.
func (iv *invoker) RunWorkflow(ctx context.Context, workflowID string, seed map[string]any) (map[string]any, error) {
	def, err := iv.engine.store.Get(workflowID)
	if err != nil {
		return nil, err
	}
	x, err := iv.engine.Execute(ctx, def, WithInitialState(seed))
	if err != nil {
		return nil, err
	}
	if x.Status() != StatusCompleted {
		if xerr := x.Err(); xerr != nil {
			return nil, xerr
		}
		return nil, fmt.Errorf("sub-workflow %q ended with status %s", workflowID, x.Status())
	}
	return x.FinalState(), nil
}

//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package engine

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/flowmesh/flowmesh/event"
	"github.com/flowmesh/flowmesh/internal/telemetry"
	"github.com/flowmesh/flowmesh/log"
	"github.com/flowmesh/flowmesh/node"
	"github.com/flowmesh/flowmesh/state"
	"github.com/flowmesh/flowmesh/workflow"
)

// edgeContextKey is the engine bookkeeping key recording the last routed
// edge in state.
const edgeContextKey = "_edgeContext"

// valuePreviewLimit caps the length of state.changed value previews.
const valuePreviewLimit = 120

// loc addresses one parsed node inside its surrounding sequence.
type loc struct {
	seq []*workflow.ParsedNode
	idx int
}

// frame is one level of the scheduler's return stack. When a frame's
// sequence is exhausted the engine pops back to the frame below; a frame
// pushed for a loop-continue subflow leaves the loop node's own frame
// unadvanced so popping re-enters the loop.
type frame struct {
	seq []*workflow.ParsedNode
	idx int
	// loopSubflow marks frames entered through a loop-continue edge.
	// Implicit sequence links are ignored inside them so control returns
	// to the loop node instead of leaking into trailing siblings.
	loopSubflow bool
}

// runner drives a single execution. One runner runs on one goroutine;
// nothing here needs locking beyond what Execution provides for readers.
type runner struct {
	engine   *Engine
	parsed   *workflow.ParsedWorkflow
	x        *Execution
	bag      *state.Bag
	inputs   map[string]any
	stack    []frame
	index    map[string]loc
	attempts map[string]int
	lastTS   time.Time
}

// run executes a parsed workflow to a terminal status.
func (e *Engine) run(ctx context.Context, parsed *workflow.ParsedWorkflow, x *Execution) {
	ctx, span := telemetry.StartExecution(ctx, parsed.ID, x.id)

	r := &runner{
		engine:   e,
		parsed:   parsed,
		x:        x,
		bag:      state.New(parsed.InitialState),
		inputs:   map[string]any{},
		index:    buildIndex(parsed.Nodes),
		attempts: make(map[string]int),
	}
	if len(parsed.Nodes) > 0 {
		r.stack = []frame{{seq: parsed.Nodes}}
	}

	x.setStatus(StatusRunning)
	r.emit(event.TypeExecutionStarted, "", map[string]any{
		"workflowId":       parsed.ID,
		"startedAt":        x.StartedAt(),
		"initialStateKeys": r.bag.Keys(),
	})

	runErr := r.loop(ctx)
	r.finish(ctx, runErr)
	if runErr != nil {
		telemetry.EndWithError(span, runErr)
	} else {
		telemetry.EndWithError(span, nil)
	}
}

// loop is the main scheduling loop: pick the current node, run one step,
// route. Cancellation and deadlines are checked at step boundaries only.
func (r *runner) loop(ctx context.Context) *Error {
	for {
		if err := r.checkBoundary(ctx); err != nil {
			return err
		}
		if len(r.stack) == 0 {
			return nil
		}
		fr := &r.stack[len(r.stack)-1]
		if fr.idx >= len(fr.seq) {
			r.stack = r.stack[:len(r.stack)-1]
			continue
		}
		if err := r.step(ctx, fr, fr.seq[fr.idx]); err != nil {
			return err
		}
	}
}

func (r *runner) checkBoundary(ctx context.Context) *Error {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return newError(KindTimeout, "", "execution deadline exceeded")
		}
		return newError(KindCancelled, "", "execution cancelled")
	default:
		return nil
	}
}

// step runs a single node invocation: resolve config, execute, select the
// edge, route, and emit the per-step events.
func (r *runner) step(ctx context.Context, fr *frame, pn *workflow.ParsedNode) *Error {
	r.attempts[pn.InstanceID]++
	started := time.Now()
	before := r.publicSnapshot()

	impl, err := r.engine.registry.Get(pn.NodeID)
	if err != nil {
		return newError(KindRegistry, pn.InstanceID, "%v", err)
	}

	res := &resolver{bag: r.bag, inputs: r.inputs}
	resolved, resolveErr := res.resolveConfig(pn.Config)
	if resolveErr != nil {
		return r.failNode(fr, pn, newError(KindResolve, pn.InstanceID, "%v", resolveErr))
	}

	r.emit(event.TypeNodeStarted, pn.InstanceID, map[string]any{
		"nodeId":        pn.NodeID,
		"instanceId":    pn.InstanceID,
		"attemptNumber": r.attempts[pn.InstanceID],
	})

	nodeCtx, span := telemetry.StartNode(ctx, pn.NodeID, pn.InstanceID)
	edges, execErr := r.invokeNode(nodeCtx, impl, pn, resolved)
	telemetry.EndWithError(span, execErr)

	// A cancellation that fired while the body was in flight discards the
	// returned edge; the boundary check turns it into the terminal status.
	if ctx.Err() != nil {
		return nil
	}
	if execErr != nil {
		return r.failNode(fr, pn, newError(KindNodeExecution, pn.InstanceID, "%v", execErr))
	}

	edgeName, payload, selErr := r.selectEdge(pn, edges)
	if selErr != nil {
		return selErr
	}

	r.bag.Set(edgeContextKey, map[string]any{
		"from":    pn.InstanceID,
		"edge":    edgeName,
		"payload": payload,
	})
	r.emitStateChange(pn, resolved, before)
	r.emit(event.TypeNodeCompleted, pn.InstanceID, map[string]any{
		"nodeId":     pn.NodeID,
		"instanceId": pn.InstanceID,
		"edge":       edgeName,
		"durationMs": time.Since(started).Milliseconds(),
		"payloadKeys": func() []string {
			keys := make([]string, 0, len(payload))
			for k := range payload {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return keys
		}(),
		"state": r.bag.Snapshot(),
	})

	r.route(fr, pn, edgeName)
	r.inputs = payload
	return nil
}

// invokeNode calls the node body, converting panics into errors.
func (r *runner) invokeNode(ctx context.Context, impl node.Node, pn *workflow.ParsedNode,
	config map[string]any) (edges node.EdgeMap, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("node panicked: %v\n%s", rec, debug.Stack())
		}
	}()

	ec := &node.ExecutionContext{
		WorkflowID:  r.parsed.ID,
		ExecutionID: r.x.id,
		NodeID:      pn.InstanceID,
		Inputs:      r.inputs,
		State:       r.bag,
		Logger:      log.Default,
		Invoker:     &invoker{engine: r.engine},
		Emit: func(eventType string, payload map[string]any) {
			r.emit(event.Type(eventType), pn.InstanceID, payload)
		},
	}
	return impl.Execute(ctx, ec, config)
}

// selectEdge picks the single edge of an EdgeMap and materializes its
// payload. Nodes are contracted to return exactly one entry; when several
// come back, an edge with a declared target wins, then the first in name
// order, with a warning.
func (r *runner) selectEdge(pn *workflow.ParsedNode, edges node.EdgeMap) (string, map[string]any, *Error) {
	if len(edges) == 0 {
		return "", nil, newError(KindNoEdgeSelected, pn.InstanceID, "node %q returned an empty edge map", pn.NodeID)
	}

	names := make([]string, 0, len(edges))
	for name := range edges {
		names = append(names, name)
	}
	sort.Strings(names)

	chosen := names[0]
	if len(names) > 1 {
		for _, name := range names {
			if _, declared := pn.Edges[name]; declared {
				chosen = name
				break
			}
		}
		log.Warnf("engine: node %q returned %d edges, selecting %q", pn.InstanceID, len(names), chosen)
	}

	payload, err := r.producePayload(edges[chosen])
	if err != nil {
		return "", nil, newError(KindNodeExecution, pn.InstanceID, "edge %q payload: %v", chosen, err)
	}
	return chosen, payload, nil
}

func (r *runner) producePayload(produce node.PayloadFunc) (payload map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("payload producer panicked: %v", rec)
		}
	}()
	if produce == nil {
		return map[string]any{}, nil
	}
	payload = produce()
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

// failNode materializes a node failure. When the node declares an "error"
// edge target, execution routes there with the error message as inputs;
// otherwise the failure is fatal.
func (r *runner) failNode(fr *frame, pn *workflow.ParsedNode, ferr *Error) *Error {
	target, recoverable := pn.Edges[node.EdgeError]
	r.emit(event.TypeNodeFailed, pn.InstanceID, map[string]any{
		"nodeId":    pn.NodeID,
		"error":     ferr.Message,
		"willRetry": false,
		"recovered": recoverable,
	})
	if !recoverable || target == nil {
		return ferr
	}

	log.Debugf("engine: node %q failed, routing error edge", pn.InstanceID)
	r.route(fr, pn, node.EdgeError)
	r.inputs = map[string]any{"error": ferr.Message}
	return nil
}

// route advances the scheduler after an edge selection. Inline targets push
// a return frame, named targets jump, loop-marked nodes re-enter unless an
// exit edge was chosen, and plain nodes fall through to the next sibling.
func (r *runner) route(fr *frame, pn *workflow.ParsedNode, edgeName string) {
	exit := edgeName == node.EdgeComplete || edgeName == node.EdgeDone
	loopContinue := pn.IsLoop && !exit
	target := pn.Edges[edgeName]

	switch {
	case target != nil && len(target.Inline) > 0:
		if loopContinue {
			// Leave the loop frame in place so popping re-enters it.
			r.stack = append(r.stack, frame{seq: target.Inline, loopSubflow: true})
			return
		}
		fr.idx++
		r.stack = append(r.stack, frame{seq: target.Inline})

	case target != nil && target.InstanceID != "":
		if target.Implicit {
			// Synthesized next-sibling link: inside a loop subflow it is
			// ignored so control returns to the loop node.
			if fr.loopSubflow {
				fr.idx = len(fr.seq)
				return
			}
			fr.idx++
			return
		}
		dest, ok := r.index[target.InstanceID]
		if !ok {
			// Validated at parse time; kept as a guard.
			fr.idx++
			return
		}
		if loopContinue {
			r.stack = append(r.stack, frame{
				seq:         dest.seq[dest.idx : dest.idx+1],
				loopSubflow: true,
			})
			return
		}
		// Explicit jump: the located node's own sequence continues from
		// there, so the return stack is discarded.
		r.stack = r.stack[:0]
		r.stack = append(r.stack, frame{seq: dest.seq, idx: dest.idx})

	case loopContinue:
		// Re-enter the same node.

	default:
		fr.idx++
	}
}

// emitStateChange publishes at most one coarse state.changed event per node
// step, comparing public (non-underscore) state before and after.
func (r *runner) emitStateChange(pn *workflow.ParsedNode, resolved, before map[string]any) {
	after := r.publicSnapshot()
	if reflect.DeepEqual(before, after) {
		return
	}

	path := ""
	var preview any = nil
	if pn.IsStateSetter {
		if p, ok := resolved["statePath"].(string); ok {
			path = p
		}
		preview = resolved["value"]
	}
	r.emit(event.TypeStateChanged, pn.InstanceID, map[string]any{
		"path":            path,
		"newValuePreview": truncatePreview(preview),
		"stateKeys":       sortedKeys(after),
	})
}

func (r *runner) publicSnapshot() map[string]any {
	snapshot := r.bag.Snapshot()
	for k := range snapshot {
		if strings.HasPrefix(k, "_") {
			delete(snapshot, k)
		}
	}
	return snapshot
}

// emit records the event on the execution and publishes it on the bus with
// a timestamp that never goes backwards within this execution.
func (r *runner) emit(t event.Type, nodeID string, payload map[string]any) {
	now := time.Now()
	if now.Before(r.lastTS) {
		now = r.lastTS
	}
	r.lastTS = now

	opts := []event.Option{event.WithTimestamp(now), event.WithPayload(payload)}
	if nodeID != "" {
		opts = append(opts, event.WithNodeID(nodeID))
	}
	evt := event.New(t, r.x.id, r.parsed.ID, opts...)
	r.x.recordEvent(evt)
	r.engine.bus.Publish(evt)
}

// finish moves the execution to its terminal status and publishes the
// terminal event.
func (r *runner) finish(_ context.Context, runErr *Error) {
	final := r.bag.Snapshot()

	status := StatusCompleted
	if runErr != nil {
		switch runErr.Kind {
		case KindCancelled:
			status = StatusCancelled
		default:
			status = StatusFailed
		}
	}

	payload := map[string]any{
		"status":     string(status),
		"finalState": final,
		"durationMs": time.Since(r.x.StartedAt()).Milliseconds(),
	}
	if runErr != nil {
		payload["error"] = runErr
	}
	r.emit(event.TypeExecutionCompleted, "", payload)
	r.x.finish(status, final, runErr)

	if runErr != nil {
		log.Warnf("engine: execution %s ended %s: %v", r.x.id, status, runErr)
	} else {
		log.Debugf("engine: execution %s completed", r.x.id)
	}
}

func buildIndex(nodes []*workflow.ParsedNode) map[string]loc {
	index := make(map[string]loc)
	var walk func(seq []*workflow.ParsedNode)
	walk = func(seq []*workflow.ParsedNode) {
		for i, n := range seq {
			index[n.InstanceID] = loc{seq: seq, idx: i}
			for _, target := range n.Edges {
				if len(target.Inline) > 0 {
					walk(target.Inline)
				}
			}
		}
	}
	walk(nodes)
	return index
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncatePreview(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	if len(s) > valuePreviewLimit {
		return s[:valuePreviewLimit] + "..."
	}
	return s
}

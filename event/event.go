//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package event defines the execution lifecycle events published by the
// engine and the in-process bus that distributes them to subscribers.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies an execution lifecycle event.
type Type string

// Lifecycle event types emitted by the engine.
const (
	TypeExecutionStarted   Type = "execution.started"
	TypeExecutionCompleted Type = "execution.completed"
	TypeNodeStarted        Type = "node.started"
	TypeNodeCompleted      Type = "node.completed"
	TypeNodeFailed         Type = "node.failed"
	TypeStateChanged       Type = "state.changed"
)

// Event is a single execution lifecycle event. Events for one execution are
// published in execution order with non-decreasing timestamps.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`
	// Type is the lifecycle event type.
	Type Type `json:"type"`
	// ExecutionID identifies the execution this event belongs to.
	ExecutionID string `json:"executionId"`
	// WorkflowID identifies the workflow definition being executed.
	WorkflowID string `json:"workflowId"`
	// NodeID is the instance id of the node this event concerns, when any.
	NodeID string `json:"nodeId,omitempty"`
	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`
	// Payload carries event-specific data.
	Payload map[string]any `json:"payload,omitempty"`
}

// Option configures an Event at construction time.
type Option func(*Event)

// WithNodeID sets the node instance id on the event.
func WithNodeID(nodeID string) Option {
	return func(e *Event) {
		e.NodeID = nodeID
	}
}

// WithPayload sets the event payload.
func WithPayload(payload map[string]any) Option {
	return func(e *Event) {
		e.Payload = payload
	}
}

// WithTimestamp overrides the event timestamp. The engine uses this to keep
// timestamps monotonic within one execution.
func WithTimestamp(ts time.Time) Option {
	return func(e *Event) {
		e.Timestamp = ts
	}
}

// New creates a new event for the given execution.
func New(t Type, executionID, workflowID string, opts ...Option) *Event {
	e := &Event{
		ID:          uuid.New().String(),
		Type:        t,
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Timestamp:   time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Channel name prefixes. Subscribers pick their granularity by channel.
const (
	ChannelPrefixExecution = "execution:"
	ChannelPrefixWorkflow  = "workflow:"
	ChannelPrefixNode      = "node:"
)

// ExecutionChannel returns the channel name carrying all events of one execution.
func ExecutionChannel(executionID string) string {
	return ChannelPrefixExecution + executionID
}

// WorkflowChannel returns the channel name carrying events of all executions
// of one workflow.
func WorkflowChannel(workflowID string) string {
	return ChannelPrefixWorkflow + workflowID
}

// NodeChannel returns the channel name carrying events of one node instance.
func NodeChannel(nodeID string) string {
	return ChannelPrefixNode + nodeID
}

// Channels returns every channel this event is fanned out on.
func (e *Event) Channels() []string {
	channels := []string{
		ExecutionChannel(e.ExecutionID),
		WorkflowChannel(e.WorkflowID),
	}
	if e.NodeID != "" {
		channels = append(channels, NodeChannel(e.NodeID))
	}
	return channels
}

//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package engine

import "fmt"

// Kind classifies execution errors for API callers.
type Kind string

// Execution error kinds.
const (
	KindParse          Kind = "ParseError"
	KindRegistry       Kind = "RegistryError"
	KindResolve        Kind = "ResolveError"
	KindNodeExecution  Kind = "NodeExecutionError"
	KindNoEdgeSelected Kind = "NoEdgeSelected"
	KindTimeout        Kind = "TimeoutError"
	KindCancelled      Kind = "CancelledError"
)

// Error is the structured error recorded on a failed execution.
type Error struct {
	Kind       Kind           `json:"kind"`
	Message    string         `json:"message"`
	InstanceID string         `json:"instanceId,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.InstanceID != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.InstanceID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, instanceID, format string, args ...any) *Error {
	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		InstanceID: instanceID,
	}
}

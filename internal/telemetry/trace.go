//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package telemetry provides tracing helpers for the flowmesh runtime.
// Spans are no-ops unless the embedding process installs an OpenTelemetry
// tracer provider.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentName identifies the flowmesh instrumentation scope.
const InstrumentName = "github.com/flowmesh/flowmesh"

// Tracer is the tracer used by the execution engine.
var Tracer = otel.Tracer(InstrumentName)

// StartExecution opens a span covering one workflow execution.
func StartExecution(ctx context.Context, workflowID, executionID string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("execution.id", executionID),
		))
}

// StartNode opens a span covering one node step.
func StartNode(ctx context.Context, nodeID, instanceID string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.String("node.instance", instanceID),
		))
}

// EndWithError records err on the span and marks it failed before ending it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventChannels(t *testing.T) {
	evt := New(TypeNodeCompleted, "exec-1", "wf-1", WithNodeID("step-1"))
	assert.ElementsMatch(t, []string{
		"execution:exec-1",
		"workflow:wf-1",
		"node:step-1",
	}, evt.Channels())

	noNode := New(TypeExecutionStarted, "exec-1", "wf-1")
	assert.ElementsMatch(t, []string{
		"execution:exec-1",
		"workflow:wf-1",
	}, noNode.Channels())
}

func TestSubscribeReceivesMatchingEvents(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(ExecutionChannel("exec-1"))
	defer cancel()

	bus.Publish(New(TypeNodeStarted, "exec-1", "wf-1", WithNodeID("n")))
	bus.Publish(New(TypeNodeStarted, "exec-other", "wf-1"))

	evt := <-ch
	assert.Equal(t, TypeNodeStarted, evt.Type)
	assert.Equal(t, "exec-1", evt.ExecutionID)

	select {
	case extra := <-ch:
		// The second event targets exec-other; only workflow:wf-1
		// subscribers should see it.
		t.Fatalf("unexpected event %v", extra.Type)
	default:
	}
}

func TestWorkflowChannelSeesAllExecutions(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(WorkflowChannel("wf-1"))
	defer cancel()

	bus.Publish(New(TypeExecutionStarted, "exec-1", "wf-1"))
	bus.Publish(New(TypeExecutionStarted, "exec-2", "wf-1"))

	first := <-ch
	second := <-ch
	assert.Equal(t, "exec-1", first.ExecutionID)
	assert.Equal(t, "exec-2", second.ExecutionID)
}

func TestCancelClosesStream(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("execution:x")
	require.Equal(t, 1, bus.SubscriberCount("execution:x"))

	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount("execution:x"))

	// Cancelling twice is a no-op.
	cancel()
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus(WithSubscriberBuffer(1))
	ch, cancel := bus.Subscribe("workflow:wf-1")
	defer cancel()

	// Fill the buffer, then publish more; Publish must not block.
	bus.Publish(New(TypeNodeStarted, "e", "wf-1"))
	bus.Publish(New(TypeNodeCompleted, "e", "wf-1"))
	bus.Publish(New(TypeNodeFailed, "e", "wf-1"))

	evt := <-ch
	assert.Equal(t, TypeNodeStarted, evt.Type)
}

func TestAttachSinkObservesAllEvents(t *testing.T) {
	bus := NewBus()

	var got []*Event
	var gotChannels [][]string
	detach := bus.AttachSink(func(channels []string, evt *Event) {
		got = append(got, evt)
		gotChannels = append(gotChannels, channels)
	})

	bus.Publish(New(TypeExecutionStarted, "exec-1", "wf-1"))
	require.Len(t, got, 1)
	assert.Contains(t, gotChannels[0], "execution:exec-1")
	assert.Contains(t, gotChannels[0], "workflow:wf-1")

	detach()
	bus.Publish(New(TypeExecutionCompleted, "exec-1", "wf-1"))
	assert.Len(t, got, 1)
}

//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package event

import (
	"sync"

	"github.com/flowmesh/flowmesh/log"
)

// defaultSubscriberBuffer is the default buffer size for subscriber channels.
const defaultSubscriberBuffer = 256

// Sink receives every published event together with the channels it is
// fanned out on. The WebSocket broadcaster attaches as a sink so it can
// route events to clients by their live subscription sets.
type Sink func(channels []string, evt *Event)

// Bus is an in-process publish/subscribe fan-out for execution events.
// Publishing is non-blocking: a subscriber that cannot keep up has events
// dropped with a warning rather than stalling the engine.
type Bus struct {
	mu         sync.RWMutex
	nextID     int
	subs       map[string]map[int]chan *Event
	sinks      map[int]Sink
	bufferSize int
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithSubscriberBuffer sets the buffer size for subscriber channels.
func WithSubscriberBuffer(size int) BusOption {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:       make(map[string]map[int]chan *Event),
		sinks:      make(map[int]Sink),
		bufferSize: defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber on the given channel and returns the
// event stream plus a cancel function. Cancelling closes the stream.
func (b *Bus) Subscribe(channel string) (<-chan *Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan *Event, b.bufferSize)
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan *Event)
	}
	b.subs[channel][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[channel]; ok {
			if sub, ok := subs[id]; ok {
				delete(subs, id)
				close(sub)
			}
			if len(subs) == 0 {
				delete(b.subs, channel)
			}
		}
	}
	return ch, cancel
}

// AttachSink registers a sink that observes every published event with its
// channel list. The returned function detaches the sink.
func (b *Bus) AttachSink(sink Sink) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.sinks[id] = sink

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.sinks, id)
	}
}

// Publish fans the event out on all of its channels and to every sink.
func (b *Bus) Publish(evt *Event) {
	if evt == nil {
		return
	}
	channels := evt.Channels()

	b.mu.RLock()
	var targets []chan *Event
	for _, channel := range channels {
		for _, ch := range b.subs[channel] {
			targets = append(targets, ch)
		}
	}
	sinks := make([]Sink, 0, len(b.sinks))
	for _, sink := range b.sinks {
		sinks = append(sinks, sink)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- evt:
		default:
			log.Warnf("event bus: dropping %s event for slow subscriber (execution %s)",
				evt.Type, evt.ExecutionID)
		}
	}
	for _, sink := range sinks {
		sink(channels, evt)
	}
}

// SubscriberCount returns the number of subscribers on a channel.
// Mainly useful in tests.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package ws

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flowmesh/flowmesh/event"
	"github.com/flowmesh/flowmesh/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The HTTP layer owns origin policy via its CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub tracks connected WebSocket clients and their channel subscriptions,
// and fans execution events out to them. Attach it to an event bus with
// Attach, or feed it directly through Broadcast.
type Hub struct {
	serverID string

	mu      sync.RWMutex
	clients map[string]*Client
	detach  func()
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithServerID sets the server identifier reported in system:pong replies.
// Defaults to the SERVER_ID environment variable.
func WithServerID(id string) HubOption {
	return func(h *Hub) {
		h.serverID = id
	}
}

// NewHub creates a hub with no clients.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		serverID: os.Getenv("SERVER_ID"),
		clients:  make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach connects the hub to a bus so every published event is broadcast
// to clients subscribed to any of its channels.
func (h *Hub) Attach(bus *event.Bus) {
	h.detach = bus.AttachSink(func(channels []string, evt *event.Event) {
		h.BroadcastEvent(channels, evt)
	})
}

// Close detaches from the bus and disconnects every client.
func (h *Hub) Close() {
	if h.detach != nil {
		h.detach()
	}
	h.mu.Lock()
	for _, c := range h.clients {
		close(c.send)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request to a WebSocket connection and runs the
// client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("ws: upgrade: %v", err)
		return
	}

	c := &Client{
		id:       uuid.New().String(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go c.writeLoop()

	h.deliver(c, encode(&Message{
		Type:    MsgWelcome,
		Payload: map[string]any{"clientId": c.id},
	}))
	log.Debugf("ws: client %s connected", c.id)

	c.readLoop()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// remove drops a client and closes its send queue. Closing happens under the
// hub lock so it cannot race an in-flight enqueue, which also holds the lock.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		log.Debugf("ws: client %s disconnected", c.id)
	}
}

// deliver queues a frame for one client while holding the hub lock, so the
// queue cannot be closed mid-send. Reports false when the queue is full.
func (h *Hub) deliver(c *Client, raw []byte) bool {
	if raw == nil {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return true
	}
	return c.enqueue(raw)
}

// handle dispatches one inbound client message.
func (h *Hub) handle(c *Client, msg *Message) {
	switch msg.Type {
	case MsgPing:
		h.deliver(c, encode(&Message{Type: MsgPong}))
	case MsgSystemPing:
		h.deliver(c, encode(&Message{
			Type: MsgSystemPong,
			Payload: map[string]any{
				"timestamp": time.Now().UnixMilli(),
				"serverId":  h.serverID,
			},
		}))
	case MsgSubscribe:
		channel := msg.channelOf()
		if channel == "" {
			h.deliver(c, encode(&Message{
				Type:    MsgError,
				Payload: map[string]any{"error": "subscribe requires a channel"},
			}))
			return
		}
		c.subscribe(channel)
		h.deliver(c, encode(&Message{
			Type:    MsgSubscribed,
			Payload: map[string]any{"channel": channel},
		}))
	case MsgUnsubscribe:
		if channel := msg.channelOf(); channel != "" {
			c.unsubscribe(channel)
		}
	default:
		h.deliver(c, encode(&Message{
			Type:    MsgError,
			Payload: map[string]any{"error": "Unknown message type: " + msg.Type},
		}))
	}
}

// BroadcastEvent sends an execution event to every client subscribed to at
// least one of its channels.
func (h *Hub) BroadcastEvent(channels []string, evt *event.Event) {
	raw := encode(&Message{
		Type: string(evt.Type),
		Payload: map[string]any{
			"event": evt,
		},
	})
	h.broadcast(raw, func(c *Client) bool { return c.subscribedTo(channels) }, "")
}

// BroadcastToChannel sends a message to every client subscribed to channel,
// optionally excluding one client by id.
func (h *Hub) BroadcastToChannel(channel string, msg *Message, excludeClientID string) {
	if msg.Payload == nil {
		msg.Payload = map[string]any{}
	}
	if _, ok := msg.Payload["channel"]; !ok {
		msg.Payload["channel"] = channel
	}
	raw := encode(msg)
	h.broadcast(raw, func(c *Client) bool { return c.subscribedTo([]string{channel}) }, excludeClientID)
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(msg *Message) {
	h.broadcast(encode(msg), func(*Client) bool { return true }, "")
}

func (h *Hub) broadcast(raw []byte, match func(*Client) bool, exclude string) {
	if raw == nil {
		return
	}
	h.mu.RLock()
	var evicted []*Client
	for _, c := range h.clients {
		if c.id == exclude || !match(c) {
			continue
		}
		if !c.enqueue(raw) {
			evicted = append(evicted, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range evicted {
		log.Warnf("ws: evicting slow client %s", c.id)
		h.remove(c)
	}
}

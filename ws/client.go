//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowmesh/flowmesh/log"
)

const (
	// writeWait bounds a single write to a client socket.
	writeWait = 10 * time.Second
	// sendBuffer is the per-client outbound queue. A client whose queue is
	// full when a broadcast arrives is evicted rather than stalling the hub.
	sendBuffer = 64
)

// Client is one connected WebSocket peer.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

// ID returns the client's identifier, as announced in connection.welcome.
func (c *Client) ID() string { return c.id }

// subscribe adds the client to a channel. Reports whether it was new.
func (c *Client) subscribe(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; ok {
		return false
	}
	c.channels[channel] = struct{}{}
	return true
}

func (c *Client) unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

func (c *Client) subscribedTo(channels []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, channel := range channels {
		if _, ok := c.channels[channel]; ok {
			return true
		}
	}
	return false
}

// enqueue queues an outbound frame, reporting false when the client's
// queue is full.
func (c *Client) enqueue(raw []byte) bool {
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

// writeLoop drains the send queue onto the socket.
func (c *Client) writeLoop() {
	defer c.conn.Close()
	for raw := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			log.Debugf("ws: write to client %s: %v", c.id, err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop processes inbound frames until the connection drops.
func (c *Client) readLoop() {
	defer c.hub.remove(c)
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("ws: client %s: %v", c.id, err)
			}
			return
		}
		c.hub.handle(c, &msg)
	}
}

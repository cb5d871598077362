//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

// Package ws implements the WebSocket surface of the runtime: a hub that
// tracks connected clients and their channel subscriptions, and a
// broadcaster that fans execution events out to them.
package ws

import "encoding/json"

// Client message types.
const (
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgSystemPing  = "system:ping"
	MsgSystemPong  = "system:pong"
	MsgWelcome     = "connection.welcome"
	MsgSubscribed  = "subscribed"
	MsgError       = "error"
)

// Message is the envelope exchanged with WebSocket clients. Channel may be
// set at the root or inside Payload; incoming messages are accepted either
// way, outgoing messages always populate the root field.
type Message struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// channelOf extracts the channel from a message, accepting both the root
// field and payload.channel.
func (m *Message) channelOf() string {
	if m.Channel != "" {
		return m.Channel
	}
	if m.Payload != nil {
		if ch, ok := m.Payload["channel"].(string); ok {
			return ch
		}
	}
	return ""
}

func encode(m *Message) []byte {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}

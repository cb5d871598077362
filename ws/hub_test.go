//
// Copyright (C) 2025 The flowmesh Authors. All rights reserved.
//
// flowmesh is licensed under the Apache License Version 2.0.
//

package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/event"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWelcomeCarriesClientID(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	conn := dialHub(t, hub)

	welcome := readMessage(t, conn)
	assert.Equal(t, MsgWelcome, welcome.Type)
	clientID, _ := welcome.Payload["clientId"].(string)
	assert.NotEmpty(t, clientID)
}

func TestPingPong(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	conn := dialHub(t, hub)
	readMessage(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(Message{Type: MsgPing}))
	reply := readMessage(t, conn)
	assert.Equal(t, MsgPong, reply.Type)
}

func TestSystemPing(t *testing.T) {
	hub := NewHub(WithServerID("srv-7"))
	defer hub.Close()
	conn := dialHub(t, hub)
	readMessage(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(Message{Type: MsgSystemPing}))
	reply := readMessage(t, conn)
	assert.Equal(t, MsgSystemPong, reply.Type)
	assert.Equal(t, "srv-7", reply.Payload["serverId"])
	assert.NotNil(t, reply.Payload["timestamp"])
}

func TestUnknownTypeGetsErrorReply(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	conn := dialHub(t, hub)
	readMessage(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(Message{Type: "mystery"}))
	reply := readMessage(t, conn)
	assert.Equal(t, MsgError, reply.Type)
	assert.Equal(t, "Unknown message type: mystery", reply.Payload["error"])
}

func TestSubscribeAcceptsBothChannelForms(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	connRoot := dialHub(t, hub)
	readMessage(t, connRoot)
	require.NoError(t, connRoot.WriteJSON(Message{Type: MsgSubscribe, Channel: "execution:e1"}))
	ack := readMessage(t, connRoot)
	assert.Equal(t, MsgSubscribed, ack.Type)
	assert.Equal(t, "execution:e1", ack.Payload["channel"])

	connPayload := dialHub(t, hub)
	readMessage(t, connPayload)
	require.NoError(t, connPayload.WriteJSON(Message{
		Type:    MsgSubscribe,
		Payload: map[string]any{"channel": "execution:e1"},
	}))
	ack = readMessage(t, connPayload)
	assert.Equal(t, MsgSubscribed, ack.Type)
}

func TestEventFanOutByChannel(t *testing.T) {
	bus := event.NewBus()
	hub := NewHub()
	hub.Attach(bus)
	defer hub.Close()

	clientA := dialHub(t, hub)
	readMessage(t, clientA)
	require.NoError(t, clientA.WriteJSON(Message{Type: MsgSubscribe, Channel: "execution:E"}))
	readMessage(t, clientA) // subscribed

	clientB := dialHub(t, hub)
	readMessage(t, clientB)
	require.NoError(t, clientB.WriteJSON(Message{Type: MsgSubscribe, Channel: "workflow:W"}))
	readMessage(t, clientB) // subscribed

	bus.Publish(event.New(event.TypeExecutionStarted, "E", "W"))

	msgA := readMessage(t, clientA)
	msgB := readMessage(t, clientB)
	assert.Equal(t, string(event.TypeExecutionStarted), msgA.Type)
	assert.Equal(t, string(event.TypeExecutionStarted), msgB.Type)

	// After A unsubscribes, the next event reaches only B. Unsubscribe has
	// no ack, so a ping round-trip confirms the read loop applied it.
	require.NoError(t, clientA.WriteJSON(Message{Type: MsgUnsubscribe, Channel: "execution:E"}))
	require.NoError(t, clientA.WriteJSON(Message{Type: MsgPing}))
	pong := readMessage(t, clientA)
	require.Equal(t, MsgPong, pong.Type)

	bus.Publish(event.New(event.TypeNodeCompleted, "E", "W", event.WithNodeID("n")))
	msg := readMessage(t, clientB)
	assert.Equal(t, string(event.TypeNodeCompleted), msg.Type)

	clientA.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var unexpected Message
	err := clientA.ReadJSON(&unexpected)
	assert.Error(t, err, "client A should receive nothing after unsubscribing")
}

func TestBroadcastToChannelExcludesClient(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	connA := dialHub(t, hub)
	welcomeA := readMessage(t, connA)
	clientA := welcomeA.Payload["clientId"].(string)
	require.NoError(t, connA.WriteJSON(Message{Type: MsgSubscribe, Channel: "room:1"}))
	readMessage(t, connA)

	connB := dialHub(t, hub)
	readMessage(t, connB)
	require.NoError(t, connB.WriteJSON(Message{Type: MsgSubscribe, Channel: "room:1"}))
	readMessage(t, connB)

	hub.BroadcastToChannel("room:1", &Message{Type: "announcement"}, clientA)

	msg := readMessage(t, connB)
	assert.Equal(t, "announcement", msg.Type)
	assert.Equal(t, "room:1", msg.Payload["channel"])

	connA.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var unexpected Message
	err := connA.ReadJSON(&unexpected)
	assert.Error(t, err, "excluded client should not receive the broadcast")
}

func TestClientCountTracksDisconnects(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	conn := dialHub(t, hub)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

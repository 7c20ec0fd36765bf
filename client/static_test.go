// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/flitmq/packets"
)

func dialStatic(t *testing.T, addr string, opts StaticOptions) *StaticClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	c, err := NewStatic(conn, opts)
	require.NoError(t, err)

	require.NoError(t, c.Connect(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { c.Close() })

	return c
}

func TestStaticClientPublishSubscribe(t *testing.T) {
	addr := startBroker(t)

	sub := dialStatic(t, addr, StaticOptions{ClientID: "static-sub"})
	pub := dialStatic(t, addr, StaticOptions{ClientID: "static-pub"})

	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, sub.Subscribe("embedded/data", deadline))
	require.NoError(t, pub.Publish("embedded/data", []byte("reading"), false))

	msg, err := sub.Recv(time.Now().Add(5 * time.Second))
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "embedded/data", msg.Topic)
	assert.Equal(t, []byte("reading"), msg.Payload)
}

func TestStaticClientRecvDeadline(t *testing.T) {
	addr := startBroker(t)
	c := dialStatic(t, addr, StaticOptions{ClientID: "static-idle"})

	msg, err := c.Recv(time.Now().Add(100 * time.Millisecond))
	require.NoError(t, err)
	assert.Nil(t, msg, "nothing published, Recv should time out quietly")
}

func TestStaticClientPing(t *testing.T) {
	addr := startBroker(t)
	c := dialStatic(t, addr, StaticOptions{ClientID: "static-ping"})

	assert.NoError(t, c.Ping(time.Now().Add(5*time.Second)))
}

func TestStaticClientOversizedInboundFatal(t *testing.T) {
	addr := startBroker(t)

	// Buffer far smaller than the message the publisher sends.
	sub := dialStatic(t, addr, StaticOptions{ClientID: "static-small", MaxPacketSize: 64})
	pub := connectedClient(t, addr, packets.V4)

	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, sub.Subscribe("bulk", deadline))
	require.NoError(t, pub.Publish("bulk", []byte(strings.Repeat("x", 512)), false))

	_, err := sub.Recv(time.Now().Add(5 * time.Second))
	assert.ErrorIs(t, err, packets.ErrPacketTooLarge)

	// The connection is gone after an oversize error.
	assert.ErrorIs(t, sub.Publish("bulk", []byte("y"), false), ErrNotConnected)
}

func TestStaticClientRingDropsNewest(t *testing.T) {
	addr := startBroker(t)

	sub := dialStatic(t, addr, StaticOptions{ClientID: "static-ring", RingSize: 2})
	pub := connectedClient(t, addr, packets.V4)

	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, sub.Subscribe("seq", deadline))

	// The publisher also subscribes and reads back its own messages,
	// confirming each one was routed before the next is sent.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pub.Subscribe(ctx, "seq"))

	for _, payload := range []string{"1", "2", "3", "4"} {
		require.NoError(t, pub.Publish("seq", []byte(payload), false))
		_, err := pub.Recv(ctx)
		require.NoError(t, err)
	}

	// Ping polls the connection; the publishes arrive first and fill
	// the ring, the overflow is dropped.
	require.NoError(t, sub.Ping(time.Now().Add(5*time.Second)))

	first, err := sub.Recv(time.Now().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, []byte("1"), first.Payload)

	second, err := sub.Recv(time.Now().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, []byte("2"), second.Payload)

	none, err := sub.Recv(time.Now().Add(100 * time.Millisecond))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStaticClientUnsubscribe(t *testing.T) {
	addr := startBroker(t)

	sub := dialStatic(t, addr, StaticOptions{ClientID: "static-unsub"})
	pub := connectedClient(t, addr, packets.V4)

	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, sub.Subscribe("gone", deadline))
	require.NoError(t, sub.Unsubscribe("gone", deadline))
	require.NoError(t, pub.Publish("gone", []byte("x"), false))

	msg, err := sub.Recv(time.Now().Add(200 * time.Millisecond))
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestNewStaticValidation(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	_, err := NewStatic(a, StaticOptions{})
	assert.ErrorIs(t, err, ErrEmptyClientID)

	_, err = NewStatic(a, StaticOptions{ClientID: "x", ProtocolVersion: 3})
	assert.ErrorIs(t, err, packets.ErrUnsupportedProtocolVersion)
}

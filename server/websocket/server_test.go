// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package websocket

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/flitmq/broker"
	"github.com/absmach/flitmq/packets"
)

func startServer(t *testing.T) (*Server, context.CancelFunc, chan error) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := broker.New(broker.Config{Logger: logger}, nil, nil)
	srv := New(Config{
		Address:         "127.0.0.1:0",
		Logger:          logger,
		ShutdownTimeout: time.Second,
	}, b)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(ctx)
	}()

	require.Eventually(t, func() bool {
		return srv.Addr() != nil
	}, time.Second, 5*time.Millisecond)

	return srv, cancel, errCh
}

func dialWS(t *testing.T, srv *Server) *Conn {
	t.Helper()

	url := fmt.Sprintf("ws://%s/mqtt", srv.Addr().String())
	ws, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return NewConn(ws)
}

func TestWebSocketConnectDelivery(t *testing.T) {
	srv, cancel, errCh := startServer(t)
	defer func() {
		cancel()
		require.NoError(t, <-errCh)
	}()

	conn := dialWS(t, srv)
	defer conn.Close()

	connect := packets.NewControlPacket(packets.ConnectType).(*packets.Connect)
	connect.ClientID = "ws-test"
	connect.KeepAlive = 30
	require.NoError(t, connect.Pack(conn, packets.V4))

	pkt, err := packets.ReadPacket(conn, packets.V4, 0)
	require.NoError(t, err)
	ack, ok := pkt.(*packets.ConnAck)
	require.True(t, ok)
	assert.Equal(t, packets.Accepted, ack.ReturnCode)

	sub := packets.NewControlPacket(packets.SubscribeType).(*packets.Subscribe)
	sub.ID = 1
	sub.Opts = []packets.SubOption{{Topic: "ws/topic"}}
	require.NoError(t, sub.Pack(conn, packets.V4))

	pkt, err = packets.ReadPacket(conn, packets.V4, 0)
	require.NoError(t, err)
	_, ok = pkt.(*packets.SubAck)
	require.True(t, ok)

	pub := packets.NewControlPacket(packets.PublishType).(*packets.Publish)
	pub.TopicName = "ws/topic"
	pub.Payload = []byte("hello")
	require.NoError(t, pub.Pack(conn, packets.V4))

	pkt, err = packets.ReadPacket(conn, packets.V4, 0)
	require.NoError(t, err)
	got, ok := pkt.(*packets.Publish)
	require.True(t, ok)
	assert.Equal(t, "ws/topic", got.TopicName)
	assert.Equal(t, []byte("hello"), got.Payload)
}

func TestConnReassemblesSplitFrames(t *testing.T) {
	srv, cancel, errCh := startServer(t)
	defer func() {
		cancel()
		require.NoError(t, <-errCh)
	}()

	url := fmt.Sprintf("ws://%s/mqtt", srv.Addr().String())
	ws, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn := NewConn(ws)
	defer conn.Close()

	// Send the CONNECT packet split across two frames; the stream
	// adapter on the broker side must reassemble it.
	connect := packets.NewControlPacket(packets.ConnectType).(*packets.Connect)
	connect.ClientID = "ws-split"
	connect.KeepAlive = 30
	raw := connect.Encode(packets.V4)

	require.NoError(t, ws.WriteMessage(gws.BinaryMessage, raw[:3]))
	require.NoError(t, ws.WriteMessage(gws.BinaryMessage, raw[3:]))

	pkt, err := packets.ReadPacket(conn, packets.V4, 0)
	require.NoError(t, err)
	ack, ok := pkt.(*packets.ConnAck)
	require.True(t, ok)
	assert.Equal(t, packets.Accepted, ack.ReturnCode)
}

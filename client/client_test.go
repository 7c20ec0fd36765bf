// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/flitmq/broker"
	"github.com/absmach/flitmq/packets"
)

// startBroker runs a broker on an ephemeral listener and returns its
// address.
func startBroker(t *testing.T) string {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := broker.New(broker.Config{Logger: logger}, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go b.HandleConnection(conn)
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		b.Close()
	})

	return ln.Addr().String()
}

func connectedClient(t *testing.T, addr string, version byte) *Client {
	t.Helper()

	c, err := New(NewOptions().
		SetServer(addr).
		SetProtocolVersion(version).
		SetKeepAlive(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { c.Close() })

	return c
}

func TestClientPublishSubscribe(t *testing.T) {
	for _, version := range []byte{packets.V4, packets.V5} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			addr := startBroker(t)

			sub := connectedClient(t, addr, version)
			pub := connectedClient(t, addr, version)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			require.NoError(t, sub.Subscribe(ctx, "readings/+/temp"))
			require.NoError(t, pub.Publish("readings/room1/temp", []byte("21.5"), false))

			msg, err := sub.Recv(ctx)
			require.NoError(t, err)
			assert.Equal(t, "readings/room1/temp", msg.Topic)
			assert.Equal(t, []byte("21.5"), msg.Payload)
			assert.True(t, msg.Matches("readings/+/temp"))
			assert.False(t, msg.Matches("readings/+/humidity"))
		})
	}
}

func TestClientRecvContextCancelled(t *testing.T) {
	addr := startBroker(t)
	c := connectedClient(t, addr, packets.V4)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientRecvDuringConnect(t *testing.T) {
	addr := startBroker(t)

	c, err := New(NewOptions().SetServer(addr).SetKeepAlive(0))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	// Recv may run concurrently with Connect without tripping the race
	// detector; with nothing published it times out.
	recvErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		_, err := c.Recv(ctx)
		recvErr <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	assert.ErrorIs(t, <-recvErr, context.DeadlineExceeded)
}

func TestClientPing(t *testing.T) {
	addr := startBroker(t)
	c := connectedClient(t, addr, packets.V4)

	assert.NoError(t, c.Ping())
}

func TestClientSubscribeInvalidFilter(t *testing.T) {
	addr := startBroker(t)
	c := connectedClient(t, addr, packets.V5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Subscribe(ctx, "bad/#/filter")
	assert.ErrorIs(t, err, ErrSubscribeFailed)
}

// startSubAckServer accepts one connection, completes the CONNECT
// handshake, then answers every SUBSCRIBE with the given return codes
// regardless of how many filters were requested.
func startSubAckServer(t *testing.T, codes []byte) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		pkt, err := packets.ReadPacket(conn, packets.V4, 0)
		if err != nil {
			return
		}
		if _, ok := pkt.(*packets.Connect); !ok {
			return
		}
		ack := &packets.ConnAck{FixedHeader: packets.FixedHeader{PacketType: packets.ConnAckType}}
		if err := ack.Pack(conn, packets.V4); err != nil {
			return
		}

		for {
			pkt, err := packets.ReadPacket(conn, packets.V4, 0)
			if err != nil {
				return
			}
			sub, ok := pkt.(*packets.Subscribe)
			if !ok {
				continue
			}
			sack := &packets.SubAck{
				FixedHeader: packets.FixedHeader{PacketType: packets.SubAckType},
				ID:          sub.ID,
				ReturnCodes: codes,
			}
			if err := sack.Pack(conn, packets.V4); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func TestClientSubscribeCodeCountMismatch(t *testing.T) {
	addr := startSubAckServer(t, []byte{0x00, 0x00, 0x80})
	c := connectedClient(t, addr, packets.V4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A SUBACK carrying more codes than filters must surface as an
	// error, never an out-of-range access.
	err := c.Subscribe(ctx, "only/one")
	assert.ErrorIs(t, err, ErrUnexpectedPacket)
}

func TestClientUnsubscribeStopsDelivery(t *testing.T) {
	addr := startBroker(t)

	sub := connectedClient(t, addr, packets.V4)
	pub := connectedClient(t, addr, packets.V4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sub.Subscribe(ctx, "alerts"))
	require.NoError(t, sub.Unsubscribe(ctx, "alerts"))
	require.NoError(t, pub.Publish("alerts", []byte("fire"), false))

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer shortCancel()
	_, err := sub.Recv(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientConnectTwice(t *testing.T) {
	addr := startBroker(t)
	c := connectedClient(t, addr, packets.V4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx), ErrAlreadyConnected)
}

func TestClientCloseIdempotent(t *testing.T) {
	addr := startBroker(t)
	c := connectedClient(t, addr, packets.V4)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())

	assert.ErrorIs(t, c.Publish("t", nil, false), ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx), ErrClientClosed)
}

func TestClientConnectRefused(t *testing.T) {
	c, err := New(NewOptions().
		SetServer("127.0.0.1:1").
		SetConnectTimeout(200 * time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx), ErrConnectFailed)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	require.NoError(t, opts.Validate())
	assert.NotEmpty(t, opts.ClientID, "empty client ID should be generated")

	bad := NewOptions().SetProtocolVersion(3)
	assert.Error(t, bad.Validate())

	noServer := NewOptions().SetServer("")
	assert.ErrorIs(t, noServer.Validate(), ErrNoServer)
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client provides two connectors for the broker: a threaded
// Client backed by a read goroutine, and a StaticClient that runs
// without goroutines on a fixed preallocated buffer.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/absmach/flitmq/packets"
)

// Client is a thread-safe QoS 0 client. A background goroutine reads
// inbound packets: publishes land on a buffered receive channel and
// acknowledgements complete the waiting call.
type Client struct {
	opts  *Options
	state *stateManager

	conn    net.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	recvCh chan *Message

	waiters   map[uint16]chan packets.ControlPacket
	pingCh    chan struct{}
	nextID    uint16
	waitersMu sync.Mutex

	doneCh chan struct{}
}

// New creates a client with the given options.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		opts:    opts,
		state:   newStateManager(),
		recvCh:  make(chan *Message, opts.RecvChanSize),
		waiters: make(map[uint16]chan packets.ControlPacket),
		pingCh:  make(chan struct{}, 1),
	}, nil
}

// Connect dials the broker and completes the CONNECT handshake.
func (c *Client) Connect(ctx context.Context) error {
	if c.state.isClosed() {
		return ErrClientClosed
	}
	if !c.state.transition(StateDisconnected, StateConnecting) {
		return ErrAlreadyConnected
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.state.set(StateDisconnected)
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	if err := c.handshake(ctx, conn); err != nil {
		conn.Close()
		c.state.set(StateDisconnected)
		return err
	}

	doneCh := make(chan struct{})
	c.connMu.Lock()
	c.conn = conn
	c.doneCh = doneCh
	c.connMu.Unlock()

	c.state.set(StateReady)

	go c.readLoop(conn, doneCh)
	if c.opts.KeepAlive > 0 {
		go c.pingLoop()
	}

	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.opts.ConnectTimeout}
	if c.opts.TLSConfig != nil {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: c.opts.TLSConfig}
		return tlsDialer.DialContext(ctx, "tcp", c.opts.Server)
	}
	return dialer.DialContext(ctx, "tcp", c.opts.Server)
}

func (c *Client) handshake(ctx context.Context, conn net.Conn) error {
	connect := &packets.Connect{
		FixedHeader:     packets.FixedHeader{PacketType: packets.ConnectType},
		ProtocolName:    "MQTT",
		ProtocolVersion: c.opts.ProtocolVersion,
		ClientID:        c.opts.ClientID,
		CleanSession:    true,
		KeepAlive:       uint16(c.opts.KeepAlive.Seconds()),
	}
	if c.opts.Username != "" {
		connect.UsernameFlag = true
		connect.Username = c.opts.Username
	}
	if c.opts.Password != "" {
		connect.PasswordFlag = true
		connect.Password = []byte(c.opts.Password)
	}

	deadline := time.Now().Add(c.opts.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(connect.Encode(c.opts.ProtocolVersion)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	pkt, err := packets.ReadPacket(conn, c.opts.ProtocolVersion, c.opts.MaxPacketSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	ack, ok := pkt.(*packets.ConnAck)
	if !ok {
		return ErrUnexpectedPacket
	}
	if ack.ReturnCode != 0 {
		return fmt.Errorf("%w: code 0x%02x", ErrConnectRefused, ack.ReturnCode)
	}
	return nil
}

// Publish sends an application message. Delivery is fire-and-forget.
func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	if !c.state.isReady() {
		return ErrNotConnected
	}
	if topic == "" {
		return ErrInvalidTopic
	}

	pub := &packets.Publish{
		FixedHeader: packets.FixedHeader{PacketType: packets.PublishType, Retain: retain},
		TopicName:   topic,
		Payload:     payload,
	}
	return c.send(pub)
}

// Subscribe registers the filters and waits for the SUBACK. A rejected
// filter surfaces as an error naming it.
func (c *Client) Subscribe(ctx context.Context, filters ...string) error {
	if !c.state.isReady() {
		return ErrNotConnected
	}
	if len(filters) == 0 {
		return ErrInvalidTopic
	}

	opts := make([]packets.SubOption, 0, len(filters))
	for _, f := range filters {
		opts = append(opts, packets.SubOption{Topic: f})
	}

	id, ch := c.addWaiter()
	defer c.removeWaiter(id)

	sub := &packets.Subscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.SubscribeType, QoS: 1},
		ID:          id,
		Opts:        opts,
	}
	if err := c.send(sub); err != nil {
		return err
	}

	pkt, err := c.wait(ctx, ch)
	if err != nil {
		return err
	}
	ack, ok := pkt.(*packets.SubAck)
	if !ok {
		return ErrUnexpectedPacket
	}
	if len(ack.ReturnCodes) != len(filters) {
		return fmt.Errorf("%w: SUBACK carried %d codes for %d filters",
			ErrUnexpectedPacket, len(ack.ReturnCodes), len(filters))
	}
	for i, code := range ack.ReturnCodes {
		if code >= 0x80 {
			return fmt.Errorf("%w: %s (code 0x%02x)", ErrSubscribeFailed, filters[i], code)
		}
	}
	return nil
}

// Unsubscribe removes the filters and waits for the UNSUBACK.
func (c *Client) Unsubscribe(ctx context.Context, filters ...string) error {
	if !c.state.isReady() {
		return ErrNotConnected
	}
	if len(filters) == 0 {
		return ErrInvalidTopic
	}

	id, ch := c.addWaiter()
	defer c.removeWaiter(id)

	unsub := &packets.Unsubscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.UnsubscribeType, QoS: 1},
		ID:          id,
		Topics:      filters,
	}
	if err := c.send(unsub); err != nil {
		return err
	}

	pkt, err := c.wait(ctx, ch)
	if err != nil {
		return err
	}
	if _, ok := pkt.(*packets.UnsubAck); !ok {
		return ErrUnexpectedPacket
	}
	return nil
}

// Recv returns the next inbound message, blocking until one arrives,
// the context is cancelled, or the connection closes.
func (c *Client) Recv(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-c.recvCh:
		if !ok {
			return nil, ErrNotConnected
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done():
		// Drain messages decoded before the connection dropped.
		select {
		case msg, ok := <-c.recvCh:
			if ok {
				return msg, nil
			}
		default:
		}
		return nil, ErrNotConnected
	}
}

// Ping sends a PINGREQ and waits for the PINGRESP.
func (c *Client) Ping() error {
	if !c.state.isReady() {
		return ErrNotConnected
	}

	// Clear a stale response left by an earlier timed-out ping.
	select {
	case <-c.pingCh:
	default:
	}

	ping := &packets.PingReq{FixedHeader: packets.FixedHeader{PacketType: packets.PingReqType}}
	if err := c.send(ping); err != nil {
		return err
	}

	select {
	case <-c.pingCh:
		return nil
	case <-time.After(c.opts.AckTimeout):
		return errors.New("ping timeout")
	case <-c.done():
		return ErrNotConnected
	}
}

// Close sends DISCONNECT and permanently shuts the client down.
func (c *Client) Close() error {
	if c.state.get() == StateClosed {
		return nil
	}
	wasReady := c.state.isReady()
	c.state.set(StateClosed)

	if wasReady {
		disconnect := &packets.Disconnect{FixedHeader: packets.FixedHeader{PacketType: packets.DisconnectType}}
		c.send(disconnect)
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	doneCh := c.doneCh
	c.connMu.Unlock()

	if doneCh != nil {
		<-doneCh
	}
	return nil
}

// State returns the current client state.
func (c *Client) State() State {
	return c.state.get()
}

// send encodes the packet fully in memory and writes it with a single
// Write call so a timeout never leaves a half-written packet behind.
func (c *Client) send(pkt packets.ControlPacket) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	buf := pkt.Encode(c.opts.ProtocolVersion)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	defer conn.SetWriteDeadline(time.Time{})

	_, err := conn.Write(buf)
	return err
}

func (c *Client) addWaiter() (uint16, chan packets.ControlPacket) {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()

	for {
		c.nextID++
		if c.nextID == 0 {
			c.nextID = 1
		}
		if _, taken := c.waiters[c.nextID]; !taken {
			break
		}
	}

	ch := make(chan packets.ControlPacket, 1)
	c.waiters[c.nextID] = ch
	return c.nextID, ch
}

func (c *Client) removeWaiter(id uint16) {
	c.waitersMu.Lock()
	delete(c.waiters, id)
	c.waitersMu.Unlock()
}

func (c *Client) wait(ctx context.Context, ch chan packets.ControlPacket) (packets.ControlPacket, error) {
	select {
	case pkt := <-ch:
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.opts.AckTimeout):
		return nil, errors.New("acknowledgement timeout")
	case <-c.done():
		return nil, ErrNotConnected
	}
}

// done returns the channel closed when the read loop exits; nil (which
// blocks forever in a select) before the first Connect.
func (c *Client) done() <-chan struct{} {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.doneCh
}

func (c *Client) readLoop(conn net.Conn, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		pkt, err := packets.ReadPacket(conn, c.opts.ProtocolVersion, c.opts.MaxPacketSize)
		if err != nil {
			if !c.state.isClosed() {
				c.state.set(StateDisconnected)
				conn.Close()
			}
			return
		}

		switch p := pkt.(type) {
		case *packets.Publish:
			msg := &Message{Topic: p.TopicName, Payload: p.Payload, Retain: p.Retain}
			select {
			case c.recvCh <- msg:
			default:
				// Receive channel full: drop, QoS 0 permits loss.
			}
		case *packets.SubAck:
			c.complete(p.ID, p)
		case *packets.UnsubAck:
			c.complete(p.ID, p)
		case *packets.PingResp:
			select {
			case c.pingCh <- struct{}{}:
			default:
			}
		case *packets.Disconnect:
			c.state.set(StateDisconnected)
			conn.Close()
			return
		}
	}
}

func (c *Client) complete(id uint16, pkt packets.ControlPacket) {
	c.waitersMu.Lock()
	ch, ok := c.waiters[id]
	c.waitersMu.Unlock()
	if ok {
		ch <- pkt
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !c.state.isReady() {
				return
			}
			if err := c.Ping(); err != nil {
				return
			}
		case <-c.done():
			return
		}
	}
}

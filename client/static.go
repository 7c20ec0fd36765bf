// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"net"
	"time"

	"github.com/absmach/flitmq/packets"
)

// StaticOptions configures a StaticClient.
type StaticOptions struct {
	ClientID        string
	Username        string
	Password        string
	ProtocolVersion byte
	KeepAlive       uint16
	MaxPacketSize   int // read buffer capacity; also the inbound packet limit
	RingSize        int // inbound message ring capacity
}

// StaticClient is a single-threaded QoS 0 client for constrained
// callers. All buffers are allocated once at construction: inbound
// packets are decoded from a fixed read buffer and queued messages
// live in a fixed ring. It starts no goroutines; the caller drives it
// by polling, and every blocking call takes a deadline.
type StaticClient struct {
	conn net.Conn
	opts StaticOptions

	buf []byte // fixed read buffer
	n   int    // bytes currently buffered

	ring  []*Message
	head  int
	count int

	nextID    uint16
	connected bool
	closed    bool
}

// NewStatic creates a static client over an established connection.
// The caller owns dialing so the transport can be anything that
// satisfies net.Conn.
func NewStatic(conn net.Conn, opts StaticOptions) (*StaticClient, error) {
	if opts.ProtocolVersion == 0 {
		opts.ProtocolVersion = packets.V4
	}
	if opts.ProtocolVersion != packets.V4 && opts.ProtocolVersion != packets.V5 {
		return nil, packets.ErrUnsupportedProtocolVersion
	}
	if opts.ClientID == "" {
		return nil, ErrEmptyClientID
	}
	if opts.MaxPacketSize == 0 {
		opts.MaxPacketSize = 4096
	}
	if opts.RingSize <= 0 {
		opts.RingSize = 8
	}

	return &StaticClient{
		conn: conn,
		opts: opts,
		buf:  make([]byte, opts.MaxPacketSize),
		ring: make([]*Message, opts.RingSize),
	}, nil
}

// Connect performs the CONNECT handshake before the deadline.
func (c *StaticClient) Connect(deadline time.Time) error {
	if c.closed {
		return ErrClientClosed
	}
	if c.connected {
		return ErrAlreadyConnected
	}

	connect := &packets.Connect{
		FixedHeader:     packets.FixedHeader{PacketType: packets.ConnectType},
		ProtocolName:    "MQTT",
		ProtocolVersion: c.opts.ProtocolVersion,
		ClientID:        c.opts.ClientID,
		CleanSession:    true,
		KeepAlive:       c.opts.KeepAlive,
	}
	if c.opts.Username != "" {
		connect.UsernameFlag = true
		connect.Username = c.opts.Username
	}
	if c.opts.Password != "" {
		connect.PasswordFlag = true
		connect.Password = []byte(c.opts.Password)
	}

	if err := c.write(connect, deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	pkt, err := c.step(deadline)
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
	c.connected = true
	return nil
}

// Publish sends an application message.
func (c *StaticClient) Publish(topic string, payload []byte, retain bool) error {
	if !c.connected {
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
	return c.write(pub, time.Now().Add(DefaultWriteTimeout))
}

// Subscribe registers the filter and polls until its SUBACK arrives.
// Publishes read along the way are queued on the ring.
func (c *StaticClient) Subscribe(filter string, deadline time.Time) error {
	if !c.connected {
		return ErrNotConnected
	}

	c.nextID++
	if c.nextID == 0 {
		c.nextID = 1
	}
	id := c.nextID

	sub := &packets.Subscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.SubscribeType, QoS: 1},
		ID:          id,
		Opts:        []packets.SubOption{{Topic: filter}},
	}
	if err := c.write(sub, deadline); err != nil {
		return err
	}

	for {
		pkt, err := c.step(deadline)
		if err != nil {
			return err
		}
		switch p := pkt.(type) {
		case *packets.SubAck:
			if p.ID != id {
				continue
			}
			for _, code := range p.ReturnCodes {
				if code >= 0x80 {
					return fmt.Errorf("%w: %s (code 0x%02x)", ErrSubscribeFailed, filter, code)
				}
			}
			return nil
		case *packets.Publish:
			c.enqueue(p)
		}
	}
}

// Unsubscribe removes the filter and polls until its UNSUBACK arrives.
func (c *StaticClient) Unsubscribe(filter string, deadline time.Time) error {
	if !c.connected {
		return ErrNotConnected
	}

	c.nextID++
	if c.nextID == 0 {
		c.nextID = 1
	}
	id := c.nextID

	unsub := &packets.Unsubscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.UnsubscribeType, QoS: 1},
		ID:          id,
		Topics:      []string{filter},
	}
	if err := c.write(unsub, deadline); err != nil {
		return err
	}

	for {
		pkt, err := c.step(deadline)
		if err != nil {
			return err
		}
		switch p := pkt.(type) {
		case *packets.UnsubAck:
			if p.ID == id {
				return nil
			}
		case *packets.Publish:
			c.enqueue(p)
		}
	}
}

// Recv returns the next queued message, polling the connection until
// the deadline when the ring is empty. A nil message with a nil error
// means nothing arrived in time.
func (c *StaticClient) Recv(deadline time.Time) (*Message, error) {
	if msg := c.dequeue(); msg != nil {
		return msg, nil
	}
	if !c.connected {
		return nil, ErrNotConnected
	}

	for {
		pkt, err := c.step(deadline)
		if err != nil {
			if isTimeout(err) {
				return nil, nil
			}
			return nil, err
		}
		if p, ok := pkt.(*packets.Publish); ok {
			return &Message{Topic: p.TopicName, Payload: p.Payload, Retain: p.Retain}, nil
		}
	}
}

// Ping sends a PINGREQ and polls for the PINGRESP.
func (c *StaticClient) Ping(deadline time.Time) error {
	if !c.connected {
		return ErrNotConnected
	}

	ping := &packets.PingReq{FixedHeader: packets.FixedHeader{PacketType: packets.PingReqType}}
	if err := c.write(ping, deadline); err != nil {
		return err
	}

	for {
		pkt, err := c.step(deadline)
		if err != nil {
			return err
		}
		switch p := pkt.(type) {
		case *packets.PingResp:
			return nil
		case *packets.Publish:
			c.enqueue(p)
		}
	}
}

// Close sends DISCONNECT and closes the connection.
func (c *StaticClient) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.connected {
		c.connected = false
		disconnect := &packets.Disconnect{FixedHeader: packets.FixedHeader{PacketType: packets.DisconnectType}}
		c.write(disconnect, time.Now().Add(DefaultWriteTimeout))
	}
	return c.conn.Close()
}

func (c *StaticClient) write(pkt packets.ControlPacket, deadline time.Time) error {
	c.conn.SetWriteDeadline(deadline)
	defer c.conn.SetWriteDeadline(time.Time{})

	_, err := c.conn.Write(pkt.Encode(c.opts.ProtocolVersion))
	return err
}

// step reads from the connection into the fixed buffer until one
// complete packet decodes. A packet that cannot fit the buffer is
// connection-fatal.
func (c *StaticClient) step(deadline time.Time) (packets.ControlPacket, error) {
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		if c.n > 0 {
			pkt, consumed, err := packets.Decode(c.buf[:c.n], c.opts.ProtocolVersion, c.opts.MaxPacketSize)
			switch {
			case err == nil:
				copy(c.buf, c.buf[consumed:c.n])
				c.n -= consumed
				return pkt, nil
			case err == packets.ErrIncomplete:
				if c.n == len(c.buf) {
					c.fatal()
					return nil, packets.ErrPacketTooLarge
				}
			default:
				c.fatal()
				return nil, err
			}
		}

		nr, err := c.conn.Read(c.buf[c.n:])
		c.n += nr
		if err != nil && nr == 0 {
			if !isTimeout(err) {
				c.fatal()
			}
			return nil, err
		}
	}
}

func (c *StaticClient) fatal() {
	c.connected = false
	c.conn.Close()
}

// enqueue adds a message to the ring, dropping the newest when full.
func (c *StaticClient) enqueue(p *packets.Publish) {
	if c.count == len(c.ring) {
		return
	}
	tail := (c.head + c.count) % len(c.ring)
	c.ring[tail] = &Message{Topic: p.TopicName, Payload: p.Payload, Retain: p.Retain}
	c.count++
}

func (c *StaticClient) dequeue() *Message {
	if c.count == 0 {
		return nil
	}
	msg := c.ring[c.head]
	c.ring[c.head] = nil
	c.head = (c.head + 1) % len(c.ring)
	c.count--
	return msg
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/flitmq/packets"
	"github.com/absmach/flitmq/topics"
)

var (
	// ErrProtocolViolation is returned when a session sends a packet
	// its state does not allow (no CONNECT first, a second CONNECT, a
	// broker-only packet from a client).
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrNotAuthorized is returned when authentication or an ACL check
	// rejects an action.
	ErrNotAuthorized = errors.New("not authorized")
)

// HandleConnection runs the full lifecycle of one connection:
// Connecting (wait for CONNECT, authenticate, register), Ready (packet
// loop) and Closing (drop subscriptions and session state). It blocks
// until the connection is done, so callers run it on its own goroutine.
func (b *Broker) HandleConnection(conn net.Conn) {
	if b.isClosed() {
		conn.Close()
		return
	}

	s, err := b.connect(conn)
	if err != nil {
		b.stats.connectFailures.Add(1)
		b.logger.Debug("connection rejected", slog.String("error", err.Error()))
		conn.Close()
		return
	}

	b.stats.connectionsTotal.Add(1)
	b.stats.connectionsCurrent.Add(1)
	b.logger.Info("session connected",
		slog.String("client_id", s.ID),
		slog.Int("version", int(s.Version)))

	err = b.serve(s)

	b.remove(s)
	b.stats.connectionsCurrent.Add(-1)
	if err != nil {
		b.logger.Info("session closed",
			slog.String("client_id", s.ID),
			slog.String("error", err.Error()))
		return
	}
	b.logger.Info("session disconnected", slog.String("client_id", s.ID))
}

// connect implements the Connecting state: one CONNECT within the
// configured timeout, authentication, eviction of a same-ID session
// and the CONNACK reply.
func (b *Broker) connect(conn net.Conn) (*Session, error) {
	conn.SetReadDeadline(time.Now().Add(b.cfg.ConnectTimeout))

	// The protocol version is not known before the CONNECT itself;
	// Connect decoding reads the level from the wire regardless of the
	// version passed here.
	pkt, err := packets.ReadPacket(conn, packets.V4, b.cfg.MaxPacketSize)
	if err != nil {
		return nil, err
	}
	connect, ok := pkt.(*packets.Connect)
	if !ok {
		return nil, ErrProtocolViolation
	}
	version := connect.ProtocolVersion

	clientID := connect.ClientID
	assigned := false
	if clientID == "" {
		clientID = uuid.NewString()
		assigned = true
	}

	if !b.auth.Authenticate(clientID, connect.Username, connect.Password) {
		b.stats.authFailures.Add(1)
		refused := &packets.ConnAck{
			FixedHeader: packets.FixedHeader{PacketType: packets.ConnAckType},
		}
		if version == packets.V5 {
			refused.ReturnCode = packets.ReasonNotAuthorized
		} else {
			refused.ReturnCode = packets.ErrRefusedNotAuthorized
		}
		refused.Pack(conn, version)
		return nil, ErrNotAuthorized
	}

	keepAlive := time.Duration(connect.KeepAlive) * time.Second
	s := newSession(clientID, version, conn, b.cfg.SessionQueueSize, b.cfg.MaxPacketSize, keepAlive, b.cfg.WriteTimeout, b.logger)
	b.register(s)

	ack := &packets.ConnAck{
		FixedHeader: packets.FixedHeader{PacketType: packets.ConnAckType},
		ReturnCode:  packets.Accepted,
	}
	if version == packets.V5 {
		qos0 := byte(0)
		ack.Properties = &packets.ConnAckProperties{MaximumQoS: &qos0}
		if assigned {
			ack.Properties.AssignedClientID = clientID
		}
	}
	if err := s.Send(ack); err != nil {
		b.remove(s)
		return nil, err
	}
	return s, nil
}

// serve implements the Ready state: read packets until the peer
// disconnects, errs out or violates the protocol.
func (b *Broker) serve(s *Session) error {
	for {
		pkt, err := s.ReadPacket()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				b.stats.keepAliveTimeouts.Add(1)
			} else {
				b.stats.packetErrors.Add(1)
			}
			return err
		}
		b.stats.messagesReceived.Add(1)

		switch p := pkt.(type) {
		case *packets.Publish:
			if err := b.handlePublish(s, p); err != nil {
				return err
			}
		case *packets.Subscribe:
			if err := b.handleSubscribe(s, p); err != nil {
				return err
			}
		case *packets.Unsubscribe:
			if err := b.handleUnsubscribe(s, p); err != nil {
				return err
			}
		case *packets.PingReq:
			resp := &packets.PingResp{FixedHeader: packets.FixedHeader{PacketType: packets.PingRespType}}
			if err := s.Send(resp); err != nil {
				return err
			}
		case *packets.Disconnect:
			return nil
		default:
			b.stats.packetErrors.Add(1)
			return ErrProtocolViolation
		}
	}
}

// handlePublish routes one inbound publish: name validation, write ACL,
// trie match and fan-out. QoS above 0 is accepted and delivered at 0.
func (b *Broker) handlePublish(s *Session, p *packets.Publish) error {
	if err := topics.ValidateName(p.TopicName); err != nil {
		b.stats.packetErrors.Add(1)
		return err
	}

	if !b.auth.ACL(s.ID, p.TopicName, true) {
		b.stats.authFailures.Add(1)
		if s.Version == packets.V5 {
			// v5 defines a reason the peer can see before the close.
			disc := &packets.Disconnect{
				FixedHeader: packets.FixedHeader{PacketType: packets.DisconnectType},
				ReasonCode:  packets.ReasonNotAuthorized,
			}
			s.Send(disc)
		}
		return ErrNotAuthorized
	}

	msg := &Message{Topic: p.TopicName, Payload: p.Payload, Retain: p.Retain}

	for _, id := range b.router.Match(p.TopicName) {
		target := b.session(id)
		if target == nil {
			continue
		}
		if err := target.Send(p.Copy()); err != nil {
			// QoS0: the subscriber is gone, the message is simply lost.
			b.stats.messagesDropped.Add(1)
			continue
		}
		b.stats.messagesSent.Add(1)
	}

	b.notify(s.ID, msg)
	return nil
}

// notify invokes the observer hook; its failure never affects routing.
func (b *Broker) notify(clientID string, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("message handler panicked",
				slog.String("client_id", clientID),
				slog.Any("panic", r))
		}
	}()
	b.handler.HandleMessage(clientID, msg)
}

// handleSubscribe checks each requested filter independently and
// replies SUBACK with one status per filter: granted QoS 0, or the
// version's failure code for an invalid or unauthorized filter.
func (b *Broker) handleSubscribe(s *Session, p *packets.Subscribe) error {
	codes := make([]byte, len(p.Opts))
	for i, opt := range p.Opts {
		switch {
		case topics.ValidateFilter(opt.Topic) != nil:
			if s.Version == packets.V5 {
				codes[i] = packets.ReasonTopicFilterInvalid
			} else {
				codes[i] = packets.ReasonSubackFailure
			}
		case !b.auth.ACL(s.ID, opt.Topic, false):
			b.stats.authFailures.Add(1)
			if s.Version == packets.V5 {
				codes[i] = packets.ReasonNotAuthorized
			} else {
				codes[i] = packets.ReasonSubackFailure
			}
		default:
			b.router.Subscribe(opt.Topic, s.ID)
			s.addFilter(opt.Topic)
			b.stats.subscriptionsActive.Add(1)
			codes[i] = packets.ReasonGrantedQoS0
		}
	}

	ack := &packets.SubAck{
		FixedHeader: packets.FixedHeader{PacketType: packets.SubAckType},
		ID:          p.ID,
		ReturnCodes: codes,
	}
	return s.Send(ack)
}

func (b *Broker) handleUnsubscribe(s *Session, p *packets.Unsubscribe) error {
	codes := make([]byte, len(p.Topics))
	for i, filter := range p.Topics {
		if !s.hasFilter(filter) {
			codes[i] = packets.ReasonNoSubscriptionExisted
			continue
		}
		codes[i] = packets.ReasonSuccess
		b.router.Unsubscribe(filter, s.ID)
		s.removeFilter(filter)
		b.stats.subscriptionsActive.Add(-1)
	}

	ack := &packets.UnsubAck{
		FixedHeader: packets.FixedHeader{PacketType: packets.UnsubAckType},
		ID:          p.ID,
	}
	if s.Version == packets.V5 {
		ack.ReasonCodes = codes
	}
	return s.Send(ack)
}

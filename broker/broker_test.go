// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/flitmq/packets"
)

// testPeer drives one side of a pipe as a raw MQTT client.
type testPeer struct {
	t       *testing.T
	conn    net.Conn
	version byte
}

func dialPeer(t *testing.T, b *Broker, version byte) *testPeer {
	t.Helper()
	client, server := net.Pipe()
	go b.HandleConnection(server)
	t.Cleanup(func() { client.Close() })
	return &testPeer{t: t, conn: client, version: version}
}

func (p *testPeer) connect(clientID, username string, password []byte) *packets.ConnAck {
	p.t.Helper()
	connect := &packets.Connect{
		FixedHeader:  packets.FixedHeader{PacketType: packets.ConnectType},
		ProtocolName: "MQTT",
		CleanSession: true,
		ClientID:     clientID,
		Username:     username,
		Password:     password,
		UsernameFlag: username != "",
		PasswordFlag: len(password) > 0,
	}
	connect.ProtocolVersion = p.version
	require.NoError(p.t, connect.Pack(p.conn, p.version))

	pkt := p.read()
	ack, ok := pkt.(*packets.ConnAck)
	require.True(p.t, ok, "expected CONNACK, got %T", pkt)
	return ack
}

func (p *testPeer) subscribe(id uint16, filters ...string) *packets.SubAck {
	p.t.Helper()
	sub := &packets.Subscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.SubscribeType, QoS: 1},
		ID:          id,
	}
	for _, f := range filters {
		sub.Opts = append(sub.Opts, packets.SubOption{Topic: f})
	}
	require.NoError(p.t, sub.Pack(p.conn, p.version))

	pkt := p.read()
	ack, ok := pkt.(*packets.SubAck)
	require.True(p.t, ok, "expected SUBACK, got %T", pkt)
	return ack
}

func (p *testPeer) publish(topic string, payload []byte) {
	p.t.Helper()
	pub := &packets.Publish{
		FixedHeader: packets.FixedHeader{PacketType: packets.PublishType},
		TopicName:   topic,
		Payload:     payload,
	}
	require.NoError(p.t, pub.Pack(p.conn, p.version))
}

func (p *testPeer) read() packets.ControlPacket {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	pkt, err := packets.ReadPacket(p.conn, p.version, 0)
	require.NoError(p.t, err)
	return pkt
}

// expectSilence asserts that no packet arrives within the window.
func (p *testPeer) expectSilence(d time.Duration) {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(d))
	_, err := packets.ReadPacket(p.conn, p.version, 0)
	var netErr net.Error
	require.ErrorAs(p.t, err, &netErr)
	require.True(p.t, netErr.Timeout())
}

func newTestBroker(t *testing.T, auth Authenticator, handler Handler) *Broker {
	t.Helper()
	b := New(Config{ConnectTimeout: 2 * time.Second, SessionQueueSize: 8}, auth, handler)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestEndToEndDelivery(t *testing.T) {
	for _, version := range []byte{packets.V4, packets.V5} {
		b := newTestBroker(t, nil, nil)

		sub := dialPeer(t, b, version)
		ack := sub.connect("client-a", "", nil)
		require.Equal(t, packets.Accepted, ack.ReturnCode)

		sack := sub.subscribe(1, "sensors/+/temp")
		require.Equal(t, []byte{packets.ReasonGrantedQoS0}, sack.ReturnCodes)

		pub := dialPeer(t, b, version)
		pub.connect("client-b", "", nil)
		pub.publish("sensors/room1/temp", []byte{0x01, 0x02})

		pkt := sub.read()
		msg, ok := pkt.(*packets.Publish)
		require.True(t, ok, "expected PUBLISH, got %T", pkt)
		assert.Equal(t, "sensors/room1/temp", msg.TopicName)
		assert.Equal(t, []byte{0x01, 0x02}, msg.Payload)
		assert.Equal(t, byte(0), msg.QoS)

		// A non-matching topic produces no delivery.
		pub.publish("sensors/room1/humidity", []byte{0x03})
		sub.expectSilence(200 * time.Millisecond)
	}
}

func TestPublisherReceivesOwnMessage(t *testing.T) {
	b := newTestBroker(t, nil, nil)

	peer := dialPeer(t, b, packets.V4)
	peer.connect("loopback", "", nil)
	peer.subscribe(1, "echo")
	peer.publish("echo", []byte("hi"))

	msg := peer.read().(*packets.Publish)
	assert.Equal(t, "echo", msg.TopicName)
}

func TestPingPong(t *testing.T) {
	b := newTestBroker(t, nil, nil)

	peer := dialPeer(t, b, packets.V4)
	peer.connect("pinger", "", nil)

	ping := &packets.PingReq{FixedHeader: packets.FixedHeader{PacketType: packets.PingReqType}}
	require.NoError(t, ping.Pack(peer.conn, peer.version))

	pkt := peer.read()
	_, ok := pkt.(*packets.PingResp)
	assert.True(t, ok, "expected PINGRESP, got %T", pkt)
}

type denyAuth struct {
	denyConnect bool
	denyWrites  map[string]bool
	denyFilters map[string]bool
}

func (a denyAuth) Authenticate(_, _ string, _ []byte) bool { return !a.denyConnect }

func (a denyAuth) ACL(_, topic string, write bool) bool {
	if write {
		return !a.denyWrites[topic]
	}
	return !a.denyFilters[topic]
}

func TestAuthenticationRejected(t *testing.T) {
	b := newTestBroker(t, denyAuth{denyConnect: true}, nil)

	peer := dialPeer(t, b, packets.V4)
	connect := &packets.Connect{
		FixedHeader:  packets.FixedHeader{PacketType: packets.ConnectType},
		ProtocolName: "MQTT",
		ClientID:     "rejected",
		CleanSession: true,
	}
	require.NoError(t, connect.Pack(peer.conn, peer.version))

	ack := peer.read().(*packets.ConnAck)
	assert.Equal(t, packets.ErrRefusedNotAuthorized, ack.ReturnCode)
	assert.Equal(t, 0, b.SessionCount())
}

func TestSubscribeACLGating(t *testing.T) {
	auth := denyAuth{denyFilters: map[string]bool{"secret/#": true}}
	b := newTestBroker(t, auth, nil)

	sub := dialPeer(t, b, packets.V4)
	sub.connect("snoop", "", nil)
	ack := sub.subscribe(1, "secret/#", "public/#")
	require.Equal(t, []byte{packets.ReasonSubackFailure, packets.ReasonGrantedQoS0}, ack.ReturnCodes)

	// The rejected filter must not appear in match results.
	assert.Empty(t, b.router.Match("secret/x"))
	assert.Equal(t, []string{"snoop"}, b.router.Match("public/x"))

	pub := dialPeer(t, b, packets.V4)
	pub.connect("teller", "", nil)
	pub.publish("secret/x", []byte("shh"))
	sub.expectSilence(200 * time.Millisecond)
}

func TestSubscribeInvalidFilter(t *testing.T) {
	b := newTestBroker(t, nil, nil)

	sub := dialPeer(t, b, packets.V5)
	sub.connect("strict", "", nil)
	ack := sub.subscribe(1, "a/#/b")
	require.Equal(t, []byte{packets.ReasonTopicFilterInvalid}, ack.ReturnCodes)
}

func TestPublishACLClosesConnection(t *testing.T) {
	auth := denyAuth{denyWrites: map[string]bool{"locked": true}}
	b := newTestBroker(t, auth, nil)

	pub := dialPeer(t, b, packets.V5)
	pub.connect("writer", "", nil)
	pub.publish("locked", []byte("no"))

	// v5 gets a DISCONNECT with a reason before the close.
	pkt := pub.read()
	disc, ok := pkt.(*packets.Disconnect)
	require.True(t, ok, "expected DISCONNECT, got %T", pkt)
	assert.Equal(t, packets.ReasonNotAuthorized, disc.ReasonCode)
}

func TestSessionEviction(t *testing.T) {
	b := newTestBroker(t, nil, nil)

	first := dialPeer(t, b, packets.V4)
	first.connect("dup", "", nil)
	first.subscribe(1, "evicted/topic")

	second := dialPeer(t, b, packets.V4)
	second.connect("dup", "", nil)

	// Exactly one live session remains and the first session's filters
	// are no longer matched.
	require.Eventually(t, func() bool { return b.SessionCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, b.router.Match("evicted/topic"))

	// The evicted peer sees its stream close.
	first.conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := packets.ReadPacket(first.conn, packets.V4, 0)
	require.Error(t, err)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBroker(t, nil, nil)

	sub := dialPeer(t, b, packets.V5)
	sub.connect("fickle", "", nil)
	sub.subscribe(1, "news")

	unsub := &packets.Unsubscribe{
		FixedHeader: packets.FixedHeader{PacketType: packets.UnsubscribeType, QoS: 1},
		ID:          2,
		Topics:      []string{"news", "never-subscribed"},
	}
	require.NoError(t, unsub.Pack(sub.conn, sub.version))

	ack := sub.read().(*packets.UnsubAck)
	assert.Equal(t, []byte{packets.ReasonSuccess, packets.ReasonNoSubscriptionExisted}, ack.ReasonCodes)

	pub := dialPeer(t, b, packets.V4)
	pub.connect("talker", "", nil)
	pub.publish("news", []byte("x"))
	sub.expectSilence(200 * time.Millisecond)
}

type recordingHandler struct {
	ch chan string
}

func (h *recordingHandler) HandleMessage(clientID string, msg *Message) {
	h.ch <- clientID + ":" + msg.Topic
}

func TestHandlerObservesRoutedPublish(t *testing.T) {
	h := &recordingHandler{ch: make(chan string, 1)}
	b := newTestBroker(t, nil, h)

	pub := dialPeer(t, b, packets.V4)
	pub.connect("observer-src", "", nil)
	pub.publish("observed/topic", []byte("x"))

	select {
	case got := <-h.ch:
		assert.Equal(t, "observer-src:observed/topic", got)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

type panicHandler struct{}

func (panicHandler) HandleMessage(string, *Message) { panic("boom") }

func TestHandlerPanicDoesNotAffectRouting(t *testing.T) {
	b := newTestBroker(t, nil, panicHandler{})

	sub := dialPeer(t, b, packets.V4)
	sub.connect("survivor", "", nil)
	sub.subscribe(1, "t")

	pub := dialPeer(t, b, packets.V4)
	pub.connect("bomber", "", nil)
	pub.publish("t", []byte("1"))

	msg := sub.read().(*packets.Publish)
	assert.Equal(t, "t", msg.TopicName)

	// The publisher's connection survives the handler panic.
	pub.publish("t", []byte("2"))
	msg = sub.read().(*packets.Publish)
	assert.Equal(t, []byte("2"), msg.Payload)
}

func TestConnectTimeout(t *testing.T) {
	b := New(Config{ConnectTimeout: 50 * time.Millisecond}, nil, nil)
	t.Cleanup(func() { b.Close() })

	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		b.HandleConnection(server)
		close(done)
	}()

	// Never send CONNECT; the broker must give up on its own.
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broker did not time out waiting for CONNECT")
	}
}

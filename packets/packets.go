// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package packets implements encoding and decoding of MQTT control
// packets for protocol versions 3.1.1 and 5.0. Packet types are shared
// between versions; every Encode/Unpack call takes an explicit version
// and dispatches to the version-specific variable-header logic
// internally, so the fixed-header and length handling exist only once.
package packets

import (
	"errors"
	"io"
)

// Protocol version constants. The value matches the protocol level
// byte carried in the CONNECT variable header.
const (
	V4 byte = 0x04 // MQTT 3.1.1
	V5 byte = 0x05 // MQTT 5.0
)

// DefaultMaxPacketSize bounds the remaining length a decoder accepts.
const DefaultMaxPacketSize = 1 << 20 // 1 MiB

// Packet type constants.
const (
	ConnectType = iota + 1 // 0 value is forbidden
	ConnAckType
	PublishType
	PubAckType
	PubRecType
	PubRelType
	PubCompType
	SubscribeType
	SubAckType
	UnsubscribeType
	UnsubAckType
	PingReqType
	PingRespType
	DisconnectType
	AuthType // MQTT 5.0 only
)

// PacketNames maps packet type constants to string names.
var PacketNames = map[byte]string{
	ConnectType:     "CONNECT",
	ConnAckType:     "CONNACK",
	PublishType:     "PUBLISH",
	PubAckType:      "PUBACK",
	PubRecType:      "PUBREC",
	PubRelType:      "PUBREL",
	PubCompType:     "PUBCOMP",
	SubscribeType:   "SUBSCRIBE",
	SubAckType:      "SUBACK",
	UnsubscribeType: "UNSUBSCRIBE",
	UnsubAckType:    "UNSUBACK",
	PingReqType:     "PINGREQ",
	PingRespType:    "PINGRESP",
	DisconnectType:  "DISCONNECT",
	AuthType:        "AUTH",
}

// V4 CONNACK return codes.
const (
	Accepted                        byte = 0x00
	ErrRefusedBadProtocolVersion    byte = 0x01
	ErrRefusedIDRejected            byte = 0x02
	ErrRefusedServerUnavailable     byte = 0x03
	ErrRefusedBadUsernameOrPassword byte = 0x04
	ErrRefusedNotAuthorized         byte = 0x05
)

// V5 reason codes used by this broker.
const (
	ReasonSuccess                 byte = 0x00
	ReasonGrantedQoS0             byte = 0x00
	ReasonUnspecifiedError        byte = 0x80
	ReasonMalformedPacket         byte = 0x81
	ReasonProtocolError           byte = 0x82
	ReasonUnsupportedProtocol     byte = 0x84
	ReasonBadUsernameOrPassword   byte = 0x86
	ReasonNotAuthorized           byte = 0x87
	ReasonTopicFilterInvalid      byte = 0x8F
	ReasonTopicNameInvalid        byte = 0x90
	ReasonPacketTooLarge          byte = 0x95
	ReasonNoSubscriptionExisted   byte = 0x11
	ReasonNormalDisconnection     byte = 0x00
	ReasonDisconnectWithWill      byte = 0x04
	ReasonServerShuttingDown      byte = 0x8B
	ReasonKeepAliveTimeout        byte = 0x8D
	ReasonSessionTakenOver        byte = 0x8E
	ReasonSubackFailure           byte = 0x80
	ReasonWildcardsNotSupported   byte = 0xA2
	ReasonQuotaExceeded           byte = 0x97
	ReasonImplementationSpecified byte = 0x83
)

var (
	// ErrIncomplete is returned by Decode when the buffer holds fewer
	// bytes than the packet declares. The caller should read more input
	// and retry; the connection is still healthy.
	ErrIncomplete = errors.New("incomplete packet")

	// ErrPacketTooLarge is returned when the declared remaining length
	// exceeds the configured maximum packet size. Fatal to the connection.
	ErrPacketTooLarge = errors.New("packet exceeds maximum packet size")

	// ErrInvalidPacketType is returned for a type nibble outside the
	// packet set this codec accepts.
	ErrInvalidPacketType = errors.New("invalid packet type")

	// ErrInvalidFlags is returned when the fixed-header flags nibble
	// does not match the value the packet type mandates.
	ErrInvalidFlags = errors.New("invalid fixed header flags")

	// ErrInvalidTopic is returned when a topic or filter on the wire is
	// empty or not valid UTF-8.
	ErrInvalidTopic = errors.New("invalid topic string")

	// ErrUnsupportedProtocolVersion is returned by Connect decoding for
	// protocol levels other than 4 and 5.
	ErrUnsupportedProtocolVersion = errors.New("unsupported protocol version")

	// ErrInvalidProperty is returned for a property identifier that is
	// not defined for the packet carrying it.
	ErrInvalidProperty = errors.New("invalid property for packet type")
)

// ControlPacket is the interface implemented by all MQTT control
// packets. Encoding and decoding take the protocol version of the
// connection; packets never store version state of their own.
type ControlPacket interface {
	// Encode serializes the full packet, fixed header included.
	Encode(version byte) []byte

	// Pack writes the encoded packet to the writer in a single call.
	Pack(w io.Writer, version byte) error

	// Unpack deserializes the variable header and payload from a reader
	// spanning exactly the packet body.
	Unpack(r io.Reader, version byte) error

	// Type returns the packet type constant.
	Type() byte

	// String returns a human-readable representation.
	String() string
}

// User represents a user property key-value pair (MQTT 5.0).
type User struct {
	Key, Value string
}

// NewControlPacket creates an empty packet of the given type, or nil
// for a type outside the QoS0 set.
func NewControlPacket(packetType byte) ControlPacket {
	switch packetType {
	case ConnectType:
		return &Connect{FixedHeader: FixedHeader{PacketType: ConnectType}}
	case ConnAckType:
		return &ConnAck{FixedHeader: FixedHeader{PacketType: ConnAckType}}
	case PublishType:
		return &Publish{FixedHeader: FixedHeader{PacketType: PublishType}}
	case SubscribeType:
		return &Subscribe{FixedHeader: FixedHeader{PacketType: SubscribeType, QoS: 1}}
	case SubAckType:
		return &SubAck{FixedHeader: FixedHeader{PacketType: SubAckType}}
	case UnsubscribeType:
		return &Unsubscribe{FixedHeader: FixedHeader{PacketType: UnsubscribeType, QoS: 1}}
	case UnsubAckType:
		return &UnsubAck{FixedHeader: FixedHeader{PacketType: UnsubAckType}}
	case PingReqType:
		return &PingReq{FixedHeader: FixedHeader{PacketType: PingReqType}}
	case PingRespType:
		return &PingResp{FixedHeader: FixedHeader{PacketType: PingRespType}}
	case DisconnectType:
		return &Disconnect{FixedHeader: FixedHeader{PacketType: DisconnectType}}
	}
	return nil
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/flitmq/packets/codec"
)

const protocolName = "MQTT"

// Connect is an internal representation of the fields of the CONNECT
// packet. The protocol version is carried in the packet itself, so
// Unpack ignores the version argument and reports what it found.
type Connect struct {
	FixedHeader
	ProtocolName    string
	ProtocolVersion byte
	UsernameFlag    bool
	PasswordFlag    bool
	WillRetain      bool
	WillQoS         byte
	WillFlag        bool
	CleanSession    bool // CleanStart in the v5 wording
	ReservedBit     byte
	KeepAlive       uint16

	Properties     *ConnectProperties
	WillProperties *WillProperties

	ClientID    string
	WillTopic   string
	WillMessage []byte
	Username    string
	Password    []byte
}

func (pkt *Connect) String() string {
	return fmt.Sprintf("%s\nprotocol: %s %d\nclient_id: %s\nclean_session: %t\nkeepalive: %d\nusername: %s\n",
		pkt.FixedHeader, pkt.ProtocolName, pkt.ProtocolVersion, pkt.ClientID, pkt.CleanSession, pkt.KeepAlive, pkt.Username)
}

func (pkt *Connect) Type() byte {
	return ConnectType
}

func (pkt *Connect) Encode(version byte) []byte {
	var body []byte
	body = append(body, codec.EncodeString(protocolName)...)
	body = append(body, version)

	var flags byte
	if pkt.UsernameFlag {
		flags |= 1 << 7
	}
	if pkt.PasswordFlag {
		flags |= 1 << 6
	}
	if pkt.WillRetain {
		flags |= 1 << 5
	}
	flags |= (pkt.WillQoS & 0x03) << 3
	if pkt.WillFlag {
		flags |= 1 << 2
	}
	if pkt.CleanSession {
		flags |= 1 << 1
	}
	body = append(body, flags)
	body = append(body, codec.EncodeUint16(pkt.KeepAlive)...)

	if version == V5 {
		var props []byte
		if pkt.Properties != nil {
			props = pkt.Properties.Encode()
		}
		body = append(body, encodePropArea(props)...)
	}

	body = append(body, codec.EncodeString(pkt.ClientID)...)
	if pkt.WillFlag {
		if version == V5 {
			var props []byte
			if pkt.WillProperties != nil {
				props = pkt.WillProperties.Encode()
			}
			body = append(body, encodePropArea(props)...)
		}
		body = append(body, codec.EncodeString(pkt.WillTopic)...)
		body = append(body, codec.EncodeBytes(pkt.WillMessage)...)
	}
	if pkt.UsernameFlag {
		body = append(body, codec.EncodeString(pkt.Username)...)
	}
	if pkt.PasswordFlag {
		body = append(body, codec.EncodeBytes(pkt.Password)...)
	}

	pkt.FixedHeader.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

func (pkt *Connect) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *Connect) Unpack(r io.Reader, _ byte) error {
	var err error
	pkt.ProtocolName, err = codec.DecodeString(r)
	if err != nil {
		return err
	}
	pkt.ProtocolVersion, err = codec.DecodeByte(r)
	if err != nil {
		return err
	}
	if pkt.ProtocolName != protocolName || (pkt.ProtocolVersion != V4 && pkt.ProtocolVersion != V5) {
		return fmt.Errorf("%w: %s %d", ErrUnsupportedProtocolVersion, pkt.ProtocolName, pkt.ProtocolVersion)
	}

	flags, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.ReservedBit = flags & 0x01
	pkt.CleanSession = flags&(1<<1) > 0
	pkt.WillFlag = flags&(1<<2) > 0
	pkt.WillQoS = (flags >> 3) & 0x03
	pkt.WillRetain = flags&(1<<5) > 0
	pkt.PasswordFlag = flags&(1<<6) > 0
	pkt.UsernameFlag = flags&(1<<7) > 0
	if pkt.ReservedBit != 0 {
		return fmt.Errorf("connect: %w", ErrInvalidFlags)
	}

	pkt.KeepAlive, err = codec.DecodeUint16(r)
	if err != nil {
		return err
	}

	if pkt.ProtocolVersion == V5 {
		props, err := readPropArea(r)
		if err != nil {
			return err
		}
		pkt.Properties = &ConnectProperties{}
		if err := pkt.Properties.Unpack(props); err != nil {
			return err
		}
	}

	pkt.ClientID, err = codec.DecodeString(r)
	if err != nil {
		return err
	}
	if pkt.WillFlag {
		if pkt.ProtocolVersion == V5 {
			props, err := readPropArea(r)
			if err != nil {
				return err
			}
			pkt.WillProperties = &WillProperties{}
			if err := pkt.WillProperties.Unpack(props); err != nil {
				return err
			}
		}
		if pkt.WillTopic, err = codec.DecodeString(r); err != nil {
			return err
		}
		if pkt.WillMessage, err = codec.DecodeBytes(r); err != nil {
			return err
		}
	}
	if pkt.UsernameFlag {
		if pkt.Username, err = codec.DecodeString(r); err != nil {
			return err
		}
	}
	if pkt.PasswordFlag {
		if pkt.Password, err = codec.DecodeBytes(r); err != nil {
			return err
		}
	}
	return nil
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/absmach/flitmq/packets/codec"
)

// Publish is an internal representation of the fields of the PUBLISH
// packet. ID is present on the wire only for QoS above 0, which this
// bus accepts but delivers downgraded.
type Publish struct {
	FixedHeader
	TopicName  string
	ID         uint16
	Properties *PublishProperties
	Payload    []byte
}

func (pkt *Publish) String() string {
	return fmt.Sprintf("%s\ntopic_name: %s\npacket_id: %d\npayload_len: %d\n", pkt.FixedHeader, pkt.TopicName, pkt.ID, len(pkt.Payload))
}

func (pkt *Publish) Type() byte {
	return PublishType
}

func (pkt *Publish) Encode(version byte) []byte {
	body := codec.EncodeString(pkt.TopicName)
	if pkt.QoS > 0 {
		body = append(body, codec.EncodeUint16(pkt.ID)...)
	}
	if version == V5 {
		var props []byte
		if pkt.Properties != nil {
			props = pkt.Properties.Encode()
		}
		body = append(body, encodePropArea(props)...)
	}
	body = append(body, pkt.Payload...)

	pkt.FixedHeader.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

func (pkt *Publish) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *Publish) Unpack(r io.Reader, version byte) error {
	var err error
	pkt.TopicName, err = codec.DecodeString(r)
	if err != nil {
		return err
	}
	if pkt.TopicName == "" || !utf8.ValidString(pkt.TopicName) {
		return fmt.Errorf("publish: %w", ErrInvalidTopic)
	}

	if pkt.QoS > 0 {
		if pkt.ID, err = codec.DecodeUint16(r); err != nil {
			return err
		}
	}

	if version == V5 {
		props, err := readPropArea(r)
		if err != nil {
			return err
		}
		pkt.Properties = &PublishProperties{}
		if err := pkt.Properties.Unpack(props); err != nil {
			return err
		}
	}

	// The reader spans exactly the packet body, so the payload is
	// whatever remains after the variable header.
	pkt.Payload, err = io.ReadAll(r)
	return err
}

// Copy returns a publish carrying the same topic, payload and retain
// flag but QoS 0 and no identifier, ready for fan-out delivery.
func (pkt *Publish) Copy() *Publish {
	return &Publish{
		FixedHeader: FixedHeader{PacketType: PublishType, Retain: pkt.Retain},
		TopicName:   pkt.TopicName,
		Payload:     pkt.Payload,
	}
}

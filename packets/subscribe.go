// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/absmach/flitmq/packets/codec"
)

// SubOption is one topic filter request inside a SUBSCRIBE payload.
// Of the v5 option bits only the QoS request survives here; this bus
// grants QoS 0 regardless.
type SubOption struct {
	Topic string
	QoS   byte
}

func (s SubOption) encode() []byte {
	return append(codec.EncodeString(s.Topic), s.QoS&0x03)
}

func (s *SubOption) unpack(r io.Reader) error {
	topic, err := codec.DecodeString(r)
	if err != nil {
		return err
	}
	if topic == "" || !utf8.ValidString(topic) {
		return fmt.Errorf("subscribe: %w", ErrInvalidTopic)
	}
	flags, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	s.Topic = topic
	s.QoS = flags & 0x03
	return nil
}

// Subscribe is an internal representation of the fields of the
// SUBSCRIBE packet.
type Subscribe struct {
	FixedHeader
	ID         uint16
	Properties *SubscribeProperties
	Opts       []SubOption
}

func (pkt *Subscribe) String() string {
	return fmt.Sprintf("%s\npacket_id: %d\nfilters: %d\n", pkt.FixedHeader, pkt.ID, len(pkt.Opts))
}

func (pkt *Subscribe) Type() byte {
	return SubscribeType
}

func (pkt *Subscribe) Encode(version byte) []byte {
	body := codec.EncodeUint16(pkt.ID)
	if version == V5 {
		var props []byte
		if pkt.Properties != nil {
			props = pkt.Properties.Encode()
		}
		body = append(body, encodePropArea(props)...)
	}
	for _, opt := range pkt.Opts {
		body = append(body, opt.encode()...)
	}

	pkt.FixedHeader.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

func (pkt *Subscribe) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *Subscribe) Unpack(r io.Reader, version byte) error {
	var err error
	pkt.ID, err = codec.DecodeUint16(r)
	if err != nil {
		return err
	}

	if version == V5 {
		props, err := readPropArea(r)
		if err != nil {
			return err
		}
		pkt.Properties = &SubscribeProperties{}
		if err := pkt.Properties.Unpack(props); err != nil {
			return err
		}
	}

	for {
		var opt SubOption
		err := opt.unpack(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		pkt.Opts = append(pkt.Opts, opt)
	}
	if len(pkt.Opts) == 0 {
		return fmt.Errorf("subscribe packet with no topic filters")
	}
	return nil
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/flitmq/packets/codec"
)

// UnsubAck is an internal representation of the fields of the UNSUBACK
// packet. ReasonCodes is v5-only; a v4 UNSUBACK carries none.
type UnsubAck struct {
	FixedHeader
	ID          uint16
	Properties  *BasicProperties
	ReasonCodes []byte
}

func (pkt *UnsubAck) String() string {
	return fmt.Sprintf("%s\npacket_id: %d\n", pkt.FixedHeader, pkt.ID)
}

func (pkt *UnsubAck) Type() byte {
	return UnsubAckType
}

func (pkt *UnsubAck) Encode(version byte) []byte {
	body := codec.EncodeUint16(pkt.ID)
	if version == V5 {
		var props []byte
		if pkt.Properties != nil {
			props = pkt.Properties.Encode()
		}
		body = append(body, encodePropArea(props)...)
		body = append(body, pkt.ReasonCodes...)
	}

	pkt.FixedHeader.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

func (pkt *UnsubAck) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *UnsubAck) Unpack(r io.Reader, version byte) error {
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
		pkt.Properties = &BasicProperties{}
		if err := pkt.Properties.Unpack(props); err != nil {
			return err
		}
		pkt.ReasonCodes, err = io.ReadAll(r)
		return err
	}
	return nil
}

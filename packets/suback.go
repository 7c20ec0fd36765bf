// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/flitmq/packets/codec"
)

// SubAck is an internal representation of the fields of the SUBACK
// packet. ReturnCodes holds one status byte per requested filter: the
// granted QoS (always 0 here) or a failure code.
type SubAck struct {
	FixedHeader
	ID          uint16
	Properties  *BasicProperties
	ReturnCodes []byte
}

func (pkt *SubAck) String() string {
	return fmt.Sprintf("%s\npacket_id: %d\nreturn_codes: %v\n", pkt.FixedHeader, pkt.ID, pkt.ReturnCodes)
}

func (pkt *SubAck) Type() byte {
	return SubAckType
}

func (pkt *SubAck) Encode(version byte) []byte {
	body := codec.EncodeUint16(pkt.ID)
	if version == V5 {
		var props []byte
		if pkt.Properties != nil {
			props = pkt.Properties.Encode()
		}
		body = append(body, encodePropArea(props)...)
	}
	body = append(body, pkt.ReturnCodes...)

	pkt.FixedHeader.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

func (pkt *SubAck) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *SubAck) Unpack(r io.Reader, version byte) error {
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
	}

	pkt.ReturnCodes, err = io.ReadAll(r)
	return err
}

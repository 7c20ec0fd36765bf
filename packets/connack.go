// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/flitmq/packets/codec"
)

// ConnAck is an internal representation of the fields of the CONNACK
// packet. ReturnCode carries the v4 return code or the v5 reason code
// depending on the connection's version.
type ConnAck struct {
	FixedHeader
	SessionPresent bool
	ReturnCode     byte
	Properties     *ConnAckProperties
}

func (pkt *ConnAck) String() string {
	return fmt.Sprintf("%s\nsession_present: %t\nreturn_code: %d\n", pkt.FixedHeader, pkt.SessionPresent, pkt.ReturnCode)
}

func (pkt *ConnAck) Type() byte {
	return ConnAckType
}

func (pkt *ConnAck) Encode(version byte) []byte {
	body := []byte{codec.EncodeBool(pkt.SessionPresent), pkt.ReturnCode}
	if version == V5 {
		var props []byte
		if pkt.Properties != nil {
			props = pkt.Properties.Encode()
		}
		body = append(body, encodePropArea(props)...)
	}
	pkt.FixedHeader.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

func (pkt *ConnAck) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *ConnAck) Unpack(r io.Reader, version byte) error {
	flags, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.SessionPresent = flags&0x01 > 0

	pkt.ReturnCode, err = codec.DecodeByte(r)
	if err != nil {
		return err
	}

	if version == V5 {
		props, err := readPropArea(r)
		if err != nil {
			return err
		}
		pkt.Properties = &ConnAckProperties{}
		return pkt.Properties.Unpack(props)
	}
	return nil
}

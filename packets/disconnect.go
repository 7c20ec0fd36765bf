// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/flitmq/packets/codec"
)

// Disconnect is an internal representation of the fields of the
// DISCONNECT packet. A v4 DISCONNECT is an empty packet; v5 optionally
// carries a reason code and properties.
type Disconnect struct {
	FixedHeader
	ReasonCode byte
	Properties *DisconnectProperties
}

func (pkt *Disconnect) String() string {
	return fmt.Sprintf("%s\nreason_code: %d\n", pkt.FixedHeader, pkt.ReasonCode)
}

func (pkt *Disconnect) Type() byte {
	return DisconnectType
}

func (pkt *Disconnect) Encode(version byte) []byte {
	var body []byte
	if version == V5 {
		// Reason code 0 with no properties may be elided entirely.
		if pkt.ReasonCode != 0 || pkt.Properties != nil {
			body = append(body, pkt.ReasonCode)
			var props []byte
			if pkt.Properties != nil {
				props = pkt.Properties.Encode()
			}
			body = append(body, encodePropArea(props)...)
		}
	}
	pkt.FixedHeader.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

func (pkt *Disconnect) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *Disconnect) Unpack(r io.Reader, version byte) error {
	if version != V5 || pkt.FixedHeader.RemainingLength == 0 {
		return nil
	}

	var err error
	pkt.ReasonCode, err = codec.DecodeByte(r)
	if err != nil {
		return err
	}
	if pkt.FixedHeader.RemainingLength < 2 {
		return nil
	}
	props, err := readPropArea(r)
	if err != nil {
		return err
	}
	pkt.Properties = &DisconnectProperties{}
	return pkt.Properties.Unpack(props)
}

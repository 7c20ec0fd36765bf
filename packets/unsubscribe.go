// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/absmach/flitmq/packets/codec"
)

// Unsubscribe is an internal representation of the fields of the
// UNSUBSCRIBE packet.
type Unsubscribe struct {
	FixedHeader
	ID         uint16
	Properties *UserProperties
	Topics     []string
}

func (pkt *Unsubscribe) String() string {
	return fmt.Sprintf("%s\npacket_id: %d\ntopics: %v\n", pkt.FixedHeader, pkt.ID, pkt.Topics)
}

func (pkt *Unsubscribe) Type() byte {
	return UnsubscribeType
}

func (pkt *Unsubscribe) Encode(version byte) []byte {
	body := codec.EncodeUint16(pkt.ID)
	if version == V5 {
		var props []byte
		if pkt.Properties != nil {
			props = pkt.Properties.Encode()
		}
		body = append(body, encodePropArea(props)...)
	}
	for _, topic := range pkt.Topics {
		body = append(body, codec.EncodeString(topic)...)
	}

	pkt.FixedHeader.RemainingLength = len(body)
	return append(pkt.FixedHeader.Encode(), body...)
}

func (pkt *Unsubscribe) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *Unsubscribe) Unpack(r io.Reader, version byte) error {
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
		pkt.Properties = &UserProperties{}
		if err := pkt.Properties.Unpack(props); err != nil {
			return err
		}
	}

	for {
		topic, err := codec.DecodeString(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if topic == "" || !utf8.ValidString(topic) {
			return fmt.Errorf("unsubscribe: %w", ErrInvalidTopic)
		}
		pkt.Topics = append(pkt.Topics, topic)
	}
	if len(pkt.Topics) == 0 {
		return fmt.Errorf("unsubscribe packet with no topic filters")
	}
	return nil
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"

	"github.com/absmach/flitmq/packets/codec"
)

const headerFormat = "type: %s dup: %t qos: %d retain: %t remaining_length: %d"

// FixedHeader represents the MQTT fixed header present in all packets:
// one byte packing the type nibble and flags nibble, followed by the
// remaining length as a Variable Byte Integer.
type FixedHeader struct {
	PacketType      byte
	Dup             bool
	QoS             byte
	Retain          bool
	RemainingLength int
}

func (fh FixedHeader) String() string {
	return fmt.Sprintf(headerFormat, PacketNames[fh.PacketType], fh.Dup, fh.QoS, fh.Retain, fh.RemainingLength)
}

// Encode serializes the fixed header.
func (fh FixedHeader) Encode() []byte {
	var dup, retain byte
	if fh.Dup {
		dup = 1
	}
	if fh.Retain {
		retain = 1
	}
	ret := []byte{fh.PacketType<<4 | dup<<3 | fh.QoS<<1 | retain}
	return append(ret, codec.EncodeVBI(fh.RemainingLength)...)
}

// DecodeFromBytes parses the fixed header from the front of data and
// returns the number of bytes consumed. A truncated header yields
// codec.ErrBufferTooShort so callers can buffer more input.
func (fh *FixedHeader) DecodeFromBytes(data []byte) (int, error) {
	if len(data) < 2 {
		return 0, codec.ErrBufferTooShort
	}

	fh.PacketType = data[0] >> 4
	fh.Dup = (data[0]>>3)&0x01 > 0
	fh.QoS = (data[0] >> 1) & 0x03
	fh.Retain = data[0]&0x01 > 0

	length, n, err := codec.DecodeVBIFromBytes(data[1:])
	if err != nil {
		return 0, err
	}
	fh.RemainingLength = length
	return 1 + n, nil
}

// validateFlags checks the flags nibble against the value the packet
// type mandates. PUBLISH is the only type with meaningful flags.
func (fh FixedHeader) validateFlags() error {
	switch fh.PacketType {
	case PublishType:
		if fh.QoS > 2 {
			return ErrInvalidFlags
		}
	case SubscribeType, UnsubscribeType:
		// Mandated flags nibble 0b0010 maps to QoS 1.
		if fh.Dup || fh.Retain || fh.QoS != 1 {
			return ErrInvalidFlags
		}
	default:
		if fh.Dup || fh.Retain || fh.QoS != 0 {
			return ErrInvalidFlags
		}
	}
	return nil
}

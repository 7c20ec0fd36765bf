// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/absmach/flitmq/packets/codec"
)

// ReadPacket reads one full control packet from a byte stream. It
// blocks until the declared remaining length has arrived, so it is the
// entry point for connection loops that own a socket. maxPacketSize
// bounds the remaining length; zero means DefaultMaxPacketSize.
func ReadPacket(r io.Reader, version byte, maxPacketSize int) (ControlPacket, error) {
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}

	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return nil, err
	}

	fh := FixedHeader{
		PacketType: first[0] >> 4,
		Dup:        (first[0]>>3)&0x01 > 0,
		QoS:        (first[0] >> 1) & 0x03,
		Retain:     first[0]&0x01 > 0,
	}

	length, err := codec.DecodeVBI(r)
	if err != nil {
		return nil, err
	}
	if length > maxPacketSize {
		return nil, fmt.Errorf("%w: remaining length %d > %d", ErrPacketTooLarge, length, maxPacketSize)
	}
	fh.RemainingLength = length

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	return unpackBody(fh, body, version)
}

// Decode parses one control packet from the front of buf and returns
// the packet and the number of bytes consumed. When buf holds fewer
// bytes than the packet declares it returns ErrIncomplete so the
// caller can buffer more input and retry; every other failure is fatal
// to the connection.
func Decode(buf []byte, version byte, maxPacketSize int) (ControlPacket, int, error) {
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}

	var fh FixedHeader
	consumed, err := fh.DecodeFromBytes(buf)
	if err != nil {
		if errors.Is(err, codec.ErrBufferTooShort) {
			return nil, 0, ErrIncomplete
		}
		return nil, 0, err
	}
	if fh.RemainingLength > maxPacketSize {
		return nil, 0, fmt.Errorf("%w: remaining length %d > %d", ErrPacketTooLarge, fh.RemainingLength, maxPacketSize)
	}
	if len(buf) < consumed+fh.RemainingLength {
		return nil, 0, ErrIncomplete
	}

	body := buf[consumed : consumed+fh.RemainingLength]
	pkt, err := unpackBody(fh, body, version)
	if err != nil {
		return nil, 0, err
	}
	return pkt, consumed + fh.RemainingLength, nil
}

func unpackBody(fh FixedHeader, body []byte, version byte) (ControlPacket, error) {
	if err := fh.validateFlags(); err != nil {
		return nil, fmt.Errorf("%s: %w", PacketNames[fh.PacketType], err)
	}

	pkt := NewControlPacket(fh.PacketType)
	if pkt == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPacketType, fh.PacketType)
	}
	setFixedHeader(pkt, fh)

	if err := pkt.Unpack(bytes.NewReader(body), version); err != nil {
		// A short body means the declared remaining length lied about
		// the content, which is a protocol error, not a partial read.
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%s: body shorter than declared length", PacketNames[fh.PacketType])
		}
		return nil, err
	}
	return pkt, nil
}

func setFixedHeader(pkt ControlPacket, fh FixedHeader) {
	switch p := pkt.(type) {
	case *Connect:
		p.FixedHeader = fh
	case *ConnAck:
		p.FixedHeader = fh
	case *Publish:
		p.FixedHeader = fh
	case *Subscribe:
		p.FixedHeader = fh
	case *SubAck:
		p.FixedHeader = fh
	case *Unsubscribe:
		p.FixedHeader = fh
	case *UnsubAck:
		p.FixedHeader = fh
	case *PingReq:
		p.FixedHeader = fh
	case *PingResp:
		p.FixedHeader = fh
	case *Disconnect:
		p.FixedHeader = fh
	}
}

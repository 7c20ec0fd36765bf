// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	// ErrMalformedVBI is returned when a Variable Byte Integer uses more
	// than four digits or a continuation bit points past the input.
	ErrMalformedVBI = errors.New("malformed variable byte integer")

	// ErrBufferTooShort is returned by the buffer-oriented decoders when
	// the input holds fewer bytes than the field declares. It signals
	// that the caller should buffer more input, not a format error.
	ErrBufferTooShort = errors.New("buffer too short")
)

// MaxVBI is the largest value encodable in four VBI digits.
const MaxVBI = 268435455

func DecodeByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func DecodeUint16(r io.Reader) (uint16, error) {
	var num [2]byte
	if _, err := io.ReadFull(r, num[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(num[:]), nil
}

func DecodeUint32(r io.Reader) (uint32, error) {
	var num [4]byte
	if _, err := io.ReadFull(r, num[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(num[:]), nil
}

func DecodeBytes(r io.Reader) ([]byte, error) {
	fieldLength, err := DecodeUint16(r)
	if err != nil {
		return nil, err
	}
	field := make([]byte, fieldLength)
	if _, err := io.ReadFull(r, field); err != nil {
		return nil, err
	}
	return field, nil
}

func DecodeString(r io.Reader) (string, error) {
	buf, err := DecodeBytes(r)
	return string(buf), err
}

// DecodeVBI reads a Variable Byte Integer from r. At most four digits
// are consumed; a fifth continuation bit is a protocol error.
func DecodeVBI(r io.Reader) (int, error) {
	var vbi uint32
	var shift uint
	var b [1]byte
	for i := 0; i < 4; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		digit := b[0]
		vbi |= uint32(digit&0x7F) << shift
		if digit&0x80 == 0 {
			return int(vbi), nil
		}
		shift += 7
	}
	return 0, ErrMalformedVBI
}

// DecodeVBIFromBytes decodes a Variable Byte Integer from the front of
// data and reports the number of bytes consumed. A truncated integer
// (continuation bit on the last available byte) yields ErrBufferTooShort
// so a streaming caller can retry with more input.
func DecodeVBIFromBytes(data []byte) (int, int, error) {
	var vbi uint32
	var shift uint
	for i := 0; i < 4; i++ {
		if i >= len(data) {
			return 0, 0, ErrBufferTooShort
		}
		digit := data[i]
		vbi |= uint32(digit&0x7F) << shift
		if digit&0x80 == 0 {
			return int(vbi), i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrMalformedVBI
}

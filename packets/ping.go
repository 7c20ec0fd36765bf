// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import "io"

// PingReq is an internal representation of the PINGREQ packet. It has
// no variable header or payload in either protocol version.
type PingReq struct {
	FixedHeader
}

func (pkt *PingReq) String() string { return pkt.FixedHeader.String() }

func (pkt *PingReq) Type() byte { return PingReqType }

func (pkt *PingReq) Encode(_ byte) []byte {
	pkt.FixedHeader.RemainingLength = 0
	return pkt.FixedHeader.Encode()
}

func (pkt *PingReq) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *PingReq) Unpack(_ io.Reader, _ byte) error { return nil }

// PingResp is an internal representation of the PINGRESP packet.
type PingResp struct {
	FixedHeader
}

func (pkt *PingResp) String() string { return pkt.FixedHeader.String() }

func (pkt *PingResp) Type() byte { return PingRespType }

func (pkt *PingResp) Encode(_ byte) []byte {
	pkt.FixedHeader.RemainingLength = 0
	return pkt.FixedHeader.Encode()
}

func (pkt *PingResp) Pack(w io.Writer, version byte) error {
	_, err := w.Write(pkt.Encode(version))
	return err
}

func (pkt *PingResp) Unpack(_ io.Reader, _ byte) error { return nil }

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "errors"

// Client errors.
var (
	ErrClientClosed     = errors.New("client is closed")
	ErrNoServer         = errors.New("no server address configured")
	ErrEmptyClientID    = errors.New("client ID cannot be empty")
	ErrAlreadyConnected = errors.New("client is already connected")
	ErrNotConnected     = errors.New("client is not connected")
	ErrConnectFailed    = errors.New("connection failed")
	ErrConnectRefused   = errors.New("connection refused by server")
	ErrUnexpectedPacket = errors.New("unexpected packet type")
	ErrInvalidTopic     = errors.New("invalid topic")
	ErrSubscribeFailed  = errors.New("subscription rejected")
	ErrBufferFull       = errors.New("receive buffer full")
)

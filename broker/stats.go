// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import "sync/atomic"

// Stats holds the broker's runtime counters. All fields are updated
// atomically from session goroutines; Snapshot is safe to call at any
// time.
type Stats struct {
	connectionsTotal    atomic.Int64
	connectionsCurrent  atomic.Int64
	connectFailures     atomic.Int64
	messagesReceived    atomic.Int64
	messagesSent        atomic.Int64
	messagesDropped     atomic.Int64
	subscriptionsActive atomic.Int64
	authFailures        atomic.Int64
	packetErrors        atomic.Int64
	keepAliveTimeouts   atomic.Int64
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// StatsSnapshot is a point-in-time copy of the broker counters.
type StatsSnapshot struct {
	ConnectionsTotal    int64
	ConnectionsCurrent  int64
	ConnectFailures     int64
	MessagesReceived    int64
	MessagesSent        int64
	MessagesDropped     int64
	SubscriptionsActive int64
	AuthFailures        int64
	PacketErrors        int64
	KeepAliveTimeouts   int64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ConnectionsTotal:    s.connectionsTotal.Load(),
		ConnectionsCurrent:  s.connectionsCurrent.Load(),
		ConnectFailures:     s.connectFailures.Load(),
		MessagesReceived:    s.messagesReceived.Load(),
		MessagesSent:        s.messagesSent.Load(),
		MessagesDropped:     s.messagesDropped.Load(),
		SubscriptionsActive: s.subscriptionsActive.Load(),
		AuthFailures:        s.authFailures.Load(),
		PacketErrors:        s.packetErrors.Load(),
		KeepAliveTimeouts:   s.keepAliveTimeouts.Load(),
	}
}

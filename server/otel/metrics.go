// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/absmach/flitmq/broker"
)

// Metrics observes broker counters through OpenTelemetry asynchronous
// instruments. The broker keeps plain atomic counters and has no
// metrics dependency; the bridge reads a snapshot on each collection.
type Metrics struct {
	registration metric.Registration
}

// NewMetrics registers observable instruments over the broker's stats.
func NewMetrics(stats *broker.Stats) (*Metrics, error) {
	meter := otel.Meter("flitmq")

	connectionsTotal, err := meter.Int64ObservableCounter(
		"mqtt.connections.total",
		metric.WithDescription("Total accepted connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connections counter: %w", err)
	}

	connectionsCurrent, err := meter.Int64ObservableUpDownCounter(
		"mqtt.connections.current",
		metric.WithDescription("Current live connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connections gauge: %w", err)
	}

	connectFailures, err := meter.Int64ObservableCounter(
		"mqtt.connect.failures.total",
		metric.WithDescription("CONNECT handshakes that did not produce a session"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connect failures counter: %w", err)
	}

	messagesReceived, err := meter.Int64ObservableCounter(
		"mqtt.messages.received.total",
		metric.WithDescription("Publishes received from clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages received counter: %w", err)
	}

	messagesSent, err := meter.Int64ObservableCounter(
		"mqtt.messages.sent.total",
		metric.WithDescription("Publishes delivered to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages sent counter: %w", err)
	}

	messagesDropped, err := meter.Int64ObservableCounter(
		"mqtt.messages.dropped.total",
		metric.WithDescription("Publishes dropped because a subscriber queue was unavailable"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages dropped counter: %w", err)
	}

	subscriptionsActive, err := meter.Int64ObservableUpDownCounter(
		"mqtt.subscriptions.active",
		metric.WithDescription("Active subscriptions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions gauge: %w", err)
	}

	authFailures, err := meter.Int64ObservableCounter(
		"mqtt.auth.failures.total",
		metric.WithDescription("Rejected authentication attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth failures counter: %w", err)
	}

	packetErrors, err := meter.Int64ObservableCounter(
		"mqtt.packet.errors.total",
		metric.WithDescription("Malformed or unexpected packets"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create packet errors counter: %w", err)
	}

	keepAliveTimeouts, err := meter.Int64ObservableCounter(
		"mqtt.keepalive.timeouts.total",
		metric.WithDescription("Sessions closed for missing the keep-alive deadline"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create keep-alive timeouts counter: %w", err)
	}

	registration, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			snap := stats.Snapshot()
			o.ObserveInt64(connectionsTotal, snap.ConnectionsTotal)
			o.ObserveInt64(connectionsCurrent, snap.ConnectionsCurrent)
			o.ObserveInt64(connectFailures, snap.ConnectFailures)
			o.ObserveInt64(messagesReceived, snap.MessagesReceived)
			o.ObserveInt64(messagesSent, snap.MessagesSent)
			o.ObserveInt64(messagesDropped, snap.MessagesDropped)
			o.ObserveInt64(subscriptionsActive, snap.SubscriptionsActive)
			o.ObserveInt64(authFailures, snap.AuthFailures)
			o.ObserveInt64(packetErrors, snap.PacketErrors)
			o.ObserveInt64(keepAliveTimeouts, snap.KeepAliveTimeouts)
			return nil
		},
		connectionsTotal,
		connectionsCurrent,
		connectFailures,
		messagesReceived,
		messagesSent,
		messagesDropped,
		subscriptionsActive,
		authFailures,
		packetErrors,
		keepAliveTimeouts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics callback: %w", err)
	}

	return &Metrics{registration: registration}, nil
}

// Unregister stops observing the broker counters.
func (m *Metrics) Unregister() error {
	return m.registration.Unregister()
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "github.com/absmach/flitmq/topics"

// Message is an application message received from the broker.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// Matches reports whether the message topic matches the given filter.
// Useful for demultiplexing when subscribed to several wildcards.
func (m *Message) Matches(filter string) bool {
	return topics.Match(filter, m.Topic)
}

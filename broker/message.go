// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

// Message is a published payload in transit between sessions. It is
// created when a publish is accepted and dropped after the delivery
// attempt; the broker keeps no copy.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

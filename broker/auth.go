// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

// Authenticator approves connections and gates per-action access. It
// is supplied by the embedding application; the broker treats it as
// stateless and calls it from multiple goroutines.
type Authenticator interface {
	// Authenticate decides whether a CONNECT with the given identity is
	// accepted.
	Authenticate(clientID, username string, password []byte) bool

	// ACL decides whether clientID may act on topic. write is true for
	// a publish, false for a subscribe (topic is a filter then).
	ACL(clientID, topic string, write bool) bool
}

// AllowAll is the default Authenticator: every connection and action
// is admitted.
type AllowAll struct{}

func (AllowAll) Authenticate(_, _ string, _ []byte) bool { return true }

func (AllowAll) ACL(_, _ string, _ bool) bool { return true }

// Handler observes successfully routed publishes. Failures inside the
// hook never affect routing; the broker recovers panics and moves on.
type Handler interface {
	HandleMessage(clientID string, msg *Message)
}

// NopHandler discards every message notification.
type NopHandler struct{}

func (NopHandler) HandleMessage(_ string, _ *Message) {}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package broker implements a QoS0 MQTT broker: one goroutine per
// connection, a shared subscription trie and fire-and-forget fan-out.
// Delivery offers no acknowledgement or retry; a message that cannot
// be written to a subscriber is dropped with the connection.
package broker

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds broker-level settings.
type Config struct {
	// MaxPacketSize bounds the remaining length of any inbound packet.
	// Zero means packets.DefaultMaxPacketSize.
	MaxPacketSize int

	// ConnectTimeout bounds the wait for the initial CONNECT packet.
	ConnectTimeout time.Duration

	// SessionQueueSize is the per-session outbound queue capacity.
	SessionQueueSize int

	// WriteTimeout bounds a single packet write to a session.
	WriteTimeout time.Duration

	// Logger receives broker events. Nil means slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.SessionQueueSize == 0 {
		c.SessionQueueSize = 128
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Broker owns the session table and the subscription trie, and fans
// published messages out to matching sessions.
type Broker struct {
	cfg    Config
	logger *slog.Logger

	auth    Authenticator
	handler Handler
	router  *Router
	stats   *Stats

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// New creates a broker with the given configuration. A nil auth means
// AllowAll; a nil handler means NopHandler.
func New(cfg Config, auth Authenticator, handler Handler) *Broker {
	cfg.applyDefaults()
	if auth == nil {
		auth = AllowAll{}
	}
	if handler == nil {
		handler = NopHandler{}
	}
	return &Broker{
		cfg:      cfg,
		logger:   cfg.Logger,
		auth:     auth,
		handler:  handler,
		router:   NewRouter(),
		stats:    NewStats(),
		sessions: make(map[string]*Session),
	}
}

// Stats returns the broker's counters.
func (b *Broker) Stats() *Stats {
	return b.stats
}

// register installs a session in the table, evicting any live session
// holding the same client ID. The newer connection always wins; the
// evicted peer sees nothing but its stream closing.
func (b *Broker) register(s *Session) {
	b.mu.Lock()
	old := b.sessions[s.ID]
	b.sessions[s.ID] = s
	b.mu.Unlock()

	if old != nil {
		b.logger.Info("session evicted by new connection", slog.String("client_id", s.ID))
		b.dropFilters(old)
		old.Close()
	}
}

// remove drops a session from the table and the trie, unless a newer
// session already took over the client ID.
func (b *Broker) remove(s *Session) {
	b.mu.Lock()
	if b.sessions[s.ID] == s {
		delete(b.sessions, s.ID)
	}
	b.mu.Unlock()

	b.dropFilters(s)
	s.Close()
}

func (b *Broker) dropFilters(s *Session) {
	for _, f := range s.Filters() {
		b.router.Unsubscribe(f, s.ID)
		s.removeFilter(f)
		b.stats.subscriptionsActive.Add(-1)
	}
}

func (b *Broker) session(id string) *Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[id]
}

// SessionCount reports the number of live sessions.
func (b *Broker) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Close tears down every live session. The broker accepts no further
// connections afterwards.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[string]*Session)
	b.mu.Unlock()

	for _, s := range sessions {
		b.dropFilters(s)
		s.Close()
	}
	return nil
}

func (b *Broker) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

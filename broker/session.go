// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/flitmq/packets"
)

// ErrSessionClosed is returned when enqueueing to a session whose
// connection has been torn down.
var ErrSessionClosed = errors.New("session closed")

// Session is the broker-side state for one live connection: identity,
// subscription bookkeeping and the outbound packet queue. The write
// side of the connection is owned exclusively by the session's writer
// goroutine; publishing goroutines only ever touch the queue.
type Session struct {
	ID      string
	Version byte

	conn   net.Conn
	logger *slog.Logger

	mu      sync.Mutex
	filters map[string]struct{}

	outbound chan packets.ControlPacket
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	keepAlive    time.Duration
	maxPacket    int
	writeTimeout time.Duration
}

func newSession(id string, version byte, conn net.Conn, queueSize, maxPacket int, keepAlive, writeTimeout time.Duration, logger *slog.Logger) *Session {
	s := &Session{
		ID:           id,
		Version:      version,
		conn:         conn,
		logger:       logger,
		filters:      make(map[string]struct{}),
		outbound:     make(chan packets.ControlPacket, queueSize),
		done:         make(chan struct{}),
		keepAlive:    keepAlive,
		maxPacket:    maxPacket,
		writeTimeout: writeTimeout,
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// Send enqueues a packet for delivery. It blocks while the bounded
// queue is full, applying backpressure to the publishing session, and
// fails once the session is closed.
func (s *Session) Send(pkt packets.ControlPacket) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.outbound <- pkt:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// writeLoop drains the outbound queue onto the connection. Packets are
// fully encoded in memory before the single write call, so a timeout
// or failure never leaves a partial packet on the wire. The writer owns
// the connection close: on teardown it flushes what was queued first,
// so a final CONNACK or DISCONNECT reaches the peer.
func (s *Session) writeLoop() {
	defer s.wg.Done()
	defer s.conn.Close()
	for {
		select {
		case pkt := <-s.outbound:
			if err := s.write(pkt); err != nil {
				s.teardown()
				return
			}
		case <-s.done:
			for {
				select {
				case pkt := <-s.outbound:
					if err := s.write(pkt); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(pkt packets.ControlPacket) error {
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := pkt.Pack(s.conn, s.Version); err != nil {
		s.logger.Debug("session write failed",
			slog.String("client_id", s.ID),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// ReadPacket reads the next inbound packet, bounding the wait by the
// session keep-alive (with a half-interval grace) when one is set.
func (s *Session) ReadPacket() (packets.ControlPacket, error) {
	if s.keepAlive > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.keepAlive + s.keepAlive/2))
	} else {
		s.conn.SetReadDeadline(time.Time{})
	}
	return packets.ReadPacket(s.conn, s.Version, s.maxPacket)
}

// Close tears the session down: already-queued packets are flushed,
// then the writer closes the connection and any blocked Send calls
// fail. Idempotent.
func (s *Session) Close() {
	s.teardown()
	s.wg.Wait()
}

func (s *Session) teardown() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *Session) addFilter(filter string) {
	s.mu.Lock()
	s.filters[filter] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) hasFilter(filter string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.filters[filter]
	return ok
}

func (s *Session) removeFilter(filter string) {
	s.mu.Lock()
	delete(s.filters, filter)
	s.mu.Unlock()
}

// Filters returns a snapshot of the session's subscribed filters.
func (s *Session) Filters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.filters))
	for f := range s.filters {
		out = append(out, f)
	}
	return out
}

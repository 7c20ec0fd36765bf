// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp accepts raw TCP (optionally TLS) connections and hands
// them to the broker. TLS is applied at this boundary; the broker and
// codec below it see only a byte stream.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/flitmq/broker"
	"github.com/absmach/flitmq/ratelimit"
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the
// configured timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the TCP server configuration.
type Config struct {
	Address         string
	TLSConfig       *tls.Config
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
	TCPKeepAlive    time.Duration
	MaxConnections  int

	// ConnRate limits connection attempts per second per source IP;
	// zero disables rate limiting. ConnBurst is the per-IP burst.
	ConnRate  float64
	ConnBurst int
}

// Server accepts connections and delegates them to a broker.
type Server struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	config   Config
	handler  *broker.Broker
	listener net.Listener
	conns    map[net.Conn]struct{}
	connSem  chan struct{}
	limiter  *ratelimit.IPLimiter
}

// New creates a TCP server for the given broker.
func New(cfg Config, b *broker.Broker) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.TCPKeepAlive == 0 {
		cfg.TCPKeepAlive = 15 * time.Second
	}

	var connSem chan struct{}
	if cfg.MaxConnections > 0 {
		connSem = make(chan struct{}, cfg.MaxConnections)
	}

	var limiter *ratelimit.IPLimiter
	if cfg.ConnRate > 0 {
		burst := cfg.ConnBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = ratelimit.NewIPLimiter(cfg.ConnRate, burst, time.Minute)
	}

	return &Server{
		config:  cfg,
		handler: b,
		conns:   make(map[net.Conn]struct{}),
		connSem: connSem,
		limiter: limiter,
	}
}

// Listen starts the server and blocks until the context is cancelled,
// then drains live connections within the shutdown timeout.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := s.createListener()
	if err != nil {
		return err
	}

	acceptDone := s.runAcceptLoop(ctx, listener)

	<-ctx.Done()
	return s.gracefulShutdown(listener, acceptDone)
}

// Addr returns the bound listener address, useful when listening on
// an ephemeral port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) createListener() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	if s.config.TLSConfig != nil {
		listener = tls.NewListener(listener, s.config.TLSConfig)
		s.config.Logger.Info("TLS enabled", slog.String("address", s.config.Address))
	}

	s.config.Logger.Info("TCP server started", slog.String("address", listener.Addr().String()))
	return listener, nil
}

func (s *Server) runAcceptLoop(ctx context.Context, listener net.Listener) <-chan struct{} {
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
				continue
			}

			if s.limiter != nil && !s.limiter.Allow(conn.RemoteAddr()) {
				s.config.Logger.Warn("connection rate limited",
					slog.String("remote", conn.RemoteAddr().String()))
				conn.Close()
				continue
			}

			if !s.tryAcquireSlot(conn) {
				continue
			}

			if tcpConn, ok := conn.(*net.TCPConn); ok {
				tcpConn.SetKeepAlive(true)
				tcpConn.SetKeepAlivePeriod(s.config.TCPKeepAlive)
			}

			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()
	return acceptDone
}

func (s *Server) tryAcquireSlot(conn net.Conn) bool {
	if s.connSem == nil {
		return true
	}
	select {
	case s.connSem <- struct{}{}:
		return true
	default:
		s.config.Logger.Warn("connection limit reached, rejecting connection",
			slog.String("remote", conn.RemoteAddr().String()))
		conn.Close()
		return false
	}
}

func (s *Server) releaseSlot() {
	if s.connSem != nil {
		<-s.connSem
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handleConnection(conn net.Conn) {
	s.trackConn(conn)
	defer s.wg.Done()
	defer s.releaseSlot()
	defer s.untrackConn(conn)
	defer conn.Close()

	s.config.Logger.Debug("connection established",
		slog.String("remote", conn.RemoteAddr().String()))

	// Complete the TLS handshake before the broker's CONNECT deadline
	// starts, so certificate problems surface as transport errors here.
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			s.config.Logger.Warn("TLS handshake failed", slog.String("error", err.Error()))
			return
		}
	}

	s.handler.HandleConnection(conn)

	s.config.Logger.Debug("connection closed",
		slog.String("remote", conn.RemoteAddr().String()))
}

func (s *Server) gracefulShutdown(listener net.Listener, acceptDone <-chan struct{}) error {
	s.config.Logger.Info("shutdown signal received, closing listener")

	if err := listener.Close(); err != nil {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}
	<-acceptDone

	if s.limiter != nil {
		s.limiter.Stop()
	}

	// Close the connections this listener accepted; their sessions see
	// a read error and tear down, unblocking the goroutines we are
	// about to wait on. The broker is shared with other transports and
	// stays up; its owner closes it.
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Error("shutdown timeout exceeded")
		return ErrShutdownTimeout
	}
}

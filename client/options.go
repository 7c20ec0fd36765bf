// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"crypto/tls"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/flitmq/packets"
)

// Default values.
const (
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultAckTimeout     = 10 * time.Second
	DefaultRecvChanSize   = 256
)

// Options configures the client.
type Options struct {
	Server          string        // Broker address (host:port)
	ClientID        string        // Client identifier; generated when empty
	Username        string        // Optional username
	Password        string        // Optional password
	TLSConfig       *tls.Config   // TLS configuration (nil for plain TCP)
	ProtocolVersion byte          // 4 for MQTT 3.1.1, 5 for MQTT 5.0
	ConnectTimeout  time.Duration // Timeout for the connect handshake
	WriteTimeout    time.Duration // Timeout for write operations
	AckTimeout      time.Duration // Timeout waiting for SUBACK/UNSUBACK/PINGRESP
	KeepAlive       time.Duration // Keep-alive interval (0 to disable)
	MaxPacketSize   int           // Maximum accepted inbound packet size (0 = default)
	RecvChanSize    int           // Capacity of the inbound message channel
}

// NewOptions creates Options with sensible defaults.
func NewOptions() *Options {
	return &Options{
		Server:          "localhost:1883",
		ProtocolVersion: packets.V4,
		ConnectTimeout:  DefaultConnectTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		AckTimeout:      DefaultAckTimeout,
		KeepAlive:       DefaultKeepAlive,
		RecvChanSize:    DefaultRecvChanSize,
	}
}

// SetServer sets the broker address.
func (o *Options) SetServer(addr string) *Options {
	o.Server = addr
	return o
}

// SetClientID sets the client identifier.
func (o *Options) SetClientID(id string) *Options {
	o.ClientID = id
	return o
}

// SetCredentials sets username and password.
func (o *Options) SetCredentials(username, password string) *Options {
	o.Username = username
	o.Password = password
	return o
}

// SetTLSConfig sets TLS configuration.
func (o *Options) SetTLSConfig(cfg *tls.Config) *Options {
	o.TLSConfig = cfg
	return o
}

// SetProtocolVersion sets the MQTT protocol version (4 or 5).
func (o *Options) SetProtocolVersion(v byte) *Options {
	o.ProtocolVersion = v
	return o
}

// SetKeepAlive sets the keep-alive interval.
func (o *Options) SetKeepAlive(d time.Duration) *Options {
	o.KeepAlive = d
	return o
}

// SetConnectTimeout sets the connect handshake timeout.
func (o *Options) SetConnectTimeout(d time.Duration) *Options {
	o.ConnectTimeout = d
	return o
}

// Validate checks the options and fills in generated defaults.
func (o *Options) Validate() error {
	if o.Server == "" {
		return ErrNoServer
	}
	if o.ProtocolVersion != packets.V4 && o.ProtocolVersion != packets.V5 {
		return packets.ErrUnsupportedProtocolVersion
	}
	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.AckTimeout == 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.MaxPacketSize == 0 {
		o.MaxPacketSize = packets.DefaultMaxPacketSize
	}
	if o.RecvChanSize <= 0 {
		o.RecvChanSize = DefaultRecvChanSize
	}
	return nil
}

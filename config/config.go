// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config loads broker configuration from YAML.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the broker daemon.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Broker BrokerConfig `yaml:"broker"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds transport-related configuration.
type ServerConfig struct {
	TCPAddr         string        `yaml:"tcp_addr"`
	WSAddr          string        `yaml:"ws_addr"`
	WSPath          string        `yaml:"ws_path"`
	WSEnabled       bool          `yaml:"ws_enabled"`
	TLSCertFile     string        `yaml:"tls_cert_file"`
	TLSKeyFile      string        `yaml:"tls_key_file"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnRate        float64       `yaml:"conn_rate"`
	ConnBurst       int           `yaml:"conn_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MetricsAddr     string `yaml:"metrics_addr"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	OtelServiceName string `yaml:"otel_service_name"`
}

// BrokerConfig holds protocol-level settings.
type BrokerConfig struct {
	MaxPacketSize    int           `yaml:"max_packet_size"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	SessionQueueSize int           `yaml:"session_queue_size"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			TCPAddr:         ":1883",
			WSAddr:          ":8083",
			WSPath:          "/mqtt",
			WSEnabled:       false,
			MaxConnections:  10000,
			ShutdownTimeout: 30 * time.Second,
			MetricsAddr:     "localhost:4317",
			MetricsEnabled:  false,
			OtelServiceName: "flitmq",
		},
		Broker: BrokerConfig{
			MaxPacketSize:    1024 * 1024,
			ConnectTimeout:   10 * time.Second,
			SessionQueueSize: 128,
			WriteTimeout:     30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file or an
// empty filename yields the defaults.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.TCPAddr == "" {
		return fmt.Errorf("server.tcp_addr cannot be empty")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections cannot be negative")
	}
	if c.Server.ConnRate < 0 {
		return fmt.Errorf("server.conn_rate cannot be negative")
	}
	if c.Server.TLSEnabled {
		if c.Server.TLSCertFile == "" {
			return fmt.Errorf("server.tls_cert_file required when TLS is enabled")
		}
		if c.Server.TLSKeyFile == "" {
			return fmt.Errorf("server.tls_key_file required when TLS is enabled")
		}
	}
	if c.Server.WSEnabled && c.Server.WSAddr == "" {
		return fmt.Errorf("server.ws_addr required when WebSocket is enabled")
	}
	if c.Server.MetricsEnabled && c.Server.MetricsAddr == "" {
		return fmt.Errorf("server.metrics_addr required when metrics are enabled")
	}

	if c.Broker.MaxPacketSize < 1024 {
		return fmt.Errorf("broker.max_packet_size must be at least 1KB")
	}
	if c.Broker.ConnectTimeout < time.Second {
		return fmt.Errorf("broker.connect_timeout must be at least 1 second")
	}
	if c.Broker.SessionQueueSize < 1 {
		return fmt.Errorf("broker.session_queue_size must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	return nil
}

// TLSConfig builds a *tls.Config from the configured certificate pair.
// Returns nil when TLS is disabled.
func (c *Config) TLSConfig() (*tls.Config, error) {
	if !c.Server.TLSEnabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.Server.TLSCertFile, c.Server.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

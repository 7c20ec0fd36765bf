// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyFilenameReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  tcp_addr: ":11883"
  ws_enabled: true
  conn_rate: 5
  conn_burst: 10
broker:
  max_packet_size: 65536
  connect_timeout: 5s
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":11883", cfg.Server.TCPAddr)
	assert.True(t, cfg.Server.WSEnabled)
	assert.Equal(t, 5.0, cfg.Server.ConnRate)
	assert.Equal(t, 65536, cfg.Broker.MaxPacketSize)
	assert.Equal(t, 5*time.Second, cfg.Broker.ConnectTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Untouched keys keep their defaults.
	assert.Equal(t, 128, cfg.Broker.SessionQueueSize)
	assert.Equal(t, "/mqtt", cfg.Server.WSPath)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty tcp addr", "server:\n  tcp_addr: \"\"\n"},
		{"bad log level", "log:\n  level: verbose\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"tiny packet size", "broker:\n  max_packet_size: 512\n"},
		{"tls without cert", "server:\n  tls_enabled: true\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Server.TCPAddr = ":2883"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestTLSConfigDisabled(t *testing.T) {
	cfg := Default()
	tlsCfg, err := cfg.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

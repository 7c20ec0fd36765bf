// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/absmach/flitmq/broker"
	"github.com/absmach/flitmq/config"
	"github.com/absmach/flitmq/server/otel"
	"github.com/absmach/flitmq/server/tcp"
	"github.com/absmach/flitmq/server/websocket"
)

const version = "0.1.0"

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	slog.Info("Starting message broker", "version", version)
	slog.Info("Configuration loaded",
		"tcp_listener", cfg.Server.TCPAddr,
		"ws_enabled", cfg.Server.WSEnabled,
		"ws_listener", cfg.Server.WSAddr,
		"tls_enabled", cfg.Server.TLSEnabled,
		"metrics_enabled", cfg.Server.MetricsEnabled,
		"log_level", cfg.Log.Level)

	b := broker.New(broker.Config{
		MaxPacketSize:    cfg.Broker.MaxPacketSize,
		ConnectTimeout:   cfg.Broker.ConnectTimeout,
		SessionQueueSize: cfg.Broker.SessionQueueSize,
		WriteTimeout:     cfg.Broker.WriteTimeout,
		Logger:           logger.With("component", "broker"),
	}, nil, nil)

	if cfg.Server.MetricsEnabled {
		shutdown, err := otel.InitProvider(otel.Config{
			Endpoint:       cfg.Server.MetricsAddr,
			ServiceName:    cfg.Server.OtelServiceName,
			ServiceVersion: version,
		})
		if err != nil {
			slog.Error("Failed to initialize metrics provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("Metrics provider shutdown error", "error", err)
			}
		}()

		metrics, err := otel.NewMetrics(b.Stats())
		if err != nil {
			slog.Error("Failed to register broker metrics", "error", err)
			os.Exit(1)
		}
		defer metrics.Unregister()

		slog.Info("Metrics enabled", "endpoint", cfg.Server.MetricsAddr)
	}

	tlsConfig, err := cfg.TLSConfig()
	if err != nil {
		slog.Error("Failed to load TLS configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	tcpServer := tcp.New(tcp.Config{
		Address:         cfg.Server.TCPAddr,
		TLSConfig:       tlsConfig,
		Logger:          logger.With("component", "tcp"),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxConnections:  cfg.Server.MaxConnections,
		ConnRate:        cfg.Server.ConnRate,
		ConnBurst:       cfg.Server.ConnBurst,
	}, b)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpServer.Listen(ctx); err != nil {
			slog.Error("TCP server error", "error", err)
			stop()
		}
	}()

	if cfg.Server.WSEnabled {
		wsServer := websocket.New(websocket.Config{
			Address:         cfg.Server.WSAddr,
			Path:            cfg.Server.WSPath,
			TLSConfig:       tlsConfig,
			Logger:          logger.With("component", "websocket"),
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, b)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := wsServer.Listen(ctx); err != nil {
				slog.Error("WebSocket server error", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	wg.Wait()
	b.Close()
	slog.Info("Broker stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

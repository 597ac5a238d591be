// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// nestwatch-relay is the NestWatch server process. It accepts child
// devices and parent consoles over WebSocket, persists device
// telemetry and media, relays WebRTC signaling between the two sides,
// and serves the storage API and dashboard over HTTP. A local Unix
// socket exposes an admin status endpoint.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nestwatch-project/nestwatch/lib/adminapi"
	"github.com/nestwatch-project/nestwatch/lib/clock"
	"github.com/nestwatch-project/nestwatch/lib/config"
	"github.com/nestwatch-project/nestwatch/lib/httpapi"
	"github.com/nestwatch-project/nestwatch/lib/process"
	"github.com/nestwatch-project/nestwatch/lib/relay"
	"github.com/nestwatch-project/nestwatch/lib/service"
	"github.com/nestwatch-project/nestwatch/lib/storage"
	"github.com/nestwatch-project/nestwatch/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		showVersion bool
		configPath  string
	)
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.StringVar(&configPath, "config", "", "path to nestwatch.yaml (overrides NESTWATCH_CONFIG)")
	flag.Parse()

	if showVersion {
		version.Print("nestwatch-relay")
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	clk := clock.Real()
	startedAt := clk.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.Root, logger)
	if err != nil {
		return err
	}

	relayServer := relay.New(relay.Config{
		Store:       store,
		Clock:       clk,
		Logger:      logger,
		IdleTimeout: cfg.IdleTimeout(),
		SendBuffer:  cfg.Relay.SendBuffer,
	})

	handler := httpapi.NewHandler(httpapi.Config{
		Store:         store,
		Dispatcher:    relayServer,
		WS:            http.HandlerFunc(relayServer.HandleWS),
		DefaultDevice: cfg.Storage.DefaultDevice,
		DashboardDir:  cfg.Dashboard.Dir,
		Logger:        logger,
	})

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Listen.Address,
		Handler: handler,
		Logger:  logger,
	})

	adminServer := service.NewSocketServer(cfg.Listen.AdminSocket, logger)
	adminServer.Handle(adminapi.ActionStatus, func(context.Context, []byte) (any, error) {
		return statusSnapshot(relayServer, store, clk, startedAt), nil
	})

	httpDone := make(chan error, 1)
	go func() { httpDone <- httpServer.Serve(ctx) }()

	adminDone := make(chan error, 1)
	go func() { adminDone <- adminServer.Serve(ctx) }()

	logger.Info("nestwatch relay running",
		"version", version.Info(),
		"address", cfg.Listen.Address,
		"storage", cfg.Storage.Root,
		"environment", string(cfg.Environment),
	)

	// Either server failing is fatal; otherwise wait for the shutdown
	// signal and drain both.
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-httpDone:
		stop()
		<-adminDone
		return err
	case err := <-adminDone:
		stop()
		<-httpDone
		return err
	}

	if err := <-httpDone; err != nil {
		logger.Error("http server error", "error", err)
	}
	if err := <-adminDone; err != nil {
		logger.Error("admin socket error", "error", err)
	}
	return nil
}

// statusSnapshot assembles the admin status response from the live
// components.
func statusSnapshot(relayServer *relay.Server, store *storage.Store, clk clock.Clock, startedAt time.Time) adminapi.StatusResponse {
	relayStats := relayServer.Stats()
	storeStats := store.Stats()
	return adminapi.StatusResponse{
		Version:            version.Info(),
		UptimeSeconds:      int64(clk.Now().Sub(startedAt).Seconds()),
		Children:           relayStats.Children,
		Parents:            relayStats.Parents,
		Unassigned:         relayStats.Unassigned,
		TelemetryRecords:   storeStats.TelemetryRecords,
		MediaArtifacts:     storeStats.MediaArtifacts,
		CommandsDispatched: relayStats.CommandsDispatched,
		SignalsRelayed:     relayStats.SignalsRelayed,
		ChildAnnouncements: relayStats.ChildAnnouncements,
		DroppedSends:       relayStats.DroppedSends,
	}
}

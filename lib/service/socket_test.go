// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nestwatch-project/nestwatch/lib/adminapi"
	"github.com/nestwatch-project/nestwatch/lib/codec"
)

func startSocketServer(t *testing.T, register func(*SocketServer)) (string, context.CancelFunc) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "admin.sock")
	server := NewSocketServer(socketPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	register(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})

	// Wait for the socket file to appear.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			return socketPath, cancel
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("socket never appeared")
	return "", nil
}

func TestSocketStatusRoundTrip(t *testing.T) {
	want := adminapi.StatusResponse{
		Version:          "test",
		UptimeSeconds:    42,
		Children:         1,
		Parents:          2,
		TelemetryRecords: 7,
	}
	socketPath, _ := startSocketServer(t, func(s *SocketServer) {
		s.Handle(adminapi.ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
			return want, nil
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := adminapi.Status(ctx, socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("status = %+v, want %+v", got, want)
	}
}

func TestSocketUnknownAction(t *testing.T) {
	socketPath, _ := startSocketServer(t, func(s *SocketServer) {})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := adminapi.Query(ctx, socketPath, adminapi.Request{Action: "bogus"}, nil)
	if err == nil {
		t.Fatal("unknown action succeeded")
	}
}

func TestSocketHandlerError(t *testing.T) {
	socketPath, _ := startSocketServer(t, func(s *SocketServer) {
		s.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
			return nil, errors.New("deliberate failure")
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := adminapi.Query(ctx, socketPath, adminapi.Request{Action: "fail"}, nil)
	if err == nil || !strings.Contains(err.Error(), "deliberate failure") {
		t.Fatalf("err = %v, want the handler's message", err)
	}
}

func TestSocketMissingAction(t *testing.T) {
	socketPath, _ := startSocketServer(t, func(s *SocketServer) {})

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(map[string]string{"hello": "world"}); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := codec.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.OK || resp.Error == "" {
		t.Fatalf("response = %+v, want an error", resp)
	}
}

func TestSocketStaleFileRemoved(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "admin.sock")

	// Leave a stale socket file behind, as a crashed process would.
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	server := NewSocketServer(socketPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve returned %v", err)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Fatal("socket file not cleaned up on shutdown")
	}
}

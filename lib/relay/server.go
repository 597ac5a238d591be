// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nestwatch-project/nestwatch/lib/clock"
	"github.com/nestwatch-project/nestwatch/lib/registry"
	"github.com/nestwatch-project/nestwatch/lib/schema"
	"github.com/nestwatch-project/nestwatch/lib/storage"
)

// Config configures a relay Server.
type Config struct {
	// Store persists telemetry and media. Required.
	Store *storage.Store

	// Clock provides the time source for idle-timeout enforcement.
	// Required.
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// IdleTimeout closes connections that have not sent a message for
	// this long. Zero disables idle enforcement (the default — the
	// protocol has long-lived quiet parents).
	IdleTimeout time.Duration

	// SendBuffer is the per-connection outbound queue capacity.
	// Defaults to 32 if zero. When a peer's queue is full, payloads
	// to it are dropped (delivery is at-most-once by design).
	SendBuffer int
}

// Server owns the live connection graph: the registry, the message
// router, the signaling relay, and the command dispatcher. HTTP
// serving and storage queries live elsewhere; they only share the
// Store and, for command dispatch, the Server itself.
type Server struct {
	store       *storage.Store
	clock       clock.Clock
	logger      *slog.Logger
	registry    *registry.Registry
	idleTimeout time.Duration
	sendBuffer  int

	signalsRelayed     atomic.Uint64
	commandsDispatched atomic.Uint64
	childAnnouncements atomic.Uint64
	droppedSends       atomic.Uint64
}

// Stats is a snapshot of the server's live-connection counters.
type Stats struct {
	Children           int
	Parents            int
	Unassigned         int
	SignalsRelayed     uint64
	CommandsDispatched uint64
	ChildAnnouncements uint64
	DroppedSends       uint64
}

// New creates a relay server.
func New(cfg Config) *Server {
	if cfg.Store == nil {
		panic("relay.Server: Store is required")
	}
	if cfg.Clock == nil {
		panic("relay.Server: Clock is required")
	}
	if cfg.Logger == nil {
		panic("relay.Server: Logger is required")
	}

	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 32
	}

	return &Server{
		store:       cfg.Store,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		registry:    registry.New(cfg.Logger),
		idleTimeout: cfg.IdleTimeout,
		sendBuffer:  sendBuffer,
	}
}

// Stats returns current connection counts and counters.
func (s *Server) Stats() Stats {
	children, parents, unassigned := s.registry.Counts()
	return Stats{
		Children:           children,
		Parents:            parents,
		Unassigned:         unassigned,
		SignalsRelayed:     s.signalsRelayed.Load(),
		CommandsDispatched: s.commandsDispatched.Load(),
		ChildAnnouncements: s.childAnnouncements.Load(),
		DroppedSends:       s.droppedSends.Load(),
	}
}

// DispatchCommand broadcasts an operator command to every connected
// child. Returns true iff at least one child received it. No
// acknowledgment, no retry, no queuing: a command dispatched while no
// child is connected is permanently lost.
func (s *Server) DispatchCommand(command string) bool {
	payload := schema.CommandPayload(command)
	children := s.registry.ByRole(registry.RoleChild)

	delivered := s.broadcast(children, payload)
	if delivered == 0 {
		s.logger.Warn("command had no recipients", "command", command)
		return false
	}

	s.commandsDispatched.Add(1)
	s.logger.Info("command dispatched", "command", command, "children", delivered)
	return true
}

// broadcast sends a payload to every peer, counting drops. Sends are
// enqueue-only and never block.
func (s *Server) broadcast(peers []registry.Peer, payload []byte) (delivered int) {
	for _, peer := range peers {
		if peer.Send(payload) {
			delivered++
		} else {
			s.droppedSends.Add(1)
			s.logger.Warn("send dropped", "remote", peer.Remote())
		}
	}
	return delivered
}

// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry tracks every live relay connection and its declared
// role. The registry owns the connection table for the lifetime of
// each connection: entries are created on connect, bound to a role at
// most once by the first announcement, and removed on disconnect. No
// other component iterates the table directly — consumers go through
// ByRole / OthersByRole.
package registry

import (
	"log/slog"
	"sync"

	"github.com/nestwatch-project/nestwatch/lib/schema"
)

// Role is a connection's declared role. Connections start unassigned
// and are bound exactly once.
type Role uint8

const (
	RoleUnassigned Role = iota
	RoleChild
	RoleParent
)

// String returns the wire representation of the role.
func (r Role) String() string {
	switch r {
	case RoleChild:
		return schema.ClientTypeChild
	case RoleParent:
		return schema.ClientTypeParent
	default:
		return "unassigned"
	}
}

// Opposite returns the other announced role. Unassigned has no
// opposite and returns RoleUnassigned.
func (r Role) Opposite() Role {
	switch r {
	case RoleChild:
		return RoleParent
	case RoleParent:
		return RoleChild
	default:
		return RoleUnassigned
	}
}

// ParseRole maps a clientType string to its Role. ok is false for
// strings outside {child, parent}.
func ParseRole(clientType string) (Role, bool) {
	switch clientType {
	case schema.ClientTypeChild:
		return RoleChild, true
	case schema.ClientTypeParent:
		return RoleParent, true
	default:
		return RoleUnassigned, false
	}
}

// Peer is the registry's view of a live connection. Send enqueues a
// complete message for delivery and must never block message routing:
// implementations report false when the payload was dropped (peer
// closed or its send queue full). Remote identifies the peer for
// logging.
type Peer interface {
	Send(payload []byte) bool
	Remote() string
}

// entry is the registry's record for one connection.
type entry struct {
	role     Role
	deviceID string
}

// Registry is the lock-guarded table of live connections. Safe for
// concurrent use: every connect, announce, and disconnect across all
// connection goroutines mutates the same table.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[Peer]*entry
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		entries: make(map[Peer]*entry),
	}
}

// Register adds a connection as unassigned. Must be called exactly
// once per connection, before any message from it is routed.
func (r *Registry) Register(peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[peer] = &entry{role: RoleUnassigned}
	r.logger.Info("client connected", "remote", peer.Remote())
}

// Unregister removes a connection. Idempotent: unregistering an
// unknown peer is a no-op.
func (r *Registry) Unregister(peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[peer]; !ok {
		return
	}
	delete(r.entries, peer)
	r.logger.Info("client disconnected", "remote", peer.Remote())
}

// Announce binds a role (and optional device ID) to a connection.
// The first announcement wins; repeat announcements are ignored and
// reported with bound=false. Announcing for an unregistered peer also
// returns false.
func (r *Registry) Announce(peer Peer, role Role, deviceID string) (bound bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.entries[peer]
	if !ok {
		return false
	}
	if record.role != RoleUnassigned {
		r.logger.Warn("repeat role announcement ignored",
			"remote", peer.Remote(),
			"role", record.role.String(),
			"attempted", role.String(),
		)
		return false
	}

	record.role = role
	record.deviceID = deviceID
	r.logger.Info("client announced",
		"remote", peer.Remote(),
		"role", role.String(),
		"device", deviceID,
	)
	return true
}

// Role returns the peer's current role. Unknown peers are unassigned.
func (r *Registry) Role(peer Peer) Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.entries[peer]; ok {
		return record.role
	}
	return RoleUnassigned
}

// ByRole returns every connection currently bound to the given role.
// No ordering guarantee.
func (r *Registry) ByRole(role Role) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var peers []Peer
	for peer, record := range r.entries {
		if record.role == role {
			peers = append(peers, peer)
		}
	}
	return peers
}

// OthersByRole returns every connection bound to the given role,
// excluding the given peer. No ordering guarantee.
func (r *Registry) OthersByRole(exclude Peer, role Role) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var peers []Peer
	for peer, record := range r.entries {
		if peer != exclude && record.role == role {
			peers = append(peers, peer)
		}
	}
	return peers
}

// Counts returns the number of live connections per role.
func (r *Registry) Counts() (children, parents, unassigned int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.entries {
		switch record.role {
		case RoleChild:
			children++
		case RoleParent:
			parents++
		default:
			unassigned++
		}
	}
	return children, parents, unassigned
}

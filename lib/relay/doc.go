// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the live half of the NestWatch server: one
// goroutine per WebSocket connection, a registry of declared roles,
// and a router that classifies every inbound message and either
// persists it, relays it, or drops it.
//
// Message handling per connection is strictly ordered: one reader
// goroutine processes a connection's messages in arrival order. There
// is no ordering guarantee across connections — per-device storage
// directories and per-(device, kind) log locks provide the isolation
// that makes that safe.
//
// Outbound delivery is best-effort and never blocks routing: each
// connection has a bounded send queue drained by a writer goroutine,
// and payloads are dropped when the queue is full or the peer is
// closing. Closing a connection releases its registry entry without
// blocking sends to other connections.
package relay

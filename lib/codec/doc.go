// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides NestWatch's standard CBOR encoding
// configuration.
//
// NestWatch uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the device/console WebSocket
//     protocol and the HTTP control-plane API.
//   - CBOR for the local admin socket protocol.
//
// This package holds the shared CBOR encoding and decoding modes so
// that both sides of the admin socket encode identically. The encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items.
package codec

// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire types for the NestWatch relay
// protocol: role announcements, telemetry and media payloads, WebRTC
// signaling messages, and the server-originated notifications sent to
// monitor consoles. Both the relay server and the console import this
// package so the wire shapes are defined once.
//
// Every inbound message is validated here at the boundary; the router
// never inspects untyped JSON. Classification is first-match-wins in
// a fixed order (announcement, signaling, data) so a message can never
// be read as more than one kind.
package schema

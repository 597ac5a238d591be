// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the listener lifecycle shared by the relay
// process: an HTTP server for the public surface and a Unix-socket
// server for local administration. Both follow the same pattern:
// Serve(ctx) blocks until the context is cancelled, then drains
// in-flight work before returning.
package service

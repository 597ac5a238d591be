// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package adminapi defines the CBOR request and response types spoken
// over the relay's local admin socket, plus a small client for tooling.
package adminapi

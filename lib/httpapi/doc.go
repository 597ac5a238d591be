// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi serves the NestWatch HTTP surface: the storage query
// API, artifact downloads, operator command dispatch, the WebSocket
// endpoint, and the dashboard single-page app. Every route shares one
// handler so the relay and the REST API ride the same listener.
package httpapi

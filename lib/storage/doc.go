// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage persists device telemetry and media under a root
// directory, one subdirectory per device. Telemetry accumulates in a
// JSON array per data kind ({dataType}.json); media artifacts are
// written once each under a deterministic name
// ({dataType}_{timestamp}.{ext}) and never modified.
//
// The telemetry log is a read-modify-write over the entire file on
// every append. The store serializes writers per (device, kind) with
// a named lock, which removes the lost-update hazard while keeping
// the on-disk format a plain JSON array that the dashboard reads
// directly. Listings are computed fresh from the filesystem on every
// query; there is no cached index.
package storage

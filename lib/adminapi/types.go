// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package adminapi

// Admin socket actions.
const (
	// ActionStatus returns a StatusResponse snapshot.
	ActionStatus = "status"
)

// Request is the envelope every admin request carries. Actions with
// parameters embed this and add their own fields.
type Request struct {
	Action string `cbor:"action"`
}

// StatusResponse is the relay's live status snapshot.
type StatusResponse struct {
	Version       string `cbor:"version"`
	UptimeSeconds int64  `cbor:"uptime_seconds"`

	// Live connection counts by role.
	Children   int `cbor:"children"`
	Parents    int `cbor:"parents"`
	Unassigned int `cbor:"unassigned"`

	// Cumulative counters since startup.
	TelemetryRecords   uint64 `cbor:"telemetry_records"`
	MediaArtifacts     uint64 `cbor:"media_artifacts"`
	CommandsDispatched uint64 `cbor:"commands_dispatched"`
	SignalsRelayed     uint64 `cbor:"signals_relayed"`
	ChildAnnouncements uint64 `cbor:"child_announcements"`
	DroppedSends       uint64 `cbor:"dropped_sends"`
}

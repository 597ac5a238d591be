// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/base64"

	"github.com/nestwatch-project/nestwatch/lib/registry"
	"github.com/nestwatch-project/nestwatch/lib/schema"
)

// route classifies and dispatches one inbound message from a
// registered peer. Classification is first-match-wins: announcement,
// then signaling, then data. Anything that fails classification or a
// downstream check is logged and dropped — the sender never hears
// about it.
func (s *Server) route(source registry.Peer, raw []byte) {
	msg, err := schema.Classify(raw)
	if err != nil {
		s.logger.Warn("dropping malformed message",
			"remote", source.Remote(),
			"error", err,
		)
		return
	}

	switch msg.Kind {
	case schema.KindAnnouncement:
		s.handleAnnouncement(source, msg.Announcement)
	case schema.KindSignal:
		s.relaySignal(source, &msg)
	case schema.KindData:
		s.handleData(source, &msg)
	}
}

// handleAnnouncement binds the peer's role. The first announcement
// wins; the registry logs and rejects repeats. A successful child
// announcement is fanned out to the parents connected right now —
// there is no replay for parents that connect later.
func (s *Server) handleAnnouncement(source registry.Peer, a *schema.Announcement) {
	role, ok := registry.ParseRole(a.ClientType)
	if !ok {
		// Classify already validated clientType; an unknown role here
		// means the two checks drifted apart.
		s.logger.Warn("unknown clientType", "remote", source.Remote(), "clientType", a.ClientType)
		return
	}

	if !s.registry.Announce(source, role, a.DeviceID) {
		return
	}

	if role == registry.RoleChild {
		s.childAnnouncements.Add(1)
		s.broadcast(s.registry.ByRole(registry.RoleParent), schema.ChildConnectedPayload(a.DeviceID))
	}
}

// relaySignal forwards a WebRTC negotiation message, byte for byte, to
// every connection holding the opposite role. The sender is never a
// recipient, so two same-role connections cannot echo signals at each
// other. Signals from unassigned connections are dropped: without a
// role there is no opposite side.
func (s *Server) relaySignal(source registry.Peer, msg *schema.Message) {
	role := s.registry.Role(source)
	if role == registry.RoleUnassigned {
		s.logger.Warn("dropping signal from unannounced connection",
			"remote", source.Remote(),
			"type", msg.Signal.Type,
		)
		return
	}

	targets := s.registry.OthersByRole(source, role.Opposite())
	if len(targets) == 0 {
		s.logger.Debug("signal had no recipients",
			"remote", source.Remote(),
			"type", msg.Signal.Type,
		)
		return
	}

	if delivered := s.broadcast(targets, msg.Raw); delivered > 0 {
		s.signalsRelayed.Add(1)
	}
}

// handleData persists a device submission and notifies parents.
// Telemetry is appended to the device's log and echoed to parents
// verbatim; media is base64-decoded, written to disk, and announced to
// parents by storage path only. A storage failure drops the message
// after logging — the connection stays up.
func (s *Server) handleData(source registry.Peer, msg *schema.Message) {
	data := msg.Data
	kind := data.Type()

	switch {
	case kind.IsTelemetry():
		record := schema.TelemetryRecord{
			DeviceID:  data.DeviceID,
			DataType:  data.DataType,
			Data:      data.Data,
			Timestamp: data.Timestamp,
		}
		if err := s.store.AppendTelemetry(record); err != nil {
			s.logger.Error("telemetry append failed",
				"remote", source.Remote(),
				"device", data.DeviceID,
				"kind", data.DataType,
				"error", err,
			)
			return
		}
		s.broadcast(s.registry.ByRole(registry.RoleParent), msg.Raw)

	case kind.IsMedia():
		payload, err := base64.StdEncoding.DecodeString(data.Data)
		if err != nil {
			s.logger.Warn("dropping media with undecodable payload",
				"remote", source.Remote(),
				"device", data.DeviceID,
				"kind", data.DataType,
				"error", err,
			)
			return
		}
		artifact := schema.MediaArtifact{
			DeviceID:  data.DeviceID,
			Type:      kind,
			Timestamp: data.Timestamp,
			Bytes:     payload,
		}
		if _, _, err := s.store.WriteMedia(artifact); err != nil {
			s.logger.Error("media write failed",
				"remote", source.Remote(),
				"device", data.DeviceID,
				"kind", data.DataType,
				"error", err,
			)
			return
		}
		s.broadcast(s.registry.ByRole(registry.RoleParent), schema.MediaReferencePayload(&artifact))

	default:
		s.logger.Warn("dropping unrecognized data type",
			"remote", source.Remote(),
			"device", data.DeviceID,
			"dataType", data.DataType,
		)
	}
}

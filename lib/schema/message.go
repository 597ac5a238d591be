// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"
)

// Client roles as they appear in role announcements.
const (
	ClientTypeChild  = "child"
	ClientTypeParent = "parent"
)

// Kind identifies what a classified inbound message is.
type Kind uint8

const (
	// KindAnnouncement is a one-time role declaration.
	KindAnnouncement Kind = iota + 1

	// KindSignal is a WebRTC offer, answer, or ICE candidate to be
	// relayed verbatim.
	KindSignal

	// KindData is a telemetry or media payload to be persisted and
	// fanned out.
	KindData
)

// Message is a classified inbound message. Exactly one of
// Announcement, Signal, or Data is non-nil, matching Kind. Raw holds
// the original bytes so signaling and telemetry can be forwarded
// verbatim without a re-marshal round trip.
type Message struct {
	Kind         Kind
	Announcement *Announcement
	Signal       *SignalMessage
	Data         *DataMessage
	Raw          []byte
}

// Announcement is the one-time role declaration a client sends after
// connecting: {clientType: "child"|"parent", deviceId?}.
type Announcement struct {
	ClientType string `json:"clientType"`
	DeviceID   string `json:"deviceId,omitempty"`
}

// DataMessage is a telemetry or media submission from a child device.
// For telemetry types Data is an opaque string; for media types it is
// the base64-encoded payload.
type DataMessage struct {
	DeviceID  string `json:"deviceId"`
	DataType  string `json:"dataType"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Type returns the parsed DataType of the submission.
func (m *DataMessage) Type() DataType { return ParseDataType(m.DataType) }

// TelemetryRecord is the persisted form of a telemetry submission. It
// is stored verbatim — same fields, same JSON names — in the
// per-device, per-kind log file and echoed unchanged to parents.
type TelemetryRecord struct {
	DeviceID  string `json:"deviceId"`
	DataType  string `json:"dataType"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// MediaArtifact is a decoded binary capture ready for storage.
type MediaArtifact struct {
	DeviceID  string
	Type      DataType
	Timestamp int64
	Bytes     []byte
}

// Filename returns the deterministic artifact filename,
// "{dataType}_{timestamp}{ext}".
func (a *MediaArtifact) Filename() string {
	return fmt.Sprintf("%s_%d%s", a.Type, a.Timestamp, a.Type.MediaExt())
}

// StorageEntry is the query-time projection of one stored file. It is
// computed fresh from a directory listing on every query; there is no
// cached index.
type StorageEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// ChildConnected is the server→parent notification emitted when a
// child announces itself. One-shot: parents connecting later never
// see it.
type ChildConnected struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
}

// MediaReference is the server→parent notification for a stored media
// artifact. Only the storage path travels to parents — the raw bytes
// are never re-broadcast.
type MediaReference struct {
	DeviceID  string `json:"deviceId"`
	DataType  string `json:"dataType"`
	File      string `json:"file"`
	Timestamp int64  `json:"timestamp"`
}

// Command is the server→child operator command envelope.
type Command struct {
	Command string `json:"command"`
}

// probe carries every discriminator field used during classification.
// Decoding into it both parses the JSON and surfaces the fields that
// decide the message kind.
type probe struct {
	ClientType string `json:"clientType"`
	Type       string `json:"type"`
	DeviceID   string `json:"deviceId"`
	DataType   string `json:"dataType"`
	Data       string `json:"data"`
	Timestamp  int64  `json:"timestamp"`
}

// Classify parses and classifies one inbound message. First match
// wins, in this order:
//
//  1. clientType present → announcement (role fields always take
//     precedence, so an announcement can never be misread as data)
//  2. type ∈ {offer, answer, candidate} → signaling
//  3. all of deviceId, dataType, data, timestamp present → data
//
// Anything else — unparseable JSON, an unknown role, an invalid
// signaling shape, or a message matching none of the three — returns
// an error. Callers log and drop; no error is surfaced to the sender.
func Classify(raw []byte) (Message, error) {
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return Message{}, fmt.Errorf("unparseable message: %w", err)
	}

	if p.ClientType != "" {
		if p.ClientType != ClientTypeChild && p.ClientType != ClientTypeParent {
			return Message{}, fmt.Errorf("unknown clientType %q", p.ClientType)
		}
		return Message{
			Kind: KindAnnouncement,
			Announcement: &Announcement{
				ClientType: p.ClientType,
				DeviceID:   p.DeviceID,
			},
			Raw: raw,
		}, nil
	}

	if isSignalType(p.Type) {
		var signal SignalMessage
		if err := json.Unmarshal(raw, &signal); err != nil {
			return Message{}, fmt.Errorf("unparseable %s message: %w", p.Type, err)
		}
		if err := signal.Validate(); err != nil {
			return Message{}, err
		}
		return Message{Kind: KindSignal, Signal: &signal, Raw: raw}, nil
	}

	if p.DeviceID != "" && p.DataType != "" && p.Data != "" && p.Timestamp != 0 {
		return Message{
			Kind: KindData,
			Data: &DataMessage{
				DeviceID:  p.DeviceID,
				DataType:  p.DataType,
				Data:      p.Data,
				Timestamp: p.Timestamp,
			},
			Raw: raw,
		}, nil
	}

	return Message{}, fmt.Errorf("message matches no known kind")
}

// mustMarshal marshals a notification struct whose encoding cannot
// fail (plain strings and integers).
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("schema: marshal of static notification failed: " + err.Error())
	}
	return data
}

// ChildConnectedPayload returns the encoded child_connected
// notification. An empty deviceID is reported as "unknown".
func ChildConnectedPayload(deviceID string) []byte {
	if deviceID == "" {
		deviceID = "unknown"
	}
	return mustMarshal(ChildConnected{Type: "child_connected", DeviceID: deviceID})
}

// MediaReferencePayload returns the encoded media notification for a
// stored artifact.
func MediaReferencePayload(artifact *MediaArtifact) []byte {
	return mustMarshal(MediaReference{
		DeviceID:  artifact.DeviceID,
		DataType:  artifact.Type.String(),
		File:      "/storage/" + artifact.Filename(),
		Timestamp: artifact.Timestamp,
	})
}

// CommandPayload returns the encoded {command} envelope dispatched to
// child devices.
func CommandPayload(command string) []byte {
	return mustMarshal(Command{Command: command})
}

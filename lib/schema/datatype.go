// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// DataType is the closed set of payload categories a child device can
// submit. Telemetry types are persisted to per-device JSON logs; media
// types are decoded from base64 and persisted as individual files.
//
// DataTypeUnrecognized is the explicit catch-all for strings outside
// the closed set — the router matches it rather than trusting field
// presence.
type DataType uint8

const (
	DataTypeUnrecognized DataType = iota
	DataTypeKeylog
	DataTypeLocation
	DataTypeSMS
	DataTypeCallLog
	DataTypeAudio
	DataTypeVideo
	DataTypeImage
)

// ParseDataType maps a wire string to its DataType. Unknown strings
// map to DataTypeUnrecognized.
func ParseDataType(s string) DataType {
	switch s {
	case "keylog":
		return DataTypeKeylog
	case "location":
		return DataTypeLocation
	case "sms":
		return DataTypeSMS
	case "call_log":
		return DataTypeCallLog
	case "audio":
		return DataTypeAudio
	case "video":
		return DataTypeVideo
	case "image":
		return DataTypeImage
	default:
		return DataTypeUnrecognized
	}
}

// String returns the wire representation of the data type.
func (d DataType) String() string {
	switch d {
	case DataTypeKeylog:
		return "keylog"
	case DataTypeLocation:
		return "location"
	case DataTypeSMS:
		return "sms"
	case DataTypeCallLog:
		return "call_log"
	case DataTypeAudio:
		return "audio"
	case DataTypeVideo:
		return "video"
	case DataTypeImage:
		return "image"
	default:
		return "unrecognized"
	}
}

// IsTelemetry reports whether the type is a log-style telemetry kind.
func (d DataType) IsTelemetry() bool {
	switch d {
	case DataTypeKeylog, DataTypeLocation, DataTypeSMS, DataTypeCallLog:
		return true
	}
	return false
}

// IsMedia reports whether the type is a binary media kind.
func (d DataType) IsMedia() bool {
	switch d {
	case DataTypeAudio, DataTypeVideo, DataTypeImage:
		return true
	}
	return false
}

// MediaExt returns the file extension (with leading dot) for a media
// type, or the empty string for non-media types.
func (d DataType) MediaExt() string {
	switch d {
	case DataTypeAudio:
		return ".opus"
	case DataTypeVideo:
		return ".mp4"
	case DataTypeImage:
		return ".jpg"
	default:
		return ""
	}
}

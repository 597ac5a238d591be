// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Signaling message types. Offers and answers carry an SDP blob;
// candidates carry ICE candidate fields. The relay forwards all three
// verbatim and never interprets session semantics.
const (
	SignalTypeOffer     = "offer"
	SignalTypeAnswer    = "answer"
	SignalTypeCandidate = "candidate"
)

// SignalMessage is a WebRTC negotiation message passing through the
// relay. Field names match what browser RTCPeerConnection handlers
// emit: for candidates, ID is the sdpMid and Label the sdpMLineIndex.
type SignalMessage struct {
	Type      string  `json:"type"`
	SDP       string  `json:"sdp,omitempty"`
	ID        string  `json:"id,omitempty"`
	Label     *uint16 `json:"label,omitempty"`
	Candidate string  `json:"candidate,omitempty"`
}

// isSignalType reports whether a type string names a signaling
// message. Used during classification before the full shape is
// validated.
func isSignalType(t string) bool {
	return t == SignalTypeOffer || t == SignalTypeAnswer || t == SignalTypeCandidate
}

// Validate checks the message shape at the boundary. Offers and
// answers must carry an SDP and a type that pion recognizes as such
// (pranswer and rollback are rejected — they never appear in this
// protocol); candidates must carry the candidate string.
func (s *SignalMessage) Validate() error {
	if s.Type == SignalTypeCandidate {
		if s.Candidate == "" {
			return fmt.Errorf("candidate message missing candidate field")
		}
		return nil
	}

	switch webrtc.NewSDPType(s.Type) {
	case webrtc.SDPTypeOffer, webrtc.SDPTypeAnswer:
		if s.SDP == "" {
			return fmt.Errorf("%s message missing sdp", s.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown signaling type %q", s.Type)
	}
}

// SessionDescription converts an offer or answer into pion's
// SessionDescription. Returns false for candidate messages.
func (s *SignalMessage) SessionDescription() (webrtc.SessionDescription, bool) {
	sdpType := webrtc.NewSDPType(s.Type)
	if sdpType != webrtc.SDPTypeOffer && sdpType != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, false
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: s.SDP}, true
}

// ICECandidateInit converts a candidate message into pion's
// ICECandidateInit. Returns false for offer and answer messages.
func (s *SignalMessage) ICECandidateInit() (webrtc.ICECandidateInit, bool) {
	if s.Type != SignalTypeCandidate {
		return webrtc.ICECandidateInit{}, false
	}
	init := webrtc.ICECandidateInit{
		Candidate:     s.Candidate,
		SDPMLineIndex: s.Label,
	}
	if s.ID != "" {
		mid := s.ID
		init.SDPMid = &mid
	}
	return init, true
}

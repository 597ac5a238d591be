// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nestwatch-project/nestwatch/lib/clock"
	"github.com/nestwatch-project/nestwatch/lib/registry"
	"github.com/nestwatch-project/nestwatch/lib/storage"
)

// fakePeer records everything sent to it. full simulates a peer whose
// send queue rejects every payload.
type fakePeer struct {
	name string
	full bool

	mu   sync.Mutex
	sent [][]byte
}

func (p *fakePeer) Send(payload []byte) bool {
	if p.full {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, payload)
	return true
}

func (p *fakePeer) Remote() string { return p.name }

func (p *fakePeer) messages() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.sent...)
}

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	return New(Config{
		Store:  store,
		Clock:  clock.Fake(time.Unix(1_700_000_000, 0)),
		Logger: logger,
	})
}

// announce registers a peer and binds its role through the router, the
// same path production messages take.
func announce(t *testing.T, s *Server, peer registry.Peer, clientType, deviceID string) {
	t.Helper()
	s.registry.Register(peer)
	msg := map[string]string{"clientType": clientType}
	if deviceID != "" {
		msg["deviceId"] = deviceID
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	s.route(peer, raw)
	if got, want := s.registry.Role(peer), clientType; got.String() != want {
		t.Fatalf("after announcement role = %s, want %s", got, want)
	}
}

func TestChildAnnouncementNotifiesParents(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent"}
	late := &fakePeer{name: "late-parent"}
	announce(t, s, parent, "parent", "")

	child := &fakePeer{name: "child"}
	announce(t, s, child, "child", "dev1")

	msgs := parent.messages()
	if len(msgs) != 1 {
		t.Fatalf("parent received %d messages, want 1", len(msgs))
	}
	var notif struct {
		Type     string `json:"type"`
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(msgs[0], &notif); err != nil {
		t.Fatal(err)
	}
	if notif.Type != "child_connected" || notif.DeviceID != "dev1" {
		t.Fatalf("notification = %+v", notif)
	}

	// The notification is one-shot: a parent announcing afterwards
	// never sees it.
	announce(t, s, late, "parent", "")
	if len(late.messages()) != 0 {
		t.Fatal("late parent received replayed child_connected")
	}

	// The child itself gets nothing.
	if len(child.messages()) != 0 {
		t.Fatal("child received its own announcement notification")
	}
}

func TestChildAnnouncementWithoutDeviceID(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent"}
	announce(t, s, parent, "parent", "")

	child := &fakePeer{name: "child"}
	announce(t, s, child, "child", "")

	msgs := parent.messages()
	if len(msgs) != 1 {
		t.Fatalf("parent received %d messages, want 1", len(msgs))
	}
	if !bytes.Contains(msgs[0], []byte(`"unknown"`)) {
		t.Fatalf("notification %s does not report device as unknown", msgs[0])
	}
}

func TestRepeatAnnouncementIgnored(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent"}
	announce(t, s, parent, "parent", "")

	child := &fakePeer{name: "child"}
	announce(t, s, child, "child", "dev1")

	// Try to flip the child to a parent; the first binding must hold
	// and no second notification may go out.
	s.route(child, []byte(`{"clientType":"parent"}`))
	if got := s.registry.Role(child); got != registry.RoleChild {
		t.Fatalf("role after repeat announcement = %s", got)
	}
	if len(parent.messages()) != 1 {
		t.Fatalf("parent received %d messages, want 1", len(parent.messages()))
	}
}

func TestTelemetryPersistedAndEchoedVerbatim(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent"}
	otherChild := &fakePeer{name: "other-child"}
	announce(t, s, parent, "parent", "")
	announce(t, s, otherChild, "child", "dev2")

	child := &fakePeer{name: "child"}
	s.registry.Register(child)

	raw := []byte(`{"deviceId":"dev1","dataType":"location","data":"37.0,-122.0","timestamp":1000}`)
	s.route(child, raw)

	// Persisted under <root>/dev1/location.json.
	logData, err := os.ReadFile(filepath.Join(s.store.Root(), "dev1", "location.json"))
	if err != nil {
		t.Fatal(err)
	}
	var records []map[string]any
	if err := json.Unmarshal(logData, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0]["data"] != "37.0,-122.0" {
		t.Fatalf("persisted log = %s", logData)
	}

	// Echoed to parents byte for byte; other children get nothing.
	msgs := parent.messages()
	if len(msgs) != 1 || !bytes.Equal(msgs[0], raw) {
		t.Fatalf("parent received %q, want the exact submission", msgs)
	}
	if len(otherChild.messages()) != 0 {
		t.Fatal("telemetry echoed to a child")
	}
}

func TestMediaStoredAndReferenced(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent"}
	announce(t, s, parent, "parent", "")

	child := &fakePeer{name: "child"}
	s.registry.Register(child)

	payload := []byte{0x01, 0x02, 0x03, 0xff}
	msg, err := json.Marshal(map[string]any{
		"deviceId":  "dev1",
		"dataType":  "image",
		"data":      base64.StdEncoding.EncodeToString(payload),
		"timestamp": 2000,
	})
	if err != nil {
		t.Fatal(err)
	}
	s.route(child, msg)

	stored, err := os.ReadFile(filepath.Join(s.store.Root(), "dev1", "image_2000.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stored, payload) {
		t.Fatal("stored media differs from decoded submission")
	}

	msgs := parent.messages()
	if len(msgs) != 1 {
		t.Fatalf("parent received %d messages, want 1", len(msgs))
	}
	var ref struct {
		DeviceID  string `json:"deviceId"`
		DataType  string `json:"dataType"`
		File      string `json:"file"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(msgs[0], &ref); err != nil {
		t.Fatal(err)
	}
	if ref.File != "/storage/image_2000.jpg" || ref.DeviceID != "dev1" || ref.Timestamp != 2000 {
		t.Fatalf("media reference = %+v", ref)
	}
	if bytes.Contains(msgs[0], []byte(base64.StdEncoding.EncodeToString(payload))) {
		t.Fatal("media bytes re-broadcast to parents")
	}
}

func TestMediaWithBadBase64Dropped(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent"}
	announce(t, s, parent, "parent", "")

	child := &fakePeer{name: "child"}
	s.registry.Register(child)

	s.route(child, []byte(`{"deviceId":"dev1","dataType":"audio","data":"***not-base64***","timestamp":1}`))

	if len(parent.messages()) != 0 {
		t.Fatal("parent notified about dropped media")
	}
	if _, err := os.Stat(filepath.Join(s.store.Root(), "dev1", "audio_1.opus")); !os.IsNotExist(err) {
		t.Fatal("undecodable media reached disk")
	}
}

func TestUnrecognizedDataTypeDropped(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent"}
	announce(t, s, parent, "parent", "")

	child := &fakePeer{name: "child"}
	s.registry.Register(child)

	s.route(child, []byte(`{"deviceId":"dev1","dataType":"contacts","data":"x","timestamp":1}`))

	if len(parent.messages()) != 0 {
		t.Fatal("unrecognized data type reached parents")
	}
	entries, err := s.store.ListDevice("dev1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatal("unrecognized data type reached storage")
	}
}

func TestSignalRelayedToOppositeRole(t *testing.T) {
	s := testServer(t)
	child := &fakePeer{name: "child"}
	parentA := &fakePeer{name: "parent-a"}
	parentB := &fakePeer{name: "parent-b"}
	announce(t, s, child, "child", "dev1")
	announce(t, s, parentA, "parent", "")
	announce(t, s, parentB, "parent", "")
	parentA.mu.Lock()
	parentA.sent = nil
	parentA.mu.Unlock()

	offer := []byte(`{"type":"offer","sdp":"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"}`)
	s.route(child, offer)

	for _, parent := range []*fakePeer{parentA, parentB} {
		msgs := parent.messages()
		if len(msgs) != 1 || !bytes.Equal(msgs[0], offer) {
			t.Fatalf("%s received %q, want the offer verbatim", parent.name, msgs)
		}
	}
	if len(child.messages()) != 0 {
		t.Fatal("signal echoed back to sender")
	}

	// Parent answers; only the child hears it, not the other parent.
	answer := []byte(`{"type":"answer","sdp":"v=0\r\n"}`)
	s.route(parentA, answer)
	if msgs := child.messages(); len(msgs) != 1 || !bytes.Equal(msgs[0], answer) {
		t.Fatalf("child received %q, want the answer verbatim", msgs)
	}
	if msgs := parentB.messages(); len(msgs) != 1 {
		t.Fatalf("other parent received %d messages, want only the original offer", len(msgs))
	}
}

func TestCandidateRelayedVerbatim(t *testing.T) {
	s := testServer(t)
	child := &fakePeer{name: "child"}
	parent := &fakePeer{name: "parent"}
	announce(t, s, child, "child", "dev1")
	announce(t, s, parent, "parent", "")

	candidate := []byte(`{"type":"candidate","id":"0","label":0,"candidate":"candidate:1 1 UDP 2122252543 192.0.2.1 54321 typ host"}`)
	s.route(parent, candidate)

	if msgs := child.messages(); len(msgs) != 1 || !bytes.Equal(msgs[0], candidate) {
		t.Fatalf("child received %q, want the candidate verbatim", msgs)
	}
}

func TestSignalFromUnannouncedConnectionDropped(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent"}
	announce(t, s, parent, "parent", "")

	stranger := &fakePeer{name: "stranger"}
	s.registry.Register(stranger)

	s.route(stranger, []byte(`{"type":"offer","sdp":"v=0\r\n"}`))
	if len(parent.messages()) != 0 {
		t.Fatal("signal from unannounced connection was relayed")
	}
}

func TestMalformedMessagesDropped(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent"}
	announce(t, s, parent, "parent", "")

	child := &fakePeer{name: "child"}
	announce(t, s, child, "child", "dev1")

	for _, raw := range []string{
		`not json at all`,
		`{"type":"offer"}`,                          // missing sdp
		`{"type":"pranswer","sdp":"v=0"}`,           // signaling type outside the protocol
		`{"deviceId":"dev1","dataType":"keylog"}`,   // incomplete data message
		`{"deviceId":"","dataType":"keylog","data":"x","timestamp":1}`,
		`{"hello":"world"}`,
	} {
		s.route(child, []byte(raw))
	}

	if len(parent.messages()) != 0 {
		t.Fatalf("malformed input reached parents: %q", parent.messages())
	}
}

func TestDispatchCommand(t *testing.T) {
	s := testServer(t)

	// No children yet: dispatch reports failure.
	if s.DispatchCommand("capture_image") {
		t.Fatal("dispatch reported success with no children")
	}

	childA := &fakePeer{name: "child-a"}
	childB := &fakePeer{name: "child-b"}
	parent := &fakePeer{name: "parent"}
	announce(t, s, childA, "child", "dev1")
	announce(t, s, childB, "child", "dev2")
	announce(t, s, parent, "parent", "")

	if !s.DispatchCommand("capture_image") {
		t.Fatal("dispatch reported failure with children connected")
	}

	want := []byte(`{"command":"capture_image"}`)
	for _, child := range []*fakePeer{childA, childB} {
		msgs := child.messages()
		if len(msgs) != 1 || !bytes.Equal(msgs[0], want) {
			t.Fatalf("%s received %q, want %q", child.name, msgs, want)
		}
	}
	if len(parent.messages()) != 0 {
		t.Fatal("command sent to a parent")
	}

	stats := s.Stats()
	if stats.CommandsDispatched != 1 {
		t.Fatalf("CommandsDispatched = %d, want 1", stats.CommandsDispatched)
	}
}

func TestDroppedSendsCounted(t *testing.T) {
	s := testServer(t)
	parent := &fakePeer{name: "parent", full: true}
	s.registry.Register(parent)
	s.route(parent, []byte(`{"clientType":"parent"}`))

	child := &fakePeer{name: "child"}
	s.registry.Register(child)
	s.route(child, []byte(`{"deviceId":"dev1","dataType":"keylog","data":"abc","timestamp":1}`))

	if got := s.Stats().DroppedSends; got != 1 {
		t.Fatalf("DroppedSends = %d, want 1", got)
	}
}

func TestStatsCounts(t *testing.T) {
	s := testServer(t)
	child := &fakePeer{name: "child"}
	parent := &fakePeer{name: "parent"}
	stranger := &fakePeer{name: "stranger"}
	announce(t, s, child, "child", "dev1")
	announce(t, s, parent, "parent", "")
	s.registry.Register(stranger)

	stats := s.Stats()
	if stats.Children != 1 || stats.Parents != 1 || stats.Unassigned != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.ChildAnnouncements != 1 {
		t.Fatalf("ChildAnnouncements = %d, want 1", stats.ChildAnnouncements)
	}

	s.route(child, []byte(`{"type":"offer","sdp":"v=0\r\n"}`))
	if got := s.Stats().SignalsRelayed; got != 1 {
		t.Fatalf("SignalsRelayed = %d, want 1", got)
	}
}

// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"io"
	"log/slog"
	"testing"
)

// fakePeer records payloads delivered to it.
type fakePeer struct {
	name     string
	payloads [][]byte
}

func (p *fakePeer) Send(payload []byte) bool {
	p.payloads = append(p.payloads, payload)
	return true
}

func (p *fakePeer) Remote() string { return p.name }

func testRegistry() *Registry {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterStartsUnassigned(t *testing.T) {
	r := testRegistry()
	peer := &fakePeer{name: "a"}
	r.Register(peer)

	if got := r.Role(peer); got != RoleUnassigned {
		t.Fatalf("Role = %v, want RoleUnassigned", got)
	}
	children, parents, unassigned := r.Counts()
	if children != 0 || parents != 0 || unassigned != 1 {
		t.Fatalf("Counts = %d/%d/%d", children, parents, unassigned)
	}
}

func TestAnnounceBindsOnce(t *testing.T) {
	r := testRegistry()
	peer := &fakePeer{name: "a"}
	r.Register(peer)

	if !r.Announce(peer, RoleChild, "dev1") {
		t.Fatal("first announcement rejected")
	}
	if r.Role(peer) != RoleChild {
		t.Fatalf("Role = %v, want RoleChild", r.Role(peer))
	}

	// The second announcement is ignored and the original binding
	// survives.
	if r.Announce(peer, RoleParent, "") {
		t.Fatal("repeat announcement accepted")
	}
	if r.Role(peer) != RoleChild {
		t.Fatalf("role changed to %v after repeat announcement", r.Role(peer))
	}
}

func TestAnnounceUnknownPeer(t *testing.T) {
	r := testRegistry()
	if r.Announce(&fakePeer{name: "ghost"}, RoleChild, "dev1") {
		t.Fatal("announcement for unregistered peer accepted")
	}
}

func TestByRole(t *testing.T) {
	r := testRegistry()
	child := &fakePeer{name: "child"}
	parentA := &fakePeer{name: "pa"}
	parentB := &fakePeer{name: "pb"}
	idle := &fakePeer{name: "idle"}
	for _, p := range []*fakePeer{child, parentA, parentB, idle} {
		r.Register(p)
	}
	r.Announce(child, RoleChild, "dev1")
	r.Announce(parentA, RoleParent, "")
	r.Announce(parentB, RoleParent, "")

	parents := r.ByRole(RoleParent)
	if len(parents) != 2 {
		t.Fatalf("ByRole(parent) returned %d peers", len(parents))
	}
	if got := r.ByRole(RoleChild); len(got) != 1 || got[0] != child {
		t.Fatalf("ByRole(child) = %v", got)
	}
}

func TestOthersByRoleExcludesSelf(t *testing.T) {
	r := testRegistry()
	parentA := &fakePeer{name: "pa"}
	parentB := &fakePeer{name: "pb"}
	r.Register(parentA)
	r.Register(parentB)
	r.Announce(parentA, RoleParent, "")
	r.Announce(parentB, RoleParent, "")

	others := r.OthersByRole(parentA, RoleParent)
	if len(others) != 1 || others[0] != parentB {
		t.Fatalf("OthersByRole = %v", others)
	}
}

func TestUnregister(t *testing.T) {
	r := testRegistry()
	peer := &fakePeer{name: "a"}
	r.Register(peer)
	r.Announce(peer, RoleParent, "")
	r.Unregister(peer)

	if got := r.ByRole(RoleParent); len(got) != 0 {
		t.Fatalf("peer still listed after unregister: %v", got)
	}
	// Idempotent.
	r.Unregister(peer)
}

func TestParseRole(t *testing.T) {
	if role, ok := ParseRole("child"); !ok || role != RoleChild {
		t.Fatalf("ParseRole(child) = %v, %v", role, ok)
	}
	if role, ok := ParseRole("parent"); !ok || role != RoleParent {
		t.Fatalf("ParseRole(parent) = %v, %v", role, ok)
	}
	if _, ok := ParseRole("admin"); ok {
		t.Fatal("ParseRole accepted admin")
	}
}

func TestOpposite(t *testing.T) {
	if RoleChild.Opposite() != RoleParent || RoleParent.Opposite() != RoleChild {
		t.Fatal("child/parent opposites wrong")
	}
	if RoleUnassigned.Opposite() != RoleUnassigned {
		t.Fatal("unassigned should have no opposite")
	}
}

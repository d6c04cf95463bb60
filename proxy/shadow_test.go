package proxy

import (
	"testing"

	"aqwari.net/net/p9p/wire"
)

func TestShadowAttachCommitsOnlyOnRattach(t *testing.T) {
	s := newShadow()
	s.onRequest(1, wire.Tattach{Fid: 5, Uname: "glenda", Aname: "/"})
	s.onResponse(1, wire.Rlerror{Ecode: uint32(wire.EIO)})

	if snap := s.attachSnapshot(); len(snap) != 0 {
		t.Fatalf("attachSnapshot = %v, want empty after a failed Tattach", snap)
	}

	s.onRequest(2, wire.Tattach{Fid: 6, Uname: "glenda", Aname: "/"})
	s.onResponse(2, wire.Rattach{Qid: wire.Qid{Path: 1}})

	snap := s.attachSnapshot()
	if len(snap) != 1 || snap[0].Fid != 6 {
		t.Fatalf("attachSnapshot = %v, want one attach for fid 6", snap)
	}
}

func TestShadowClunkAndRemoveClearRegardlessOfOutcome(t *testing.T) {
	s := newShadow()
	s.onRequest(1, wire.Tattach{Fid: 5, Uname: "glenda", Aname: "/"})
	s.onResponse(1, wire.Rattach{Qid: wire.Qid{Path: 1}})

	s.onRequest(2, wire.Tclunk{Fid: 5})
	s.onResponse(2, wire.Rlerror{Ecode: uint32(wire.EIO)})
	if snap := s.attachSnapshot(); len(snap) != 0 {
		t.Fatalf("attachSnapshot = %v, want empty after Tclunk even on error reply", snap)
	}

	s.onRequest(3, wire.Tattach{Fid: 7, Uname: "glenda", Aname: "/"})
	s.onResponse(3, wire.Rattach{Qid: wire.Qid{Path: 2}})
	s.onRequest(4, wire.Tremove{Fid: 7})
	s.onResponse(4, wire.Rlerror{Ecode: uint32(wire.EPERM)})
	if snap := s.attachSnapshot(); len(snap) != 0 {
		t.Fatalf("attachSnapshot = %v, want empty after Tremove even on error reply", snap)
	}
}

func TestShadowDrainPendingClearsAndReturnsAllTags(t *testing.T) {
	s := newShadow()
	s.onRequest(1, wire.Tattach{Fid: 5, Uname: "glenda", Aname: "/"})
	s.onRequest(2, wire.Twalk{Fid: 5, NewFid: 6, Wnames: []string{"a"}})
	s.onRequest(3, wire.Tclunk{Fid: 6})

	tags := s.drainPending()
	if len(tags) != 3 {
		t.Fatalf("drainPending returned %d tags, want 3", len(tags))
	}
	seen := map[uint16]bool{}
	for _, tag := range tags {
		seen[tag] = true
	}
	for _, want := range []uint16{1, 2, 3} {
		if !seen[want] {
			t.Fatalf("drainPending result %v missing tag %d", tags, want)
		}
	}

	if tags := s.drainPending(); len(tags) != 0 {
		t.Fatalf("second drainPending = %v, want empty (already drained)", tags)
	}

	// A response for a drained tag is now unknown and must be a no-op,
	// not a panic or a spurious attach commit.
	s.onResponse(1, wire.Rattach{Qid: wire.Qid{Path: 9}})
	if snap := s.attachSnapshot(); len(snap) != 0 {
		t.Fatalf("attachSnapshot = %v, want empty: tag 1 was drained before its response arrived", snap)
	}
}

func TestShadowAttachSnapshotOrderedByFid(t *testing.T) {
	s := newShadow()
	fids := []uint32{9, 3, 7, 1}
	for i, fid := range fids {
		tag := uint16(i + 1)
		s.onRequest(tag, wire.Tattach{Fid: fid, Uname: "glenda", Aname: "/"})
		s.onResponse(tag, wire.Rattach{Qid: wire.Qid{Path: uint64(fid)}})
	}

	snap := s.attachSnapshot()
	if len(snap) != len(fids) {
		t.Fatalf("attachSnapshot returned %d entries, want %d", len(snap), len(fids))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Fid < snap[i-1].Fid {
			t.Fatalf("attachSnapshot not sorted by fid: %v", snap)
		}
	}
}

func TestShadowUnknownTagResponseIsNoop(t *testing.T) {
	s := newShadow()
	// No onRequest call was ever made for tag 42; the response must be
	// silently ignored rather than panicking on a missing map entry.
	s.onResponse(42, wire.Rattach{Qid: wire.Qid{Path: 1}})
	if snap := s.attachSnapshot(); len(snap) != 0 {
		t.Fatalf("attachSnapshot = %v, want empty", snap)
	}
}

func TestShadowNonAttachRequestsDoNotAffectAttachSet(t *testing.T) {
	s := newShadow()
	s.onRequest(1, wire.Tread{Fid: 5, Offset: 0, Count: 64})
	s.onResponse(1, wire.Rread{Data: []byte("hi")})
	if snap := s.attachSnapshot(); len(snap) != 0 {
		t.Fatalf("attachSnapshot = %v, want empty: Tread is not an attach/remove intent", snap)
	}
}

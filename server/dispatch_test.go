package server

import (
	"context"
	"testing"

	"aqwari.net/net/p9p/wire"
)

// noopFS is a Filesystem whose Attach always succeeds and whose
// Clunk and Remove return the configured errors, used to exercise
// dispatch and fidTable bookkeeping in isolation from any real
// filesystem.
type noopFS struct {
	BaseFilesystem
	removeErr error
	clunkErr  error
}

func (noopFS) Attach(context.Context, *Fid, string, string, uint32) (*Fid, wire.Qid, error) {
	return &Fid{}, wire.Qid{Path: 1}, nil
}

func (fs noopFS) Clunk(context.Context, *Fid) error { return fs.clunkErr }
func (fs noopFS) Remove(context.Context, *Fid) error { return fs.removeErr }

func TestDispatchXattrUnsupportedByDefault(t *testing.T) {
	fids := newFidTable()
	fids.insert(1, &Fid{})
	resp := dispatch(context.Background(), noopFS{}, fids, nil, wire.Txattrwalk{Fid: 1, Newfid: 2, Name: "user.x"})
	rl, ok := resp.(wire.Rlerror)
	if !ok {
		t.Fatalf("response = %T, want Rlerror", resp)
	}
	if wire.Errno(rl.Ecode) != wire.ENOTSUP {
		t.Fatalf("Ecode = %v, want ENOTSUP", wire.Errno(rl.Ecode))
	}
	if _, ok := fids.get(2); ok {
		t.Fatalf("Newfid 2 was inserted despite the unsupported reply")
	}
}

func TestDispatchUnknownFid(t *testing.T) {
	fids := newFidTable()
	resp := dispatch(context.Background(), noopFS{}, fids, nil, wire.Tclunk{Fid: 99})
	rl, ok := resp.(wire.Rlerror)
	if !ok || wire.Errno(rl.Ecode) != wire.EBADF {
		t.Fatalf("response = %#v, want Rlerror{EBADF}", resp)
	}
}

func TestDispatchClunkOnlyRemovesOnSuccess(t *testing.T) {
	fids := newFidTable()
	fids.insert(1, &Fid{})
	resp := dispatch(context.Background(), noopFS{clunkErr: wire.EIO}, fids, nil, wire.Tclunk{Fid: 1})
	if _, ok := resp.(wire.Rlerror); !ok {
		t.Fatalf("response = %#v, want Rlerror", resp)
	}
	if _, ok := fids.get(1); !ok {
		t.Fatalf("fid 1 was removed despite Clunk returning an error")
	}

	resp = dispatch(context.Background(), noopFS{}, fids, nil, wire.Tclunk{Fid: 1})
	if _, ok := resp.(wire.Rclunk); !ok {
		t.Fatalf("response = %#v, want Rclunk", resp)
	}
	if _, ok := fids.get(1); ok {
		t.Fatalf("fid 1 still present after a successful Clunk")
	}
}

// TestDispatchRemoveAlwaysClears checks that Tremove removes the fid
// from the map even when the Filesystem reports an error, matching
// the client's own Remove convention.
func TestDispatchRemoveAlwaysClears(t *testing.T) {
	fids := newFidTable()
	fids.insert(1, &Fid{})
	resp := dispatch(context.Background(), noopFS{removeErr: wire.EPERM}, fids, nil, wire.Tremove{Fid: 1})
	if _, ok := resp.(wire.Rlerror); !ok {
		t.Fatalf("response = %#v, want Rlerror", resp)
	}
	if _, ok := fids.get(1); ok {
		t.Fatalf("fid 1 still present after Tremove, even though the server reported an error")
	}
}

func TestDispatchWalkRejectsSameFid(t *testing.T) {
	fids := newFidTable()
	fids.insert(1, &Fid{})
	resp := dispatch(context.Background(), noopFS{}, fids, nil, wire.Twalk{Fid: 1, NewFid: 1, Wnames: nil})
	rl, ok := resp.(wire.Rlerror)
	if !ok || wire.Errno(rl.Ecode) != wire.EINVAL {
		t.Fatalf("response = %#v, want Rlerror{EINVAL}", resp)
	}
}

func TestFidTableInsertOverwrites(t *testing.T) {
	fids := newFidTable()
	fids.insert(1, &Fid{Aux: "first"})
	fids.insert(1, &Fid{Aux: "second"})
	got, ok := fids.get(1)
	if !ok || got.Aux != "second" {
		t.Fatalf("get(1) = %#v, want the most recently inserted entry", got)
	}
}

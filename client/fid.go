package client

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"aqwari.net/net/p9p/wire"
)

// ErrUnexpectedResponse is returned when the server replies to a
// request with a message variant other than the one the request
// expects. The call itself has failed, but the connection remains
// usable.
var ErrUnexpectedResponse = errors.New("client: unexpected response variant")

// Fid is a client-side handle to one object in the remote file tree,
// obtained from Client.Attach or Fid.Walk. A Fid must be released
// with Close when no longer needed; otherwise the fid stays bound
// until the Fid is garbage collected and its finalizer clunks it.
type Fid struct {
	c   *Client
	fid uint32
	qid wire.Qid

	closeOnce  sync.Once
	needsClunk int32 // atomic bool, set once attach/walk/create binds successfully
}

// Qid returns the identity the server assigned this fid's object at
// bind time. It does not track subsequent mutation of the object; use
// Getattr for a live Qid.
func (f *Fid) Qid() wire.Qid { return f.qid }

// Num returns the wire fid value, for diagnostics and logging only.
// Callers must not use it to bypass the Fid API.
func (f *Fid) Num() uint32 { return f.fid }

func newFid(c *Client, fid uint32, qid wire.Qid) *Fid {
	f := &Fid{c: c, fid: fid, qid: qid}
	atomic.StoreInt32(&f.needsClunk, 1)
	runtime.SetFinalizer(f, func(f *Fid) { f.Close() })
	return f
}

func unexpected(body wire.Body) error {
	return fmt.Errorf("%w: %T", ErrUnexpectedResponse, body)
}

// Walk resolves names, a sequence of path components, relative to f
// and returns a new Fid bound to the final component plus the Qid of
// every component walked. An empty names list clones f into a new
// fid referring to the same object.
//
// A walk of more than wire.MaxWElem names is chunked into successive
// Twalk requests, each chained through the previous step's
// intermediate fid, because the wire format bounds a single Twalk to
// wire.MaxWElem components. If step K of the walk fails, for some
// K>1 counting from 1, Walk returns the qids of the first K-1
// successful steps and a nil Fid,
// with no new fid left allocated on the server; if the very first
// step fails, Walk returns an error instead.
func (f *Fid) Walk(ctx context.Context, names ...string) ([]wire.Qid, *Fid, error) {
	if len(names) == 0 {
		return f.walkOnce(ctx, nil)
	}
	var qids []wire.Qid
	cur := f
	for len(names) > 0 {
		n := len(names)
		if n > wire.MaxWElem {
			n = wire.MaxWElem
		}
		chunk := names[:n]
		names = names[n:]

		wq, next, err := cur.walkOnce(ctx, chunk)
		qids = append(qids, wq...)
		if cur != f {
			cur.clunkBestEffort(ctx)
		}
		if err != nil {
			return qids, nil, err
		}
		if len(wq) < len(chunk) {
			// Partial walk: the server stopped short and allocated no
			// fid for this chunk. Nothing further can be chained.
			return qids, nil, nil
		}
		cur = next
	}
	return qids, cur, nil
}

func (f *Fid) walkOnce(ctx context.Context, names []string) ([]wire.Qid, *Fid, error) {
	newfid, err := f.c.allocFid()
	if err != nil {
		return nil, nil, err
	}
	body, err := f.c.call(ctx, wire.Twalk{Fid: f.fid, NewFid: newfid, Wnames: names})
	if err != nil {
		f.c.fids.Free(newfid)
		return nil, nil, err
	}
	rw, ok := body.(wire.Rwalk)
	if !ok {
		f.c.fids.Free(newfid)
		return nil, nil, unexpected(body)
	}
	if len(rw.Wqids) < len(names) {
		// Server stopped partway; no new_fid was bound.
		f.c.fids.Free(newfid)
		return rw.Wqids, nil, nil
	}
	var qid wire.Qid
	if len(rw.Wqids) > 0 {
		qid = rw.Wqids[len(rw.Wqids)-1]
	} else {
		qid = f.qid
	}
	return rw.Wqids, newFid(f.c, newfid, qid), nil
}

// Open prepares f for I/O with the given Linux open(2)-style flags.
func (f *Fid) Open(ctx context.Context, flags wire.LOpenFlags) (wire.Qid, error) {
	body, err := f.c.call(ctx, wire.Tlopen{Fid: f.fid, Flags: flags})
	if err != nil {
		return wire.Qid{}, err
	}
	ro, ok := body.(wire.Rlopen)
	if !ok {
		return wire.Qid{}, unexpected(body)
	}
	f.qid = ro.Qid
	return ro.Qid, nil
}

// Create creates name in the directory referenced by f, opens it for
// I/O with flags and mode, and rebinds f to refer to the new entry.
func (f *Fid) Create(ctx context.Context, name string, flags wire.LOpenFlags, mode uint32, gid uint32) (wire.Qid, error) {
	body, err := f.c.call(ctx, wire.Tlcreate{Fid: f.fid, Name: name, Flags: flags, Mode: mode, Gid: gid})
	if err != nil {
		return wire.Qid{}, err
	}
	rc, ok := body.(wire.Rlcreate)
	if !ok {
		return wire.Qid{}, unexpected(body)
	}
	f.qid = rc.Qid
	return rc.Qid, nil
}

// Mkdir creates a directory named name under f, owned by gid, and
// returns its Qid. Unlike Create it does not rebind f.
func (f *Fid) Mkdir(ctx context.Context, name string, mode uint32, gid uint32) (wire.Qid, error) {
	body, err := f.c.call(ctx, wire.Tmkdir{Dfid: f.fid, Name: name, Mode: mode, Gid: gid})
	if err != nil {
		return wire.Qid{}, err
	}
	rm, ok := body.(wire.Rmkdir)
	if !ok {
		return wire.Qid{}, unexpected(body)
	}
	return rm.Qid, nil
}

// Symlink creates a symbolic link named name under f pointing at
// target, owned by gid.
func (f *Fid) Symlink(ctx context.Context, name, target string, gid uint32) (wire.Qid, error) {
	body, err := f.c.call(ctx, wire.Tsymlink{Fid: f.fid, Name: name, Symtgt: target, Gid: gid})
	if err != nil {
		return wire.Qid{}, err
	}
	rs, ok := body.(wire.Rsymlink)
	if !ok {
		return wire.Qid{}, unexpected(body)
	}
	return rs.Qid, nil
}

// Mknod creates a device node named name under f.
func (f *Fid) Mknod(ctx context.Context, name string, mode, major, minor, gid uint32) (wire.Qid, error) {
	body, err := f.c.call(ctx, wire.Tmknod{Dfid: f.fid, Name: name, Mode: mode, Major: major, Minor: minor, Gid: gid})
	if err != nil {
		return wire.Qid{}, err
	}
	rm, ok := body.(wire.Rmknod)
	if !ok {
		return wire.Qid{}, unexpected(body)
	}
	return rm.Qid, nil
}

// Link creates a hard link named name under f, referring to the same
// object as target.
func (f *Fid) Link(ctx context.Context, target *Fid, name string) error {
	body, err := f.c.call(ctx, wire.Tlink{Dfid: f.fid, Fid: target.fid, Name: name})
	if err != nil {
		return err
	}
	if _, ok := body.(wire.Rlink); !ok {
		return unexpected(body)
	}
	return nil
}

// Readlink returns the target of the symbolic link referenced by f.
func (f *Fid) Readlink(ctx context.Context) (string, error) {
	body, err := f.c.call(ctx, wire.Treadlink{Fid: f.fid})
	if err != nil {
		return "", err
	}
	rl, ok := body.(wire.Rreadlink)
	if !ok {
		return "", unexpected(body)
	}
	return rl.Target, nil
}

// maxIO returns the largest read/write/readdir payload the client may
// request, bounded by the negotiated msize minus the given header
// reservation.
func (f *Fid) maxIO(hdrsz uint32) uint32 {
	msize := f.c.msize
	if msize <= hdrsz {
		return 0
	}
	return msize - hdrsz
}

// Read reads into buf starting at offset, returning the number of
// bytes read. A single Read issues exactly one Tread, bounded by
// msize-IOHDRSZ; callers reading more than that must loop.
func (f *Fid) Read(ctx context.Context, offset uint64, buf []byte) (int, error) {
	count := uint32(len(buf))
	if max := f.maxIO(wire.IOHDRSZ); count > max {
		count = max
	}
	body, err := f.c.call(ctx, wire.Tread{Fid: f.fid, Offset: offset, Count: count})
	if err != nil {
		return 0, err
	}
	rr, ok := body.(wire.Rread)
	if !ok {
		return 0, unexpected(body)
	}
	return copy(buf, rr.Data), nil
}

// Write writes buf to f starting at offset, returning the number of
// bytes written. A single Write issues exactly one Twrite, bounded by
// msize-IOHDRSZ; callers writing more than that must loop.
func (f *Fid) Write(ctx context.Context, offset uint64, buf []byte) (int, error) {
	if max := f.maxIO(wire.IOHDRSZ); uint32(len(buf)) > max {
		buf = buf[:max]
	}
	body, err := f.c.call(ctx, wire.Twrite{Fid: f.fid, Offset: offset, Data: buf})
	if err != nil {
		return 0, err
	}
	rw, ok := body.(wire.Rwrite)
	if !ok {
		return 0, unexpected(body)
	}
	return int(rw.Count), nil
}

// ReadDir reads the complete contents of the directory referenced by
// f, issuing as many Treaddir requests as necessary. It stops as soon
// as the server returns an empty batch.
func (f *Fid) ReadDir(ctx context.Context) ([]wire.Dirent, error) {
	var entries []wire.Dirent
	var offset uint64
	count := f.maxIO(wire.ReadDirHdrSZ)
	for {
		body, err := f.c.call(ctx, wire.Treaddir{Fid: f.fid, Offset: offset, Count: count})
		if err != nil {
			return entries, err
		}
		rd, ok := body.(wire.Rreaddir)
		if !ok {
			return entries, unexpected(body)
		}
		if len(rd.Data) == 0 {
			return entries, nil
		}
		entries = append(entries, rd.Data...)
		offset = rd.Data[len(rd.Data)-1].Offset
	}
}

// Getattr fetches the subset of attributes selected by mask.
func (f *Fid) Getattr(ctx context.Context, mask wire.GetattrMask) (wire.GetattrMask, wire.Qid, wire.Stat, error) {
	body, err := f.c.call(ctx, wire.Tgetattr{Fid: f.fid, ReqMask: mask})
	if err != nil {
		return 0, wire.Qid{}, wire.Stat{}, err
	}
	rg, ok := body.(wire.Rgetattr)
	if !ok {
		return 0, wire.Qid{}, wire.Stat{}, unexpected(body)
	}
	return rg.Valid, rg.Qid, rg.Stat, nil
}

// Setattr applies the subset of attr selected by mask.
func (f *Fid) Setattr(ctx context.Context, mask wire.SetattrMask, attr wire.SetAttr) error {
	body, err := f.c.call(ctx, wire.Tsetattr{Fid: f.fid, Valid: mask, SetAttr: attr})
	if err != nil {
		return err
	}
	if _, ok := body.(wire.Rsetattr); !ok {
		return unexpected(body)
	}
	return nil
}

// Statfs returns filesystem-level information for the tree containing f.
func (f *Fid) Statfs(ctx context.Context) (wire.Statfs, error) {
	body, err := f.c.call(ctx, wire.Tstatfs{Fid: f.fid})
	if err != nil {
		return wire.Statfs{}, err
	}
	rs, ok := body.(wire.Rstatfs)
	if !ok {
		return wire.Statfs{}, unexpected(body)
	}
	return rs.Statfs, nil
}

// Fsync flushes any buffered data for f to stable storage on the server.
func (f *Fid) Fsync(ctx context.Context) error {
	body, err := f.c.call(ctx, wire.Tfsync{Fid: f.fid})
	if err != nil {
		return err
	}
	if _, ok := body.(wire.Rfsync); !ok {
		return unexpected(body)
	}
	return nil
}

// Lock requests a POSIX record lock described by fl.
func (f *Fid) Lock(ctx context.Context, fl wire.Flock) (wire.LockStatus, error) {
	body, err := f.c.call(ctx, wire.Tlock{Fid: f.fid, Flock: fl})
	if err != nil {
		return 0, err
	}
	rl, ok := body.(wire.Rlock)
	if !ok {
		return 0, unexpected(body)
	}
	return rl.Status, nil
}

// GetLock queries for a conflicting POSIX record lock described by gl.
func (f *Fid) GetLock(ctx context.Context, gl wire.Getlock) (wire.Getlock, error) {
	body, err := f.c.call(ctx, wire.Tgetlock{Fid: f.fid, Getlock: gl})
	if err != nil {
		return wire.Getlock{}, err
	}
	rg, ok := body.(wire.Rgetlock)
	if !ok {
		return wire.Getlock{}, unexpected(body)
	}
	return rg.Getlock, nil
}

// Rename moves f to name within the directory referenced by newDir.
// Deprecated by Renameat, kept for completeness of the message set.
func (f *Fid) Rename(ctx context.Context, newDir *Fid, name string) error {
	body, err := f.c.call(ctx, wire.Trename{Fid: f.fid, Dfid: newDir.fid, Name: name})
	if err != nil {
		return err
	}
	if _, ok := body.(wire.Rrename); !ok {
		return unexpected(body)
	}
	return nil
}

// Renameat moves oldname, a child of f, to newname under newDir.
func (f *Fid) Renameat(ctx context.Context, oldname string, newDir *Fid, newname string) error {
	body, err := f.c.call(ctx, wire.Trenameat{
		Olddfid: f.fid, Oldname: oldname, Newdfid: newDir.fid, Newname: newname,
	})
	if err != nil {
		return err
	}
	if _, ok := body.(wire.Rrenameat); !ok {
		return unexpected(body)
	}
	return nil
}

// Unlinkat removes name, a child of f, passing through Linux
// unlinkat(2)-style flags (e.g. AT_REMOVEDIR).
func (f *Fid) Unlinkat(ctx context.Context, name string, flags uint32) error {
	body, err := f.c.call(ctx, wire.Tunlinkat{Dfid: f.fid, Name: name, Flags: flags})
	if err != nil {
		return err
	}
	if _, ok := body.(wire.Runlinkat); !ok {
		return unexpected(body)
	}
	return nil
}

// Clunk releases f without deleting the object it refers to. Clunk
// is idempotent: calling it (directly, or via Close) more than once
// is a no-op.
func (f *Fid) Clunk(ctx context.Context) error {
	var err error
	f.closeOnce.Do(func() {
		if !atomic.CompareAndSwapInt32(&f.needsClunk, 1, 0) {
			return
		}
		runtime.SetFinalizer(f, nil)
		body, cerr := f.c.call(ctx, wire.Tclunk{Fid: f.fid})
		f.c.fids.Free(f.fid)
		if cerr != nil {
			err = cerr
			return
		}
		if _, ok := body.(wire.Rclunk); !ok {
			err = unexpected(body)
		}
	})
	return err
}

// Remove clunks f and deletes the object it refers to. The fid is
// considered clunked whether or not the server-side removal
// succeeds, matching this module's existing Tremove convention: a
// failed Rremove still frees the fid value for reuse.
func (f *Fid) Remove(ctx context.Context) error {
	var err error
	f.closeOnce.Do(func() {
		atomic.StoreInt32(&f.needsClunk, 0)
		runtime.SetFinalizer(f, nil)
		body, cerr := f.c.call(ctx, wire.Tremove{Fid: f.fid})
		f.c.fids.Free(f.fid)
		if cerr != nil {
			err = cerr
			return
		}
		if _, ok := body.(wire.Rremove); !ok {
			err = unexpected(body)
		}
	})
	return err
}

// Close is an alias for Clunk, letting Fid satisfy io.Closer.
func (f *Fid) Close() error {
	return f.Clunk(context.Background())
}

// clunkBestEffort releases an intermediate fid produced mid-Walk. Its
// error is not meaningful to the caller of Walk: the fid is either
// gone from the server's perspective or was never fully bound.
func (f *Fid) clunkBestEffort(ctx context.Context) {
	f.Clunk(ctx)
}

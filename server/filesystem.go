// Package server implements the 9P2000.L server scaffolding: a
// version handshake, a per-connection fid table, and dispatch of
// decoded requests to a user-supplied Filesystem, in both a strictly
// sequential flavor (Serve) and a worker-pool flavor (ServePool).
//
// A Filesystem implementation owns the meaning of a Fid; the server
// only tracks the wire fid number to *Fid mapping and the request
// framing. Out of scope for this package, per this module's existing
// convention of keeping concrete filesystems as external collaborators:
// any actual in-memory or OS-backed filesystem, and authentication.
package server

import (
	"context"

	"aqwari.net/net/p9p/wire"
)

// Fid is the per-connection handle a Filesystem associates with a
// client-chosen fid number. Aux carries whatever state the
// Filesystem needs to service later requests against this fid (an
// open file descriptor, a path, a cursor into a directory listing,
// ...); the server package never inspects it.
type Fid struct {
	Aux any
}

// Filesystem is the handler contract a server dispatches decoded
// requests to. Every method returns either a successful result or an
// error; a non-nil error is translated to Rlerror{wire.FromError(err)}
// by the dispatcher. Embed BaseFilesystem to inherit EOPNOTSUPP
// defaults for any method a particular filesystem does not support.
type Filesystem interface {
	// Attach creates the root Fid of a new session. afid is nil when
	// the client supplied wire.NoFid (no auth).
	Attach(ctx context.Context, afid *Fid, uname, aname string, nuname uint32) (*Fid, wire.Qid, error)

	// Walk resolves names relative to fid. If every step succeeds,
	// next is the new Fid referring to the final component and qids
	// has one entry per name. If step K (K>0, zero-indexed) fails,
	// Walk returns next=nil, the qids of the first K successful
	// steps, and a nil error: the caller reports a partial Rwalk. If
	// the first step fails, Walk returns a non-nil error instead.
	Walk(ctx context.Context, fid *Fid, names []string) (next *Fid, qids []wire.Qid, err error)

	// Open prepares fid for I/O and returns its Qid and a suggested
	// I/O unit size (0 lets the client pick).
	Open(ctx context.Context, fid *Fid, flags wire.LOpenFlags) (wire.Qid, uint32, error)

	// Create creates name in the directory fid refers to, rebinding
	// fid to the new entry.
	Create(ctx context.Context, fid *Fid, name string, flags wire.LOpenFlags, mode, gid uint32) (wire.Qid, uint32, error)

	// Read reads into buf starting at offset, returning the number of
	// bytes read (which may be less than len(buf) only at EOF).
	Read(ctx context.Context, fid *Fid, offset uint64, buf []byte) (int, error)

	// Write writes buf to fid starting at offset.
	Write(ctx context.Context, fid *Fid, offset uint64, buf []byte) (int, error)

	// Readdir returns up to count bytes worth of directory entries
	// starting after offset (0 means "from the beginning"). An empty
	// result signals the end of the directory.
	Readdir(ctx context.Context, fid *Fid, offset uint64, count uint32) ([]wire.Dirent, error)

	Mkdir(ctx context.Context, dfid *Fid, name string, mode, gid uint32) (wire.Qid, error)
	Symlink(ctx context.Context, dfid *Fid, name, target string, gid uint32) (wire.Qid, error)
	Mknod(ctx context.Context, dfid *Fid, name string, mode, major, minor, gid uint32) (wire.Qid, error)
	Link(ctx context.Context, dfid, fid *Fid, name string) error
	Readlink(ctx context.Context, fid *Fid) (string, error)
	Rename(ctx context.Context, fid, dfid *Fid, name string) error
	Renameat(ctx context.Context, olddfid *Fid, oldname string, newdfid *Fid, newname string) error
	Unlinkat(ctx context.Context, dfid *Fid, name string, flags uint32) error

	Getattr(ctx context.Context, fid *Fid, mask wire.GetattrMask) (wire.GetattrMask, wire.Qid, wire.Stat, error)
	Setattr(ctx context.Context, fid *Fid, mask wire.SetattrMask, attr wire.SetAttr) error
	Statfs(ctx context.Context, fid *Fid) (wire.Statfs, error)
	Fsync(ctx context.Context, fid *Fid) error
	Lock(ctx context.Context, fid *Fid, fl wire.Flock) (wire.LockStatus, error)
	GetLock(ctx context.Context, fid *Fid, gl wire.Getlock) (wire.Getlock, error)

	// Clunk releases fid. The server removes fid from its map only
	// when Clunk returns nil.
	Clunk(ctx context.Context, fid *Fid) error
	// Remove releases fid and deletes the object it refers to. The
	// server removes fid from its map even if Remove returns an
	// error, matching this module's existing Tremove convention: a
	// fid is gone once the client asked to remove it.
	Remove(ctx context.Context, fid *Fid) error
}

// VersionNegotiator is an optional interface a Filesystem may
// implement to control msize negotiation. Without it, the server
// accepts the client's proposed msize, clamped to [512, handler
// default]. A Version method may downclamp further but must not
// return less than 512.
type VersionNegotiator interface {
	Version(ctx context.Context, msize uint32, version string) (uint32, error)
}

// Xattr is an optional interface a Filesystem may implement to
// support Txattrwalk/Txattrcreate. Without it, both requests fail
// with EOPNOTSUPP, as this specification's single-threaded server has
// always done (the Linux xattr surface was never plumbed through).
type Xattr interface {
	Xattrwalk(ctx context.Context, fid *Fid, newfid *Fid, name string) (uint64, error)
	Xattrcreate(ctx context.Context, fid *Fid, name string, size uint64, flags uint32) error
}

// ErrNotSupported is returned by every BaseFilesystem method; the
// dispatcher maps it to Rlerror{EOPNOTSUPP}.
var ErrNotSupported = wire.ENOTSUP

// BaseFilesystem implements Filesystem with every method returning
// ErrNotSupported. Embed it in a concrete filesystem and override
// only the methods that filesystem supports, so new Filesystem
// methods added in the future don't break existing implementations.
type BaseFilesystem struct{}

func (BaseFilesystem) Attach(context.Context, *Fid, string, string, uint32) (*Fid, wire.Qid, error) {
	return nil, wire.Qid{}, ErrNotSupported
}
func (BaseFilesystem) Walk(context.Context, *Fid, []string) (*Fid, []wire.Qid, error) {
	return nil, nil, ErrNotSupported
}
func (BaseFilesystem) Open(context.Context, *Fid, wire.LOpenFlags) (wire.Qid, uint32, error) {
	return wire.Qid{}, 0, ErrNotSupported
}
func (BaseFilesystem) Create(context.Context, *Fid, string, wire.LOpenFlags, uint32, uint32) (wire.Qid, uint32, error) {
	return wire.Qid{}, 0, ErrNotSupported
}
func (BaseFilesystem) Read(context.Context, *Fid, uint64, []byte) (int, error) {
	return 0, ErrNotSupported
}
func (BaseFilesystem) Write(context.Context, *Fid, uint64, []byte) (int, error) {
	return 0, ErrNotSupported
}
func (BaseFilesystem) Readdir(context.Context, *Fid, uint64, uint32) ([]wire.Dirent, error) {
	return nil, ErrNotSupported
}
func (BaseFilesystem) Mkdir(context.Context, *Fid, string, uint32, uint32) (wire.Qid, error) {
	return wire.Qid{}, ErrNotSupported
}
func (BaseFilesystem) Symlink(context.Context, *Fid, string, string, uint32) (wire.Qid, error) {
	return wire.Qid{}, ErrNotSupported
}
func (BaseFilesystem) Mknod(context.Context, *Fid, string, uint32, uint32, uint32, uint32) (wire.Qid, error) {
	return wire.Qid{}, ErrNotSupported
}
func (BaseFilesystem) Link(context.Context, *Fid, *Fid, string) error { return ErrNotSupported }
func (BaseFilesystem) Readlink(context.Context, *Fid) (string, error) {
	return "", ErrNotSupported
}
func (BaseFilesystem) Rename(context.Context, *Fid, *Fid, string) error { return ErrNotSupported }
func (BaseFilesystem) Renameat(context.Context, *Fid, string, *Fid, string) error {
	return ErrNotSupported
}
func (BaseFilesystem) Unlinkat(context.Context, *Fid, string, uint32) error { return ErrNotSupported }
func (BaseFilesystem) Getattr(context.Context, *Fid, wire.GetattrMask) (wire.GetattrMask, wire.Qid, wire.Stat, error) {
	return 0, wire.Qid{}, wire.Stat{}, ErrNotSupported
}
func (BaseFilesystem) Setattr(context.Context, *Fid, wire.SetattrMask, wire.SetAttr) error {
	return ErrNotSupported
}
func (BaseFilesystem) Statfs(context.Context, *Fid) (wire.Statfs, error) {
	return wire.Statfs{}, ErrNotSupported
}
func (BaseFilesystem) Fsync(context.Context, *Fid) error { return ErrNotSupported }
func (BaseFilesystem) Lock(context.Context, *Fid, wire.Flock) (wire.LockStatus, error) {
	return wire.LockStatusError, ErrNotSupported
}
func (BaseFilesystem) GetLock(context.Context, *Fid, wire.Getlock) (wire.Getlock, error) {
	return wire.Getlock{}, ErrNotSupported
}
func (BaseFilesystem) Clunk(context.Context, *Fid) error { return nil }
func (BaseFilesystem) Remove(context.Context, *Fid) error {
	return ErrNotSupported
}

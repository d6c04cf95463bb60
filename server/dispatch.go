package server

import (
	"context"

	"aqwari.net/net/p9p/wire"
)

// errorReply maps err to the Rlerror the client should see.
func errorReply(err error) wire.Body {
	return wire.Rlerror{Ecode: uint32(wire.FromError(err))}
}

// dispatch serves one decoded request against fs and fids, returning
// the response body. Tversion and Tflush are handled by the caller
// (the version handshake happens once per connection, and Tflush
// needs access to the caller's notion of "requests in flight", which
// differs between Serve and ServePool).
//
// databuf is a connection-owned scratch buffer dispatch may read
// Tread payloads into; the Rread it returns aliases databuf, so the
// caller is responsible for writing the response before reusing
// databuf.
func dispatch(ctx context.Context, fs Filesystem, fids *fidTable, databuf []byte, body wire.Body) wire.Body {
	switch m := body.(type) {
	case wire.Tattach:
		var afid *Fid
		if m.Afid != wire.NoFid {
			f, ok := fids.get(m.Afid)
			if !ok {
				return errorReply(wire.EBADF)
			}
			afid = f
		}
		f, qid, err := fs.Attach(ctx, afid, m.Uname, m.Aname, m.Nuname)
		if err != nil {
			return errorReply(err)
		}
		fids.insert(m.Fid, f)
		return wire.Rattach{Qid: qid}

	case wire.Twalk:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		if m.NewFid == m.Fid {
			// This server has no convention for walking a fid onto
			// itself; only new_fid != fid is supported.
			return errorReply(wire.EINVAL)
		}
		if _, taken := fids.get(m.NewFid); taken {
			return errorReply(wire.EINVAL)
		}
		next, qids, err := fs.Walk(ctx, f, m.Wnames)
		if err != nil {
			return errorReply(err)
		}
		if next == nil {
			// Partial (or, for an empty name list, impossible) walk:
			// no new fid was bound on this server.
			return wire.Rwalk{Wqids: qids}
		}
		fids.insert(m.NewFid, next)
		return wire.Rwalk{Wqids: qids}

	case wire.Tlopen:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		qid, iounit, err := fs.Open(ctx, f, m.Flags)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rlopen{Qid: qid, Iounit: iounit}

	case wire.Tlcreate:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		qid, iounit, err := fs.Create(ctx, f, m.Name, m.Flags, m.Mode, m.Gid)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rlcreate{Qid: qid, Iounit: iounit}

	case wire.Tread:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		count := int(m.Count)
		if count > len(databuf) {
			count = len(databuf)
		}
		n, err := fs.Read(ctx, f, m.Offset, databuf[:count])
		if err != nil {
			return errorReply(err)
		}
		return wire.Rread{Data: databuf[:n]}

	case wire.Twrite:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		n, err := fs.Write(ctx, f, m.Offset, m.Data)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rwrite{Count: uint32(n)}

	case wire.Treaddir:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		entries, err := fs.Readdir(ctx, f, m.Offset, m.Count)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rreaddir{Data: entries}

	case wire.Tmkdir:
		f, ok := fids.get(m.Dfid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		qid, err := fs.Mkdir(ctx, f, m.Name, m.Mode, m.Gid)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rmkdir{Qid: qid}

	case wire.Tsymlink:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		qid, err := fs.Symlink(ctx, f, m.Name, m.Symtgt, m.Gid)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rsymlink{Qid: qid}

	case wire.Tmknod:
		f, ok := fids.get(m.Dfid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		qid, err := fs.Mknod(ctx, f, m.Name, m.Mode, m.Major, m.Minor, m.Gid)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rmknod{Qid: qid}

	case wire.Tlink:
		df, ok := fids.get(m.Dfid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		tf, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		if err := fs.Link(ctx, df, tf, m.Name); err != nil {
			return errorReply(err)
		}
		return wire.Rlink{}

	case wire.Treadlink:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		target, err := fs.Readlink(ctx, f)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rreadlink{Target: target}

	case wire.Trename:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		df, ok := fids.get(m.Dfid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		if err := fs.Rename(ctx, f, df, m.Name); err != nil {
			return errorReply(err)
		}
		return wire.Rrename{}

	case wire.Trenameat:
		of, ok := fids.get(m.Olddfid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		nf, ok := fids.get(m.Newdfid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		if err := fs.Renameat(ctx, of, m.Oldname, nf, m.Newname); err != nil {
			return errorReply(err)
		}
		return wire.Rrenameat{}

	case wire.Tunlinkat:
		f, ok := fids.get(m.Dfid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		if err := fs.Unlinkat(ctx, f, m.Name, m.Flags); err != nil {
			return errorReply(err)
		}
		return wire.Runlinkat{}

	case wire.Tgetattr:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		valid, qid, stat, err := fs.Getattr(ctx, f, m.ReqMask)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rgetattr{Valid: valid, Qid: qid, Stat: stat}

	case wire.Tsetattr:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		if err := fs.Setattr(ctx, f, m.Valid, m.SetAttr); err != nil {
			return errorReply(err)
		}
		return wire.Rsetattr{}

	case wire.Tstatfs:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		statfs, err := fs.Statfs(ctx, f)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rstatfs{Statfs: statfs}

	case wire.Tfsync:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		if err := fs.Fsync(ctx, f); err != nil {
			return errorReply(err)
		}
		return wire.Rfsync{}

	case wire.Tlock:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		status, err := fs.Lock(ctx, f, m.Flock)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rlock{Status: status}

	case wire.Tgetlock:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		gl, err := fs.GetLock(ctx, f, m.Getlock)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rgetlock{Getlock: gl}

	case wire.Txattrwalk:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		xa, ok := fs.(Xattr)
		if !ok {
			return errorReply(wire.ENOTSUP)
		}
		newf := &Fid{}
		size, err := xa.Xattrwalk(ctx, f, newf, m.Name)
		if err != nil {
			return errorReply(err)
		}
		fids.insert(m.Newfid, newf)
		return wire.Rxattrwalk{Size: size}

	case wire.Txattrcreate:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		xa, ok := fs.(Xattr)
		if !ok {
			return errorReply(wire.ENOTSUP)
		}
		if err := xa.Xattrcreate(ctx, f, m.Name, m.AttrSize, m.Flags); err != nil {
			return errorReply(err)
		}
		return wire.Rxattrcreate{}

	case wire.Tclunk:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		err := fs.Clunk(ctx, f)
		if err != nil {
			return errorReply(err)
		}
		fids.remove(m.Fid)
		return wire.Rclunk{}

	case wire.Tremove:
		f, ok := fids.get(m.Fid)
		if !ok {
			return errorReply(wire.EBADF)
		}
		err := fs.Remove(ctx, f)
		// Tremove always removes the fid from the map, even on
		// error: a fid is gone once the client asked to remove it.
		fids.remove(m.Fid)
		if err != nil {
			return errorReply(err)
		}
		return wire.Rremove{}

	default:
		return errorReply(wire.ENOTSUP)
	}
}

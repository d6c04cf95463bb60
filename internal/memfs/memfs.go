// Package memfs is a small in-memory Filesystem used to demonstrate
// p9p/server without requiring an OS-backed filesystem: a
// POSIX-path-to-entry lookup tree that speaks 9P2000.L qids and
// byte-slice file content.
package memfs

import (
	"context"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"aqwari.net/net/p9p/server"
	"aqwari.net/net/p9p/wire"
)

// node is one entry in the tree: a directory if children is non-nil,
// a regular file otherwise.
type node struct {
	name     string
	qid      wire.Qid
	mode     uint32
	children map[string]*node
	parent   *node

	mu      sync.RWMutex
	data    []byte
	mtime   time.Time
}

func (n *node) isDir() bool { return n.children != nil }

// FS is a Filesystem backed entirely by process memory. The zero
// value is not usable; call New.
type FS struct {
	server.BaseFilesystem

	mu   sync.Mutex
	root *node
	path uint64 // next Qid.Path to hand out
}

// New returns an FS with a single root directory.
func New() *FS {
	fs := &FS{}
	fs.root = fs.newNode("/", true)
	return fs
}

func (fs *FS) newNode(name string, dir bool) *node {
	path := atomic.AddUint64(&fs.path, 1)
	qtype := wire.QTFILE
	mode := uint32(0o644)
	var children map[string]*node
	if dir {
		qtype = wire.QTDIR
		mode = 0o755
		children = make(map[string]*node)
	}
	return &node{
		name:     name,
		mode:     mode,
		children: children,
		qid:      wire.Qid{Type: qtype, Path: path, Version: 0},
		mtime:    time.Time{},
	}
}

// PutFile adds a regular file at name (an absolute, slash-separated
// path) with the given content, creating any missing parent
// directories. PutFile is not safe for concurrent use with Attach or
// any Fid operation.
func (fs *FS) PutFile(name string, content []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir := fs.mkdirAll(path.Dir(path.Clean("/" + name)))
	base := path.Base(name)
	n := fs.newNode(base, false)
	n.data = content
	n.parent = dir
	dir.children[base] = n
}

func (fs *FS) mkdirAll(dir string) *node {
	dir = path.Clean("/" + dir)
	if dir == "/" {
		return fs.root
	}
	parent := fs.mkdirAll(path.Dir(dir))
	base := path.Base(dir)
	if existing, ok := parent.children[base]; ok {
		return existing
	}
	n := fs.newNode(base, true)
	n.parent = parent
	parent.children[base] = n
	return n
}

func (fs *FS) Attach(ctx context.Context, afid *server.Fid, uname, aname string, nuname uint32) (*server.Fid, wire.Qid, error) {
	return &server.Fid{Aux: fs.root}, fs.root.qid, nil
}

func (fs *FS) Walk(ctx context.Context, fid *server.Fid, names []string) (*server.Fid, []wire.Qid, error) {
	cur := fid.Aux.(*node)
	qids := make([]wire.Qid, 0, len(names))
	for i, name := range names {
		if !cur.isDir() {
			if i == 0 {
				return nil, nil, wire.ENOTDIR
			}
			return nil, qids, nil
		}
		fs.mu.Lock()
		next, ok := cur.children[name]
		fs.mu.Unlock()
		if !ok {
			if i == 0 {
				return nil, nil, wire.ENOENT
			}
			return nil, qids, nil
		}
		cur = next
		qids = append(qids, cur.qid)
	}
	return &server.Fid{Aux: cur}, qids, nil
}

func (fs *FS) Open(ctx context.Context, fid *server.Fid, flags wire.LOpenFlags) (wire.Qid, uint32, error) {
	n := fid.Aux.(*node)
	return n.qid, 0, nil
}

func (fs *FS) Read(ctx context.Context, fid *server.Fid, offset uint64, buf []byte) (int, error) {
	n := fid.Aux.(*node)
	if n.isDir() {
		return 0, wire.EISDIR
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if offset >= uint64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[offset:]), nil
}

func (fs *FS) Write(ctx context.Context, fid *server.Fid, offset uint64, buf []byte) (int, error) {
	n := fid.Aux.(*node)
	if n.isDir() {
		return 0, wire.EISDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	end := offset + uint64(len(buf))
	if end > uint64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:], buf)
	n.qid.Version++
	n.mtime = time.Time{}
	return len(buf), nil
}

func (fs *FS) Readdir(ctx context.Context, fid *server.Fid, offset uint64, count uint32) ([]wire.Dirent, error) {
	n := fid.Aux.(*node)
	if !n.isDir() {
		return nil, wire.ENOTDIR
	}
	fs.mu.Lock()
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	fs.mu.Unlock()
	sortStrings(names)

	var entries []wire.Dirent
	var budget uint32
	for i, name := range names {
		if uint64(i) < offset {
			continue
		}
		child := n.children[name]
		d := wire.Dirent{Qid: child.qid, Offset: uint64(i) + 1, Name: name}
		if child.isDir() {
			d.Type = uint8(wire.QTDIR)
		}
		size := uint32(13 + 8 + 1 + 2 + len(name))
		if budget+size > count && len(entries) > 0 {
			break
		}
		entries = append(entries, d)
		budget += size
	}
	return entries, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (fs *FS) Getattr(ctx context.Context, fid *server.Fid, mask wire.GetattrMask) (wire.GetattrMask, wire.Qid, wire.Stat, error) {
	n := fid.Aux.(*node)
	n.mu.RLock()
	size := uint64(len(n.data))
	n.mu.RUnlock()
	st := wire.Stat{
		Mode:  n.mode,
		Nlink: 1,
		Size:  size,
	}
	if n.isDir() {
		st.Mode |= 0o40000
	}
	return wire.GetattrBasic, n.qid, st, nil
}

func (fs *FS) Statfs(ctx context.Context, fid *server.Fid) (wire.Statfs, error) {
	return wire.Statfs{Bsize: 4096, Namelen: 255}, nil
}

func (fs *FS) Clunk(ctx context.Context, fid *server.Fid) error { return nil }

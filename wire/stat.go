package wire

// Timespec is a wire-format (seconds, nanoseconds) pair, used for the
// atime/mtime/ctime/btime fields of Stat and SetAttr.
type Timespec struct {
	Sec  int64
	Nsec int64
}

func (p *packer) timespec(t Timespec) {
	p.i64(t.Sec)
	p.i64(t.Nsec)
}

func (u *unpacker) timespec() Timespec {
	return Timespec{Sec: u.i64(), Nsec: u.i64()}
}

const timespecLen = 16

// Stat carries the POSIX-ish attributes returned by Rgetattr, in
// declaration order as they appear on the wire.
type Stat struct {
	Mode        uint32
	UID         uint32
	GID         uint32
	Nlink       uint64
	Rdev        uint64
	Size        uint64
	Blksize     uint64
	Blocks      uint64
	Atime       Timespec
	Mtime       Timespec
	Ctime       Timespec
	Btime       Timespec
	Gen         uint64
	DataVersion uint64
}

const statLen = 4 + 4 + 4 + 8 + 8 + 8 + 8 + 8 + 4*timespecLen + 8 + 8

func (p *packer) stat(s Stat) {
	p.u32(s.Mode)
	p.u32(s.UID)
	p.u32(s.GID)
	p.u64(s.Nlink)
	p.u64(s.Rdev)
	p.u64(s.Size)
	p.u64(s.Blksize)
	p.u64(s.Blocks)
	p.timespec(s.Atime)
	p.timespec(s.Mtime)
	p.timespec(s.Ctime)
	p.timespec(s.Btime)
	p.u64(s.Gen)
	p.u64(s.DataVersion)
}

func (u *unpacker) stat() Stat {
	return Stat{
		Mode:        u.u32(),
		UID:         u.u32(),
		GID:         u.u32(),
		Nlink:       u.u64(),
		Rdev:        u.u64(),
		Size:        u.u64(),
		Blksize:     u.u64(),
		Blocks:      u.u64(),
		Atime:       u.timespec(),
		Mtime:       u.timespec(),
		Ctime:       u.timespec(),
		Btime:       u.timespec(),
		Gen:         u.u64(),
		DataVersion: u.u64(),
	}
}

// SetAttr carries the subset of Stat fields settable via Tsetattr;
// which fields actually apply is controlled by the accompanying
// SetattrMask.
type SetAttr struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	Size  uint64
	Atime Timespec
	Mtime Timespec
}

const setAttrLen = 4 + 4 + 4 + 8 + 2*timespecLen

func (p *packer) setAttr(s SetAttr) {
	p.u32(s.Mode)
	p.u32(s.UID)
	p.u32(s.GID)
	p.u64(s.Size)
	p.timespec(s.Atime)
	p.timespec(s.Mtime)
}

func (u *unpacker) setAttr() SetAttr {
	return SetAttr{
		Mode:  u.u32(),
		UID:   u.u32(),
		GID:   u.u32(),
		Size:  u.u64(),
		Atime: u.timespec(),
		Mtime: u.timespec(),
	}
}

// Statfs mirrors the fields returned by the statfs(2) system call.
type Statfs struct {
	Type    uint32
	Bsize   uint32
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Fsid    uint64
	Namelen uint32
}

const statfsLen = 4 + 4 + 8 + 8 + 8 + 8 + 8 + 8 + 4

func (p *packer) statfs(s Statfs) {
	p.u32(s.Type)
	p.u32(s.Bsize)
	p.u64(s.Blocks)
	p.u64(s.Bfree)
	p.u64(s.Bavail)
	p.u64(s.Files)
	p.u64(s.Ffree)
	p.u64(s.Fsid)
	p.u32(s.Namelen)
}

func (u *unpacker) statfs() Statfs {
	return Statfs{
		Type:    u.u32(),
		Bsize:   u.u32(),
		Blocks:  u.u64(),
		Bfree:   u.u64(),
		Bavail:  u.u64(),
		Files:   u.u64(),
		Ffree:   u.u64(),
		Fsid:    u.u64(),
		Namelen: u.u32(),
	}
}

// Dirent is one entry returned by Treaddir, packed back-to-back in
// the dirent-data field of Rreaddir.
type Dirent struct {
	Qid    Qid
	Offset uint64
	Type   uint8
	Name   string
}

func sizeDirent(d Dirent) int { return QidLen + 8 + 1 + sizeStr(d.Name) }

func (p *packer) dirent(d Dirent) {
	p.qid(d.Qid)
	p.u64(d.Offset)
	p.u8(d.Type)
	p.str(d.Name)
}

func (u *unpacker) dirent() Dirent {
	return Dirent{
		Qid:    u.qid(),
		Offset: u.u64(),
		Type:   u.u8(),
		Name:   u.str(),
	}
}

// packDirents packs entries into a dirent-data blob: a 4-byte total
// length followed by the packed entries.
func packDirents(entries []Dirent) []byte {
	size := 0
	for _, d := range entries {
		size += sizeDirent(d)
	}
	p := &packer{buf: make([]byte, 0, 4+size)}
	p.u32(uint32(size))
	for _, d := range entries {
		p.dirent(d)
	}
	return p.buf
}

func unpackDirents(u *unpacker) []Dirent {
	size := u.u32()
	data := u.need(int(size))
	if data == nil {
		return nil
	}
	sub := newUnpacker(data)
	var out []Dirent
	for len(sub.buf)-sub.pos > 0 {
		out = append(out, sub.dirent())
		if sub.err != nil {
			u.err = sub.err
			return nil
		}
	}
	return out
}

// Flock describes a POSIX record lock request (Tlock).
type Flock struct {
	Type     LockType
	Flags    LockFlag
	Start    uint64
	Length   uint64
	ProcID   uint32
	ClientID string
}

func sizeFlock(f Flock) int { return 1 + 4 + 8 + 8 + 4 + sizeStr(f.ClientID) }

func (p *packer) flock(f Flock) {
	p.u8(uint8(f.Type))
	p.u32(uint32(f.Flags))
	p.u64(f.Start)
	p.u64(f.Length)
	p.u32(f.ProcID)
	p.str(f.ClientID)
}

func (u *unpacker) flock() Flock {
	return Flock{
		Type:     truncateLockType(u.u8()),
		Flags:    truncateLockFlag(u.u32()),
		Start:    u.u64(),
		Length:   u.u64(),
		ProcID:   u.u32(),
		ClientID: u.str(),
	}
}

// Getlock describes a POSIX record lock query (Tgetlock); unlike
// Flock it carries no Flags field.
type Getlock struct {
	Type     LockType
	Start    uint64
	Length   uint64
	ProcID   uint32
	ClientID string
}

func sizeGetlock(g Getlock) int { return 1 + 8 + 8 + 4 + sizeStr(g.ClientID) }

func (p *packer) getlock(g Getlock) {
	p.u8(uint8(g.Type))
	p.u64(g.Start)
	p.u64(g.Length)
	p.u32(g.ProcID)
	p.str(g.ClientID)
}

func (u *unpacker) getlock() Getlock {
	return Getlock{
		Type:     truncateLockType(u.u8()),
		Start:    u.u64(),
		Length:   u.u64(),
		ProcID:   u.u32(),
		ClientID: u.str(),
	}
}

package wire

// Body is one request or reply body: every 9P2000.L message type
// implements it. The Tag and overall framing are handled by Marshal
// and Unmarshal, not by the Body itself.
type Body interface {
	msgType() MsgType
	bodyLen() int
	pack(p *packer)
}

// Clone returns a copy of m with no aliasing into any read buffer.
// Types that hold no borrowed slices return themselves unchanged;
// types with a Data or borrowed-string field return a copy that owns
// its storage. This is the "upgrade cow payload to owned" step
// described in the wire format notes: the read worker and thread-pool
// server call it before handing a decoded message to another
// goroutine.
func Clone(m Body) Body {
	if c, ok := m.(cloner); ok {
		return c.clone()
	}
	return m
}

type cloner interface {
	clone() Body
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ---- Tversion / Rversion ----

type Tversion struct {
	Msize   uint32
	Version string
}

func (Tversion) msgType() MsgType   { return MsgTversion }
func (m Tversion) bodyLen() int     { return 4 + sizeStr(m.Version) }
func (m Tversion) pack(p *packer)   { p.u32(m.Msize); p.str(m.Version) }

type Rversion struct {
	Msize   uint32
	Version string
}

func (Rversion) msgType() MsgType { return MsgRversion }
func (m Rversion) bodyLen() int   { return 4 + sizeStr(m.Version) }
func (m Rversion) pack(p *packer) { p.u32(m.Msize); p.str(m.Version) }

// ---- Tauth / Rauth ----

type Tauth struct {
	Afid    uint32
	Uname   string
	Aname   string
	Nuname  uint32
}

func (Tauth) msgType() MsgType { return MsgTauth }
func (m Tauth) bodyLen() int   { return 4 + sizeStr(m.Uname) + sizeStr(m.Aname) + 4 }
func (m Tauth) pack(p *packer) {
	p.u32(m.Afid)
	p.str(m.Uname)
	p.str(m.Aname)
	p.u32(m.Nuname)
}

type Rauth struct {
	Aqid Qid
}

func (Rauth) msgType() MsgType { return MsgRauth }
func (m Rauth) bodyLen() int   { return QidLen }
func (m Rauth) pack(p *packer) { p.qid(m.Aqid) }

// ---- Tattach / Rattach ----

type Tattach struct {
	Fid    uint32
	Afid   uint32
	Uname  string
	Aname  string
	Nuname uint32
}

func (Tattach) msgType() MsgType { return MsgTattach }
func (m Tattach) bodyLen() int   { return 4 + 4 + sizeStr(m.Uname) + sizeStr(m.Aname) + 4 }
func (m Tattach) pack(p *packer) {
	p.u32(m.Fid)
	p.u32(m.Afid)
	p.str(m.Uname)
	p.str(m.Aname)
	p.u32(m.Nuname)
}

func (m Tattach) clone() Body { return m }

type Rattach struct {
	Qid Qid
}

func (Rattach) msgType() MsgType { return MsgRattach }
func (m Rattach) bodyLen() int   { return QidLen }
func (m Rattach) pack(p *packer) { p.qid(m.Qid) }

// ---- Rlerror ----

// Rlerror replaces the normal reply for any failed call. Ecode is a
// Linux errno number; see errno.go for the mapping to/from Go's
// standard error kinds.
type Rlerror struct {
	Ecode uint32
}

func (Rlerror) msgType() MsgType { return MsgRlerror }
func (m Rlerror) bodyLen() int   { return 4 }
func (m Rlerror) pack(p *packer) { p.u32(m.Ecode) }

// ---- Tflush / Rflush ----

type Tflush struct {
	Oldtag uint16
}

func (Tflush) msgType() MsgType { return MsgTflush }
func (m Tflush) bodyLen() int   { return 2 }
func (m Tflush) pack(p *packer) { p.u16(m.Oldtag) }

type Rflush struct{}

func (Rflush) msgType() MsgType { return MsgRflush }
func (m Rflush) bodyLen() int   { return 0 }
func (m Rflush) pack(p *packer) {}

// ---- Twalk / Rwalk ----

type Twalk struct {
	Fid    uint32
	NewFid uint32
	Wnames []string
}

func (Twalk) msgType() MsgType { return MsgTwalk }
func (m Twalk) bodyLen() int   { return 4 + 4 + sizeStrs(m.Wnames) }
func (m Twalk) pack(p *packer) {
	p.u32(m.Fid)
	p.u32(m.NewFid)
	p.strs(m.Wnames)
}
func (m Twalk) clone() Body {
	out := make([]string, len(m.Wnames))
	copy(out, m.Wnames)
	m.Wnames = out
	return m
}

type Rwalk struct {
	Wqids []Qid
}

func (Rwalk) msgType() MsgType { return MsgRwalk }
func (m Rwalk) bodyLen() int   { return sizeQids(m.Wqids) }
func (m Rwalk) pack(p *packer) { p.qids(m.Wqids) }

// ---- Tlopen / Rlopen ----

type Tlopen struct {
	Fid   uint32
	Flags LOpenFlags
}

func (Tlopen) msgType() MsgType { return MsgTlopen }
func (m Tlopen) bodyLen() int   { return 4 + 4 }
func (m Tlopen) pack(p *packer) { p.u32(m.Fid); p.u32(uint32(m.Flags)) }

type Rlopen struct {
	Qid    Qid
	Iounit uint32
}

func (Rlopen) msgType() MsgType { return MsgRlopen }
func (m Rlopen) bodyLen() int   { return QidLen + 4 }
func (m Rlopen) pack(p *packer) { p.qid(m.Qid); p.u32(m.Iounit) }

// ---- Tlcreate / Rlcreate ----

type Tlcreate struct {
	Fid   uint32
	Name  string
	Flags LOpenFlags
	Mode  uint32
	Gid   uint32
}

func (Tlcreate) msgType() MsgType { return MsgTlcreate }
func (m Tlcreate) bodyLen() int   { return 4 + sizeStr(m.Name) + 4 + 4 + 4 }
func (m Tlcreate) pack(p *packer) {
	p.u32(m.Fid)
	p.str(m.Name)
	p.u32(uint32(m.Flags))
	p.u32(m.Mode)
	p.u32(m.Gid)
}

type Rlcreate struct {
	Qid    Qid
	Iounit uint32
}

func (Rlcreate) msgType() MsgType { return MsgRlcreate }
func (m Rlcreate) bodyLen() int   { return QidLen + 4 }
func (m Rlcreate) pack(p *packer) { p.qid(m.Qid); p.u32(m.Iounit) }

// ---- Tsymlink / Rsymlink ----

type Tsymlink struct {
	Fid     uint32
	Name    string
	Symtgt  string
	Gid     uint32
}

func (Tsymlink) msgType() MsgType { return MsgTsymlink }
func (m Tsymlink) bodyLen() int   { return 4 + sizeStr(m.Name) + sizeStr(m.Symtgt) + 4 }
func (m Tsymlink) pack(p *packer) {
	p.u32(m.Fid)
	p.str(m.Name)
	p.str(m.Symtgt)
	p.u32(m.Gid)
}

type Rsymlink struct {
	Qid Qid
}

func (Rsymlink) msgType() MsgType { return MsgRsymlink }
func (m Rsymlink) bodyLen() int   { return QidLen }
func (m Rsymlink) pack(p *packer) { p.qid(m.Qid) }

// ---- Tmknod / Rmknod ----

type Tmknod struct {
	Dfid  uint32
	Name  string
	Mode  uint32
	Major uint32
	Minor uint32
	Gid   uint32
}

func (Tmknod) msgType() MsgType { return MsgTmknod }
func (m Tmknod) bodyLen() int   { return 4 + sizeStr(m.Name) + 4 + 4 + 4 + 4 }
func (m Tmknod) pack(p *packer) {
	p.u32(m.Dfid)
	p.str(m.Name)
	p.u32(m.Mode)
	p.u32(m.Major)
	p.u32(m.Minor)
	p.u32(m.Gid)
}

type Rmknod struct {
	Qid Qid
}

func (Rmknod) msgType() MsgType { return MsgRmknod }
func (m Rmknod) bodyLen() int   { return QidLen }
func (m Rmknod) pack(p *packer) { p.qid(m.Qid) }

// ---- Trename / Rrename ----

type Trename struct {
	Fid  uint32
	Dfid uint32
	Name string
}

func (Trename) msgType() MsgType { return MsgTrename }
func (m Trename) bodyLen() int   { return 4 + 4 + sizeStr(m.Name) }
func (m Trename) pack(p *packer) { p.u32(m.Fid); p.u32(m.Dfid); p.str(m.Name) }

type Rrename struct{}

func (Rrename) msgType() MsgType { return MsgRrename }
func (m Rrename) bodyLen() int   { return 0 }
func (m Rrename) pack(p *packer) {}

// ---- Treadlink / Rreadlink ----

type Treadlink struct {
	Fid uint32
}

func (Treadlink) msgType() MsgType { return MsgTreadlink }
func (m Treadlink) bodyLen() int   { return 4 }
func (m Treadlink) pack(p *packer) { p.u32(m.Fid) }

type Rreadlink struct {
	Target string
}

func (Rreadlink) msgType() MsgType { return MsgRreadlink }
func (m Rreadlink) bodyLen() int   { return sizeStr(m.Target) }
func (m Rreadlink) pack(p *packer) { p.str(m.Target) }

// ---- Tgetattr / Rgetattr ----

type Tgetattr struct {
	Fid     uint32
	ReqMask GetattrMask
}

func (Tgetattr) msgType() MsgType { return MsgTgetattr }
func (m Tgetattr) bodyLen() int   { return 4 + 8 }
func (m Tgetattr) pack(p *packer) { p.u32(m.Fid); p.u64(uint64(m.ReqMask)) }

type Rgetattr struct {
	Valid GetattrMask
	Qid   Qid
	Stat  Stat
}

func (Rgetattr) msgType() MsgType { return MsgRgetattr }
func (m Rgetattr) bodyLen() int   { return 8 + QidLen + statLen }
func (m Rgetattr) pack(p *packer) {
	p.u64(uint64(m.Valid))
	p.qid(m.Qid)
	p.stat(m.Stat)
}

// ---- Tsetattr / Rsetattr ----

type Tsetattr struct {
	Fid     uint32
	Valid   SetattrMask
	SetAttr SetAttr
}

func (Tsetattr) msgType() MsgType { return MsgTsetattr }
func (m Tsetattr) bodyLen() int   { return 4 + 4 + setAttrLen }
func (m Tsetattr) pack(p *packer) {
	p.u32(m.Fid)
	p.u32(uint32(m.Valid))
	p.setAttr(m.SetAttr)
}

type Rsetattr struct{}

func (Rsetattr) msgType() MsgType { return MsgRsetattr }
func (m Rsetattr) bodyLen() int   { return 0 }
func (m Rsetattr) pack(p *packer) {}

// ---- Txattrwalk / Rxattrwalk ----

type Txattrwalk struct {
	Fid    uint32
	Newfid uint32
	Name   string
}

func (Txattrwalk) msgType() MsgType { return MsgTxattrwalk }
func (m Txattrwalk) bodyLen() int   { return 4 + 4 + sizeStr(m.Name) }
func (m Txattrwalk) pack(p *packer) { p.u32(m.Fid); p.u32(m.Newfid); p.str(m.Name) }

type Rxattrwalk struct {
	Size uint64
}

func (Rxattrwalk) msgType() MsgType { return MsgRxattrwalk }
func (m Rxattrwalk) bodyLen() int   { return 8 }
func (m Rxattrwalk) pack(p *packer) { p.u64(m.Size) }

// ---- Txattrcreate / Rxattrcreate ----

type Txattrcreate struct {
	Fid       uint32
	Name      string
	AttrSize  uint64
	Flags     uint32
}

func (Txattrcreate) msgType() MsgType { return MsgTxattrcreate }
func (m Txattrcreate) bodyLen() int   { return 4 + sizeStr(m.Name) + 8 + 4 }
func (m Txattrcreate) pack(p *packer) {
	p.u32(m.Fid)
	p.str(m.Name)
	p.u64(m.AttrSize)
	p.u32(m.Flags)
}

type Rxattrcreate struct{}

func (Rxattrcreate) msgType() MsgType { return MsgRxattrcreate }
func (m Rxattrcreate) bodyLen() int   { return 0 }
func (m Rxattrcreate) pack(p *packer) {}

// ---- Treaddir / Rreaddir ----

type Treaddir struct {
	Fid    uint32
	Offset uint64
	Count  uint32
}

func (Treaddir) msgType() MsgType { return MsgTreaddir }
func (m Treaddir) bodyLen() int   { return 4 + 8 + 4 }
func (m Treaddir) pack(p *packer) { p.u32(m.Fid); p.u64(m.Offset); p.u32(m.Count) }

type Rreaddir struct {
	Data []Dirent
}

func (Rreaddir) msgType() MsgType { return MsgRreaddir }
func (m Rreaddir) bodyLen() int {
	n := 0
	for _, d := range m.Data {
		n += sizeDirent(d)
	}
	return 4 + n
}
func (m Rreaddir) pack(p *packer) { p.raw(packDirents(m.Data)) }

// ---- Tfsync / Rfsync ----

type Tfsync struct {
	Fid uint32
}

func (Tfsync) msgType() MsgType { return MsgTfsync }
func (m Tfsync) bodyLen() int   { return 4 }
func (m Tfsync) pack(p *packer) { p.u32(m.Fid) }

type Rfsync struct{}

func (Rfsync) msgType() MsgType { return MsgRfsync }
func (m Rfsync) bodyLen() int   { return 0 }
func (m Rfsync) pack(p *packer) {}

// ---- Tlock / Rlock ----

type Tlock struct {
	Fid   uint32
	Flock Flock
}

func (Tlock) msgType() MsgType { return MsgTlock }
func (m Tlock) bodyLen() int   { return 4 + sizeFlock(m.Flock) }
func (m Tlock) pack(p *packer) { p.u32(m.Fid); p.flock(m.Flock) }

type Rlock struct {
	Status LockStatus
}

func (Rlock) msgType() MsgType { return MsgRlock }
func (m Rlock) bodyLen() int   { return 1 }
func (m Rlock) pack(p *packer) { p.u8(uint8(m.Status)) }

// ---- Tgetlock / Rgetlock ----

type Tgetlock struct {
	Fid     uint32
	Getlock Getlock
}

func (Tgetlock) msgType() MsgType { return MsgTgetlock }
func (m Tgetlock) bodyLen() int   { return 4 + sizeGetlock(m.Getlock) }
func (m Tgetlock) pack(p *packer) { p.u32(m.Fid); p.getlock(m.Getlock) }

type Rgetlock struct {
	Getlock Getlock
}

func (Rgetlock) msgType() MsgType { return MsgRgetlock }
func (m Rgetlock) bodyLen() int   { return sizeGetlock(m.Getlock) }
func (m Rgetlock) pack(p *packer) { p.getlock(m.Getlock) }

// ---- Tlink / Rlink ----

type Tlink struct {
	Dfid uint32
	Fid  uint32
	Name string
}

func (Tlink) msgType() MsgType { return MsgTlink }
func (m Tlink) bodyLen() int   { return 4 + 4 + sizeStr(m.Name) }
func (m Tlink) pack(p *packer) { p.u32(m.Dfid); p.u32(m.Fid); p.str(m.Name) }

type Rlink struct{}

func (Rlink) msgType() MsgType { return MsgRlink }
func (m Rlink) bodyLen() int   { return 0 }
func (m Rlink) pack(p *packer) {}

// ---- Tmkdir / Rmkdir ----

type Tmkdir struct {
	Dfid uint32
	Name string
	Mode uint32
	Gid  uint32
}

func (Tmkdir) msgType() MsgType { return MsgTmkdir }
func (m Tmkdir) bodyLen() int   { return 4 + sizeStr(m.Name) + 4 + 4 }
func (m Tmkdir) pack(p *packer) { p.u32(m.Dfid); p.str(m.Name); p.u32(m.Mode); p.u32(m.Gid) }

type Rmkdir struct {
	Qid Qid
}

func (Rmkdir) msgType() MsgType { return MsgRmkdir }
func (m Rmkdir) bodyLen() int   { return QidLen }
func (m Rmkdir) pack(p *packer) { p.qid(m.Qid) }

// ---- Trenameat / Rrenameat ----

type Trenameat struct {
	Olddfid uint32
	Oldname string
	Newdfid uint32
	Newname string
}

func (Trenameat) msgType() MsgType { return MsgTrenameat }
func (m Trenameat) bodyLen() int {
	return 4 + sizeStr(m.Oldname) + 4 + sizeStr(m.Newname)
}
func (m Trenameat) pack(p *packer) {
	p.u32(m.Olddfid)
	p.str(m.Oldname)
	p.u32(m.Newdfid)
	p.str(m.Newname)
}

type Rrenameat struct{}

func (Rrenameat) msgType() MsgType { return MsgRrenameat }
func (m Rrenameat) bodyLen() int   { return 0 }
func (m Rrenameat) pack(p *packer) {}

// ---- Tunlinkat / Runlinkat ----

type Tunlinkat struct {
	Dfid  uint32
	Name  string
	Flags uint32
}

func (Tunlinkat) msgType() MsgType { return MsgTunlinkat }
func (m Tunlinkat) bodyLen() int   { return 4 + sizeStr(m.Name) + 4 }
func (m Tunlinkat) pack(p *packer) { p.u32(m.Dfid); p.str(m.Name); p.u32(m.Flags) }

type Runlinkat struct{}

func (Runlinkat) msgType() MsgType { return MsgRunlinkat }
func (m Runlinkat) bodyLen() int   { return 0 }
func (m Runlinkat) pack(p *packer) {}

// ---- Tstatfs / Rstatfs ----

type Tstatfs struct {
	Fid uint32
}

func (Tstatfs) msgType() MsgType { return MsgTstatfs }
func (m Tstatfs) bodyLen() int   { return 4 }
func (m Tstatfs) pack(p *packer) { p.u32(m.Fid) }

type Rstatfs struct {
	Statfs Statfs
}

func (Rstatfs) msgType() MsgType { return MsgRstatfs }
func (m Rstatfs) bodyLen() int   { return statfsLen }
func (m Rstatfs) pack(p *packer) { p.statfs(m.Statfs) }

// ---- Tread / Rread ----

type Tread struct {
	Fid    uint32
	Offset uint64
	Count  uint32
}

func (Tread) msgType() MsgType { return MsgTread }
func (m Tread) bodyLen() int   { return 4 + 8 + 4 }
func (m Tread) pack(p *packer) { p.u32(m.Fid); p.u64(m.Offset); p.u32(m.Count) }

// Rread carries bulk read data. Data may alias the decoder's read
// buffer; call Clone (or wire.Clone) before handing it to another
// goroutine or retaining it past the next decode.
type Rread struct {
	Data []byte
}

func (Rread) msgType() MsgType { return MsgRread }
func (m Rread) bodyLen() int   { return sizeData(m.Data) }
func (m Rread) pack(p *packer) { p.data(m.Data) }
func (m Rread) clone() Body    { return Rread{Data: cloneBytes(m.Data)} }

// ---- Twrite / Rwrite ----

// Twrite carries bulk write data; see Rread for the aliasing
// discipline.
type Twrite struct {
	Fid    uint32
	Offset uint64
	Data   []byte
}

func (Twrite) msgType() MsgType { return MsgTwrite }
func (m Twrite) bodyLen() int   { return 4 + 8 + sizeData(m.Data) }
func (m Twrite) pack(p *packer) { p.u32(m.Fid); p.u64(m.Offset); p.data(m.Data) }
func (m Twrite) clone() Body    { return Twrite{Fid: m.Fid, Offset: m.Offset, Data: cloneBytes(m.Data)} }

type Rwrite struct {
	Count uint32
}

func (Rwrite) msgType() MsgType { return MsgRwrite }
func (m Rwrite) bodyLen() int   { return 4 }
func (m Rwrite) pack(p *packer) { p.u32(m.Count) }

// ---- Tclunk / Rclunk ----

type Tclunk struct {
	Fid uint32
}

func (Tclunk) msgType() MsgType { return MsgTclunk }
func (m Tclunk) bodyLen() int   { return 4 }
func (m Tclunk) pack(p *packer) { p.u32(m.Fid) }

type Rclunk struct{}

func (Rclunk) msgType() MsgType { return MsgRclunk }
func (m Rclunk) bodyLen() int   { return 0 }
func (m Rclunk) pack(p *packer) {}

// ---- Tremove / Rremove ----

type Tremove struct {
	Fid uint32
}

func (Tremove) msgType() MsgType { return MsgTremove }
func (m Tremove) bodyLen() int   { return 4 }
func (m Tremove) pack(p *packer) { p.u32(m.Fid) }

type Rremove struct{}

func (Rremove) msgType() MsgType { return MsgRremove }
func (m Rremove) bodyLen() int   { return 0 }
func (m Rremove) pack(p *packer) {}

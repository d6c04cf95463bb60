package wire

// TypeOf returns the MsgType of body. It exists so packages outside
// wire (the client's metrics, the server's dispatch logging) can
// label a message without a type switch over all 57 variants.
func TypeOf(body Body) MsgType { return body.msgType() }

// Len returns the number of bytes body occupies on the wire,
// excluding the size[4]/type[1]/tag[2] header. Transports that split
// a frame's header from a bulk data payload (see transport.Writer)
// use it to size their header buffer without marshaling the whole
// message.
func Len(body Body) int { return body.bodyLen() }

// Message is a decoded tag plus body, as returned by Unmarshal.
type Message struct {
	Tag  uint16
	Body Body
}

// Marshal encodes tag and body into dst, which must have at least
// HeaderLen+body.bodyLen() bytes of capacity; dst's length is ignored.
// It returns the number of bytes written, or ErrMessageTooLarge if
// dst's capacity is insufficient.
func Marshal(dst []byte, tag uint16, body Body) (int, error) {
	total := HeaderLen + body.bodyLen()
	p, err := newPacker(dst, total)
	if err != nil {
		return 0, err
	}
	p.u32(uint32(total))
	p.u8(uint8(body.msgType()))
	p.u16(tag)
	body.pack(p)
	return len(p.buf), nil
}

// Unmarshal decodes a single complete message from buf, which must
// hold exactly one frame (size[4] type[1] tag[2] body...); use
// transport.Reader.ReadFrame to split a byte stream into frames first.
// The Data byte slices of a returned Rread or Twrite alias buf
// (strings are copied); call Clone(msg.Body) before retaining it past
// buf's lifetime.
func Unmarshal(buf []byte) (Message, error) {
	u := newUnpacker(buf)
	size := u.u32()
	mtype := MsgType(u.u8())
	tag := u.u16()
	if u.err != nil {
		return Message{}, ErrInvalidMessage
	}
	if int(size) != len(buf) {
		return Message{}, ErrInvalidMessage
	}
	body := decodeBody(u, mtype)
	if u.err != nil {
		return Message{}, u.err
	}
	if len(u.buf)-u.pos != 0 {
		return Message{}, ErrInvalidMessage
	}
	return Message{Tag: tag, Body: body}, nil
}

func decodeBody(u *unpacker, mtype MsgType) Body {
	switch mtype {
	case MsgRlerror:
		return Rlerror{Ecode: u.u32()}
	case MsgTstatfs:
		return Tstatfs{Fid: u.u32()}
	case MsgRstatfs:
		return Rstatfs{Statfs: u.statfs()}
	case MsgTlopen:
		return Tlopen{Fid: u.u32(), Flags: truncateLOpenFlags(u.u32())}
	case MsgRlopen:
		return Rlopen{Qid: u.qid(), Iounit: u.u32()}
	case MsgTlcreate:
		fid := u.u32()
		name := u.str()
		flags := truncateLOpenFlags(u.u32())
		mode := u.u32()
		gid := u.u32()
		return Tlcreate{Fid: fid, Name: name, Flags: flags, Mode: mode, Gid: gid}
	case MsgRlcreate:
		return Rlcreate{Qid: u.qid(), Iounit: u.u32()}
	case MsgTsymlink:
		fid := u.u32()
		name := u.str()
		tgt := u.str()
		gid := u.u32()
		return Tsymlink{Fid: fid, Name: name, Symtgt: tgt, Gid: gid}
	case MsgRsymlink:
		return Rsymlink{Qid: u.qid()}
	case MsgTmknod:
		dfid := u.u32()
		name := u.str()
		mode := u.u32()
		major := u.u32()
		minor := u.u32()
		gid := u.u32()
		return Tmknod{Dfid: dfid, Name: name, Mode: mode, Major: major, Minor: minor, Gid: gid}
	case MsgRmknod:
		return Rmknod{Qid: u.qid()}
	case MsgTrename:
		fid := u.u32()
		dfid := u.u32()
		name := u.str()
		return Trename{Fid: fid, Dfid: dfid, Name: name}
	case MsgRrename:
		return Rrename{}
	case MsgTreadlink:
		return Treadlink{Fid: u.u32()}
	case MsgRreadlink:
		return Rreadlink{Target: u.str()}
	case MsgTgetattr:
		fid := u.u32()
		mask := truncateGetattrMask(u.u64())
		return Tgetattr{Fid: fid, ReqMask: mask}
	case MsgRgetattr:
		valid := truncateGetattrMask(u.u64())
		qid := u.qid()
		stat := u.stat()
		return Rgetattr{Valid: valid, Qid: qid, Stat: stat}
	case MsgTsetattr:
		fid := u.u32()
		valid := truncateSetattrMask(u.u32())
		sa := u.setAttr()
		return Tsetattr{Fid: fid, Valid: valid, SetAttr: sa}
	case MsgRsetattr:
		return Rsetattr{}
	case MsgTxattrwalk:
		fid := u.u32()
		newfid := u.u32()
		name := u.str()
		return Txattrwalk{Fid: fid, Newfid: newfid, Name: name}
	case MsgRxattrwalk:
		return Rxattrwalk{Size: u.u64()}
	case MsgTxattrcreate:
		fid := u.u32()
		name := u.str()
		size := u.u64()
		flags := u.u32()
		return Txattrcreate{Fid: fid, Name: name, AttrSize: size, Flags: flags}
	case MsgRxattrcreate:
		return Rxattrcreate{}
	case MsgTreaddir:
		fid := u.u32()
		offset := u.u64()
		count := u.u32()
		return Treaddir{Fid: fid, Offset: offset, Count: count}
	case MsgRreaddir:
		return Rreaddir{Data: unpackDirents(u)}
	case MsgTfsync:
		return Tfsync{Fid: u.u32()}
	case MsgRfsync:
		return Rfsync{}
	case MsgTlock:
		fid := u.u32()
		fl := u.flock()
		return Tlock{Fid: fid, Flock: fl}
	case MsgRlock:
		return Rlock{Status: truncateLockStatus(u.u8())}
	case MsgTgetlock:
		fid := u.u32()
		gl := u.getlock()
		return Tgetlock{Fid: fid, Getlock: gl}
	case MsgRgetlock:
		return Rgetlock{Getlock: u.getlock()}
	case MsgTlink:
		dfid := u.u32()
		fid := u.u32()
		name := u.str()
		return Tlink{Dfid: dfid, Fid: fid, Name: name}
	case MsgRlink:
		return Rlink{}
	case MsgTmkdir:
		dfid := u.u32()
		name := u.str()
		mode := u.u32()
		gid := u.u32()
		return Tmkdir{Dfid: dfid, Name: name, Mode: mode, Gid: gid}
	case MsgRmkdir:
		return Rmkdir{Qid: u.qid()}
	case MsgTrenameat:
		olddfid := u.u32()
		oldname := u.str()
		newdfid := u.u32()
		newname := u.str()
		return Trenameat{Olddfid: olddfid, Oldname: oldname, Newdfid: newdfid, Newname: newname}
	case MsgRrenameat:
		return Rrenameat{}
	case MsgTunlinkat:
		dfid := u.u32()
		name := u.str()
		flags := u.u32()
		return Tunlinkat{Dfid: dfid, Name: name, Flags: flags}
	case MsgRunlinkat:
		return Runlinkat{}
	case MsgTversion:
		msize := u.u32()
		version := u.str()
		return Tversion{Msize: msize, Version: version}
	case MsgRversion:
		msize := u.u32()
		version := u.str()
		return Rversion{Msize: msize, Version: version}
	case MsgTauth:
		afid := u.u32()
		uname := u.str()
		aname := u.str()
		nuname := u.u32()
		return Tauth{Afid: afid, Uname: uname, Aname: aname, Nuname: nuname}
	case MsgRauth:
		return Rauth{Aqid: u.qid()}
	case MsgTattach:
		fid := u.u32()
		afid := u.u32()
		uname := u.str()
		aname := u.str()
		nuname := u.u32()
		return Tattach{Fid: fid, Afid: afid, Uname: uname, Aname: aname, Nuname: nuname}
	case MsgRattach:
		return Rattach{Qid: u.qid()}
	case MsgTflush:
		return Tflush{Oldtag: u.u16()}
	case MsgRflush:
		return Rflush{}
	case MsgTwalk:
		fid := u.u32()
		newfid := u.u32()
		wnames := u.strs()
		return Twalk{Fid: fid, NewFid: newfid, Wnames: wnames}
	case MsgRwalk:
		return Rwalk{Wqids: u.qids()}
	case MsgTread:
		fid := u.u32()
		offset := u.u64()
		count := u.u32()
		return Tread{Fid: fid, Offset: offset, Count: count}
	case MsgRread:
		return Rread{Data: u.bytesBorrow()}
	case MsgTwrite:
		fid := u.u32()
		offset := u.u64()
		data := u.bytesBorrow()
		return Twrite{Fid: fid, Offset: offset, Data: data}
	case MsgRwrite:
		return Rwrite{Count: u.u32()}
	case MsgTclunk:
		return Tclunk{Fid: u.u32()}
	case MsgRclunk:
		return Rclunk{}
	case MsgTremove:
		return Tremove{Fid: u.u32()}
	case MsgRremove:
		return Rremove{}
	default:
		u.fail()
		return nil
	}
}

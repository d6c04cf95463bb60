package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrInvalidMessage is returned by Unmarshal for any malformed input:
// a short buffer, a length prefix that does not match the buffer, a
// non-UTF-8 string, or an unknown message type. The protocol treats
// all of these the same way: the connection is no longer usable.
var ErrInvalidMessage = errors.New("invalid 9p message")

// ErrMessageTooLarge is returned by Marshal when encoding would
// require more space than the destination buffer's capacity.
var ErrMessageTooLarge = errors.New("9p message exceeds buffer capacity")

// packer appends wire-format fields to a fixed-capacity buffer. It
// never grows past cap(buf); callers must size buf to the exact
// encoded length ahead of time (see Len).
type packer struct {
	buf []byte
}

func newPacker(cap_ []byte, size int) (*packer, error) {
	if cap(cap_) < size {
		return nil, ErrMessageTooLarge
	}
	return &packer{buf: cap_[:0]}, nil
}

func (p *packer) u8(v uint8)   { p.buf = append(p.buf, v) }
func (p *packer) u16(v uint16) { p.buf = append(p.buf, 0, 0); binary.LittleEndian.PutUint16(p.buf[len(p.buf)-2:], v) }
func (p *packer) u32(v uint32) {
	p.buf = append(p.buf, 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(p.buf[len(p.buf)-4:], v)
}
func (p *packer) u64(v uint64) {
	p.buf = append(p.buf, 0, 0, 0, 0, 0, 0, 0, 0)
	binary.LittleEndian.PutUint64(p.buf[len(p.buf)-8:], v)
}
func (p *packer) i64(v int64) { p.u64(uint64(v)) }

func (p *packer) raw(b []byte) { p.buf = append(p.buf, b...) }

func (p *packer) str(s string) {
	p.u16(uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *packer) data(b []byte) {
	p.u32(uint32(len(b)))
	p.buf = append(p.buf, b...)
}

func (p *packer) qid(q Qid) {
	var b [QidLen]byte
	q.marshal(b[:])
	p.raw(b[:])
}

func (p *packer) strs(ss []string) {
	p.u16(uint16(len(ss)))
	for _, s := range ss {
		p.str(s)
	}
}

func (p *packer) qids(qs []Qid) {
	p.u16(uint16(len(qs)))
	for _, q := range qs {
		p.qid(q)
	}
}

// unpacker consumes wire-format fields from a borrowed buffer: byte
// slices returned by it alias buf, while strings are copied. Callers
// that need to retain a value past the lifetime of buf must clone it
// (see Clone).
type unpacker struct {
	buf []byte
	pos int
	err error
}

func newUnpacker(buf []byte) *unpacker {
	return &unpacker{buf: buf}
}

func (u *unpacker) fail() {
	if u.err == nil {
		u.err = ErrInvalidMessage
	}
}

func (u *unpacker) need(n int) []byte {
	if u.err != nil {
		return nil
	}
	if n < 0 || len(u.buf)-u.pos < n {
		u.fail()
		return nil
	}
	b := u.buf[u.pos : u.pos+n]
	u.pos += n
	return b
}

func (u *unpacker) u8() uint8 {
	b := u.need(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (u *unpacker) u16() uint16 {
	b := u.need(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (u *unpacker) u32() uint32 {
	b := u.need(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (u *unpacker) u64() uint64 {
	b := u.need(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (u *unpacker) i64() int64 { return int64(u.u64()) }

func (u *unpacker) qid() Qid {
	b := u.need(QidLen)
	if b == nil {
		return Qid{}
	}
	return unmarshalQid(b)
}

func (u *unpacker) str() string {
	n := u.u16()
	b := u.need(int(n))
	if b == nil {
		return ""
	}
	if !validUTF8(b) {
		u.fail()
		return ""
	}
	return string(b)
}

// bytesBorrow returns a slice of the data field that aliases buf.
func (u *unpacker) bytesBorrow() []byte {
	n := u.u32()
	if n > math.MaxUint32 {
		u.fail()
		return nil
	}
	b := u.need(int(n))
	return b
}

func (u *unpacker) strs() []string {
	n := u.u16()
	if u.err != nil {
		return nil
	}
	out := make([]string, 0, n)
	for i := uint16(0); i < n; i++ {
		out = append(out, u.str())
		if u.err != nil {
			return nil
		}
	}
	return out
}

func (u *unpacker) qids() []Qid {
	n := u.u16()
	if u.err != nil {
		return nil
	}
	out := make([]Qid, 0, n)
	for i := uint16(0); i < n; i++ {
		out = append(out, u.qid())
		if u.err != nil {
			return nil
		}
	}
	return out
}

// remaining returns everything left unconsumed in the buffer.
func (u *unpacker) remaining() []byte {
	if u.err != nil {
		return nil
	}
	b := u.buf[u.pos:]
	u.pos = len(u.buf)
	return b
}

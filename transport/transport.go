// Package transport implements the framing layer of 9P2000.L: it
// turns a byte stream into a sequence of complete messages, enforcing
// the negotiated msize, and resolves textual addresses (TCP or
// local-socket) into net.Conn/net.Listener pairs.
//
// The framing discipline is streaming and allocation-light: a single
// bufio.Reader is grown to the negotiated msize and messages are
// sliced out of it rather than copied, except where the caller
// retains a message past the next Read.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"aqwari.net/net/p9p/wire"
)

// DefaultMsize is proposed by clients that have no better value and
// is large enough to amortize framing overhead without forcing every
// peer to allocate an enormous buffer up front.
const DefaultMsize = 64 * 1024

// ErrMessageTooLarge is returned by Reader.ReadFrame when an incoming
// message's declared size exceeds the negotiated msize.
var ErrMessageTooLarge = errors.New("transport: message exceeds negotiated msize")

// Reader reads framed 9P messages from an underlying byte stream.
// Reader is not safe for concurrent use; pair each Reader with a
// single reader goroutine.
type Reader struct {
	br    *bufio.Reader
	msize uint32
}

// NewReader returns a Reader that buffers up to msize bytes, the
// largest single message it will accept.
func NewReader(r io.Reader, msize uint32) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, int(msize)), msize: msize}
}

// SetMsize adjusts the maximum frame size accepted by future calls to
// ReadFrame. It is called once version negotiation completes and a
// (possibly smaller) msize has been agreed on.
func (r *Reader) SetMsize(msize uint32) {
	r.msize = msize
	if r.br.Size() < int(msize) {
		r.br = bufio.NewReaderSize(r.br, int(msize))
	}
}

// ReadFrame reads one complete message frame (the size[4] prefix and
// everything it declares) and returns it as a slice aliasing the
// Reader's internal buffer. The slice is only valid until the next
// call to ReadFrame; callers that need to retain data from it past
// that point must copy it (see wire.Clone for message bodies).
func (r *Reader) ReadFrame() ([]byte, error) {
	head, err := r.br.Peek(4)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	size := uint32(head[0]) | uint32(head[1])<<8 | uint32(head[2])<<16 | uint32(head[3])<<24
	if size < wire.HeaderLen {
		return nil, wire.ErrInvalidMessage
	}
	if size > r.msize {
		return nil, ErrMessageTooLarge
	}
	buf, err := r.br.Peek(int(size))
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err == bufio.ErrBufferFull {
			return nil, fmt.Errorf("transport: frame of %d bytes exceeds reader buffer: %w", size, ErrMessageTooLarge)
		}
		return nil, err
	}
	if _, err := r.br.Discard(int(size)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Writer writes framed 9P messages to an underlying byte stream.
// Writer is not safe for concurrent use without external locking; the
// client and the proxy each serialize all writes behind a single
// mutex, following this module's existing single-writer convention.
type Writer struct {
	w     io.Writer
	msize uint32
}

func NewWriter(w io.Writer, msize uint32) *Writer {
	return &Writer{w: w, msize: msize}
}

func (w *Writer) SetMsize(msize uint32) { w.msize = msize }

// WriteFrame marshals tag and body and writes the result in full. For
// Twrite/Rread bodies it avoids copying the payload into the encode
// buffer: the fixed-size header is written first, then the data slice
// directly from the caller's memory, as two separate Write calls on
// the underlying stream (the "two-write fast path" used for bulk
// transfers).
func (w *Writer) WriteFrame(buf []byte, tag uint16, body wire.Body) error {
	data, ok := bulkPayload(body)
	if !ok {
		n, err := wire.Marshal(buf, tag, body)
		if err != nil {
			return err
		}
		_, err = w.w.Write(buf[:n])
		return err
	}
	hdr, err := marshalBulkHeader(buf, tag, body)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(hdr); err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}

// bulkPayload extracts the bulk data slice of Twrite/Rread bodies, if
// any, so WriteFrame can avoid copying it into the encode buffer.
func bulkPayload(body wire.Body) ([]byte, bool) {
	switch m := body.(type) {
	case wire.Twrite:
		return m.Data, true
	case wire.Rread:
		return m.Data, true
	}
	return nil, false
}

// marshalBulkHeader packs everything up to and including the data
// field's 4-byte length prefix, leaving the data itself for the
// caller to write separately. The frame's size[4] prefix still
// reflects the full message length, including the withheld data.
func marshalBulkHeader(buf []byte, tag uint16, body wire.Body) ([]byte, error) {
	var fid uint32
	var offset uint64
	var dataLen int
	var mtype wire.MsgType
	switch m := body.(type) {
	case wire.Twrite:
		fid, offset, dataLen, mtype = m.Fid, m.Offset, len(m.Data), wire.MsgTwrite
	case wire.Rread:
		dataLen, mtype = len(m.Data), wire.MsgRread
	default:
		return nil, fmt.Errorf("transport: %T has no bulk payload", body)
	}
	bodyLen := wire.Len(body)
	headLen := wire.HeaderLen + bodyLen - dataLen
	if cap(buf) < headLen {
		return nil, wire.ErrMessageTooLarge
	}
	b := buf[:0]
	b = appendU32(b, uint32(wire.HeaderLen+bodyLen))
	b = append(b, uint8(mtype))
	b = appendU16(b, tag)
	if mtype == wire.MsgTwrite {
		b = appendU32(b, fid)
		b = appendU64(b, offset)
	}
	b = appendU32(b, uint32(dataLen))
	return b, nil
}

func appendU16(b []byte, v uint16) []byte { return append(b, byte(v), byte(v>>8)) }
func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
func appendU64(b []byte, v uint64) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// Addr resolves a 9P endpoint address of the form "host:port" (TCP)
// or "unix:/path/to/socket" (local socket), the same two forms the
// reference client and server tools accept.
type Addr struct {
	Network string
	Address string
}

// ParseAddr parses s into an Addr. A "unix:" prefix selects a local
// socket; anything else is treated as a TCP address.
func ParseAddr(s string) Addr {
	if rest, ok := strings.CutPrefix(s, "unix:"); ok {
		return Addr{Network: "unix", Address: rest}
	}
	return Addr{Network: "tcp", Address: s}
}

func (a Addr) String() string {
	if a.Network == "unix" {
		return "unix:" + a.Address
	}
	return a.Address
}

// Dial connects to a.
func Dial(a Addr) (net.Conn, error) {
	return net.Dial(a.Network, a.Address)
}

// Listen binds a listener at a. For unix sockets, Listen removes any
// stale socket file left over from a previous run before binding.
func Listen(a Addr) (net.Listener, error) {
	if a.Network == "unix" {
		return listenUnixReuse(a.Address)
	}
	return net.Listen(a.Network, a.Address)
}

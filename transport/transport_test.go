package transport

import (
	"bytes"
	"testing"

	"aqwari.net/net/p9p/wire"
)

func TestReadFrameRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	n, err := wire.Marshal(buf, 7, wire.Tclunk{Fid: 42})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	r := NewReader(bytes.NewReader(buf[:n]), DefaultMsize)
	frame, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	msg, err := wire.Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Tag != 7 {
		t.Errorf("Tag = %d, want 7", msg.Tag)
	}
	if c, ok := msg.Body.(wire.Tclunk); !ok || c.Fid != 42 {
		t.Errorf("Body = %#v, want Tclunk{Fid:42}", msg.Body)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	buf := make([]byte, 256)
	n, err := wire.Marshal(buf, 1, wire.Tclunk{Fid: 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	r := NewReader(bytes.NewReader(buf[:n]), wire.HeaderLen)
	if _, err := r.ReadFrame(); err != ErrMessageTooLarge {
		t.Fatalf("ReadFrame err = %v, want ErrMessageTooLarge", err)
	}
}

func TestWriteFrameBulkWrite(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, DefaultMsize)
	buf := make([]byte, 64)
	data := []byte("hello world")
	if err := w.WriteFrame(buf, 3, wire.Twrite{Fid: 9, Offset: 10, Data: data}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	r := NewReader(bytes.NewReader(out.Bytes()), DefaultMsize)
	frame, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	msg, err := wire.Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	tw, ok := msg.Body.(wire.Twrite)
	if !ok {
		t.Fatalf("Body = %#v, want Twrite", msg.Body)
	}
	if tw.Fid != 9 || tw.Offset != 10 || !bytes.Equal(tw.Data, data) {
		t.Errorf("Twrite = %+v, want Fid=9 Offset=10 Data=%q", tw, data)
	}
}

func TestParseAddr(t *testing.T) {
	if a := ParseAddr("unix:/tmp/p9.sock"); a.Network != "unix" || a.Address != "/tmp/p9.sock" {
		t.Errorf("ParseAddr(unix:...) = %+v", a)
	}
	if a := ParseAddr("localhost:564"); a.Network != "tcp" || a.Address != "localhost:564" {
		t.Errorf("ParseAddr(tcp) = %+v", a)
	}
}

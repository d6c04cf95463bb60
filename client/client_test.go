package client

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"aqwari.net/net/p9p/transport"
	"aqwari.net/net/p9p/wire"
)

// fakeServer is a minimal 9P2000.L peer driven entirely by a
// handler function, used to exercise Client behavior without a real
// server package dependency.
type fakeServer struct {
	conn    net.Conn
	rd      *transport.Reader
	wr      *transport.Writer
	handler func(tag uint16, body wire.Body) (uint16, wire.Body)
}

func newFakeServer(t *testing.T, conn net.Conn, handler func(uint16, wire.Body) (uint16, wire.Body)) *fakeServer {
	s := &fakeServer{
		conn:    conn,
		rd:      transport.NewReader(conn, transport.DefaultMsize),
		wr:      transport.NewWriter(conn, transport.DefaultMsize),
		handler: handler,
	}
	go s.serve(t)
	return s
}

func (s *fakeServer) serve(t *testing.T) {
	for {
		frame, err := s.rd.ReadFrame()
		if err != nil {
			return
		}
		msg, err := wire.Unmarshal(frame)
		if err != nil {
			return
		}
		replyTag, reply := s.handler(msg.Tag, msg.Body)
		buf := make([]byte, wire.HeaderLen+wire.Len(reply))
		if err := s.wr.WriteFrame(buf, replyTag, reply); err != nil {
			return
		}
	}
}

func dialFake(t *testing.T, handler func(uint16, wire.Body) (uint16, wire.Body)) (*Client, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	newFakeServer(t, server, handler)
	c, err := Dial(context.Background(), client, Options{Msize: 8192})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, server
}

func versionOK(tag uint16, body wire.Body) (uint16, wire.Body) {
	tv := body.(wire.Tversion)
	return tag, wire.Rversion{Msize: tv.Msize, Version: wire.Version}
}

func TestVersionNegotiation(t *testing.T) {
	c, _ := dialFake(t, versionOK)
	if c.Msize() != 8192 {
		t.Fatalf("Msize() = %d, want 8192", c.Msize())
	}
}

func TestAttachWalkClunk(t *testing.T) {
	c, _ := dialFake(t, func(tag uint16, body wire.Body) (uint16, wire.Body) {
		switch m := body.(type) {
		case wire.Tversion:
			return versionOK(tag, m)
		case wire.Tattach:
			return tag, wire.Rattach{Qid: wire.Qid{Type: wire.QTDIR, Path: 42}}
		case wire.Twalk:
			if len(m.Wnames) != 2 {
				t.Errorf("Twalk.Wnames = %v, want 2 names", m.Wnames)
			}
			return tag, wire.Rwalk{Wqids: []wire.Qid{
				{Type: wire.QTDIR, Path: 43},
				{Type: wire.QTFILE, Path: 44},
			}}
		case wire.Tclunk:
			return tag, wire.Rclunk{}
		default:
			t.Errorf("unexpected request %T", body)
			return tag, wire.Rlerror{Ecode: uint32(wire.EIO)}
		}
	})

	root, err := c.Attach(context.Background(), 1000, "u", "/")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if root.Qid().Path != 42 {
		t.Errorf("root qid path = %d, want 42", root.Qid().Path)
	}

	qids, leaf, err := root.Walk(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(qids) != 2 || qids[1].Path != 44 {
		t.Fatalf("Walk qids = %v", qids)
	}
	if err := leaf.Clunk(context.Background()); err != nil {
		t.Fatalf("leaf.Clunk: %v", err)
	}
	if err := root.Clunk(context.Background()); err != nil {
		t.Fatalf("root.Clunk: %v", err)
	}
	// Clunk is idempotent.
	if err := root.Clunk(context.Background()); err != nil {
		t.Fatalf("second root.Clunk: %v", err)
	}
}

func TestWalkChunking(t *testing.T) {
	// A walk over more than MaxWElem names is split
	// into ceil(len/13) Twalk messages, chained through intermediate
	// fids, and the final fid resolves the whole path.
	names := make([]string, 30)
	for i := range names {
		names[i] = fmt.Sprintf("n%d", i)
	}
	var twalkCount int
	c, _ := dialFake(t, func(tag uint16, body wire.Body) (uint16, wire.Body) {
		switch m := body.(type) {
		case wire.Tversion:
			return versionOK(tag, m)
		case wire.Tattach:
			return tag, wire.Rattach{Qid: wire.Qid{Type: wire.QTDIR, Path: 1}}
		case wire.Twalk:
			twalkCount++
			qids := make([]wire.Qid, len(m.Wnames))
			for i := range qids {
				qids[i] = wire.Qid{Type: wire.QTDIR, Path: uint64(100 + i)}
			}
			return tag, wire.Rwalk{Wqids: qids}
		case wire.Tclunk:
			return tag, wire.Rclunk{}
		default:
			t.Errorf("unexpected request %T", body)
			return tag, wire.Rlerror{}
		}
	})

	root, err := c.Attach(context.Background(), wire.NoNuname, "u", "/")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	qids, leaf, err := root.Walk(context.Background(), names...)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	wantChunks := (len(names) + wire.MaxWElem - 1) / wire.MaxWElem
	if twalkCount != wantChunks {
		t.Errorf("Twalk count = %d, want %d", twalkCount, wantChunks)
	}
	if len(qids) != len(names) {
		t.Errorf("len(qids) = %d, want %d", len(qids), len(names))
	}
	if leaf == nil {
		t.Fatal("Walk returned nil leaf fid")
	}
}

func TestPartialWalk(t *testing.T) {
	// The second of two names fails; one qid comes
	// back, no fid is bound.
	c, _ := dialFake(t, func(tag uint16, body wire.Body) (uint16, wire.Body) {
		switch m := body.(type) {
		case wire.Tversion:
			return versionOK(tag, m)
		case wire.Tattach:
			return tag, wire.Rattach{Qid: wire.Qid{Path: 1}}
		case wire.Twalk:
			return tag, wire.Rwalk{Wqids: []wire.Qid{{Type: wire.QTFILE, Path: 100}}}
		default:
			t.Errorf("unexpected request %T", m)
			return tag, wire.Rlerror{}
		}
	})
	root, err := c.Attach(context.Background(), wire.NoNuname, "u", "/")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	qids, leaf, err := root.Walk(context.Background(), "exists", "missing")
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(qids) != 1 || qids[0].Path != 100 {
		t.Fatalf("qids = %v, want one qid with path 100", qids)
	}
	if leaf != nil {
		t.Fatalf("leaf = %v, want nil on partial walk", leaf)
	}
}

func TestReadDirTermination(t *testing.T) {
	batches := [][]wire.Dirent{
		{
			{Offset: 1, Name: "a"}, {Offset: 2, Name: "b"}, {Offset: 10, Name: "j"},
		},
		{
			{Offset: 11, Name: "k"}, {Offset: 15, Name: "o"},
		},
		{},
	}
	var calls int
	c, _ := dialFake(t, func(tag uint16, body wire.Body) (uint16, wire.Body) {
		switch m := body.(type) {
		case wire.Tversion:
			return versionOK(tag, m)
		case wire.Tattach:
			return tag, wire.Rattach{Qid: wire.Qid{Type: wire.QTDIR, Path: 1}}
		case wire.Treaddir:
			b := batches[calls]
			calls++
			return tag, wire.Rreaddir{Data: b}
		default:
			t.Errorf("unexpected request %T", m)
			return tag, wire.Rlerror{}
		}
	})
	root, err := c.Attach(context.Background(), wire.NoNuname, "u", "/")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	entries, err := root.ReadDir(context.Background())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len(entries) = %d, want 5", len(entries))
	}
	if calls != 3 {
		t.Fatalf("Treaddir issued %d times, want 3 (including the terminating empty batch)", calls)
	}
}

func TestWriteBoundedByMsize(t *testing.T) {
	// msize=4120 means writes are bounded at
	// msize-IOHDRSZ = 4096 bytes per Twrite.
	var sizes []int
	client, server := net.Pipe()
	newFakeServer(t, server, func(tag uint16, body wire.Body) (uint16, wire.Body) {
		switch m := body.(type) {
		case wire.Tversion:
			return versionOK(tag, m)
		case wire.Tattach:
			return tag, wire.Rattach{Qid: wire.Qid{Path: 1}}
		case wire.Twrite:
			sizes = append(sizes, len(m.Data))
			return tag, wire.Rwrite{Count: uint32(len(m.Data))}
		default:
			t.Errorf("unexpected request %T", m)
			return tag, wire.Rlerror{}
		}
	})
	c, err := Dial(context.Background(), client, Options{Msize: 4120})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	root, err := c.Attach(context.Background(), wire.NoNuname, "u", "/")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	buf := make([]byte, 5000)
	var written int
	for written < len(buf) {
		n, err := root.Write(context.Background(), uint64(written), buf[written:])
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n == 0 {
			t.Fatal("Write returned 0 with data remaining")
		}
		written += n
	}
	if len(sizes) != 2 || sizes[0] != 4096 || sizes[1] != 904 {
		t.Fatalf("Twrite sizes = %v, want [4096 904]", sizes)
	}
}

// TestCallCancelDuringDisconnect exercises the race between a
// context cancellation (which sends Tflush and then waits for its
// resolution) and the connection dropping while that Tflush is still
// unanswered. call must still return promptly with ctx.Err() instead
// of blocking forever on the original tag's reply channel.
func TestCallCancelDuringDisconnect(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		rd := transport.NewReader(server, transport.DefaultMsize)
		wr := transport.NewWriter(server, transport.DefaultMsize)
		frame, err := rd.ReadFrame()
		if err != nil {
			return
		}
		msg, err := wire.Unmarshal(frame)
		if err != nil || msg.Tag != wire.NoTag {
			return
		}
		tv := msg.Body.(wire.Tversion)
		buf := make([]byte, 64)
		wr.WriteFrame(buf, wire.NoTag, wire.Rversion{Msize: tv.Msize, Version: wire.Version})

		// Read the Tattach and never answer it.
		if _, err := rd.ReadFrame(); err != nil {
			return
		}
		// Read the Tflush the cancellation sends and vanish without
		// ever sending Rflush or the original Rattach.
		if _, err := rd.ReadFrame(); err != nil {
			return
		}
		server.Close()
	}()

	c, err := Dial(context.Background(), client, Options{Msize: 8192})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.Attach(ctx, wire.NoNuname, "u", "/")
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Attach succeeded, want context deadline error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Attach hung instead of returning after ctx cancellation raced a disconnect")
	}
}

func TestDisconnectFailsPendingCalls(t *testing.T) {
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		rd := transport.NewReader(server, transport.DefaultMsize)
		wr := transport.NewWriter(server, transport.DefaultMsize)
		frame, err := rd.ReadFrame()
		if err != nil {
			return
		}
		msg, err := wire.Unmarshal(frame)
		if err != nil || msg.Tag != wire.NoTag {
			return
		}
		tv := msg.Body.(wire.Tversion)
		buf := make([]byte, 64)
		wr.WriteFrame(buf, wire.NoTag, wire.Rversion{Msize: tv.Msize, Version: wire.Version})
		// Read the Tattach request and then vanish without replying.
		rd.ReadFrame()
		server.Close()
	}()

	c, err := Dial(context.Background(), client, Options{Msize: 8192})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	_, err = c.Attach(context.Background(), wire.NoNuname, "u", "/")
	if err == nil {
		t.Fatal("Attach succeeded after server vanished, want an error")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fake server goroutine never exited")
	}
}

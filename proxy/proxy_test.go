package proxy

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"aqwari.net/net/p9p/transport"
	"aqwari.net/net/p9p/wire"
)

func writeFrame(t *testing.T, wr *transport.Writer, tag uint16, body wire.Body) {
	t.Helper()
	buf := make([]byte, wire.HeaderLen+wire.Len(body))
	if err := wr.WriteFrame(buf, tag, body); err != nil {
		t.Fatalf("WriteFrame(%T): %v", body, err)
	}
}

func readFrame(t *testing.T, rd *transport.Reader) wire.Message {
	t.Helper()
	frame, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	msg, err := wire.Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return msg
}

// TestServeForwardsRequests drives a client and an upstream directly
// over net.Pipe and checks that Serve relays a full
// Tversion/Tattach/Tclunk exchange unchanged in both directions.
func TestServeForwardsRequests(t *testing.T) {
	upClient, upServer := net.Pipe()
	defer upServer.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		rd := transport.NewReader(upServer, transport.DefaultMsize)
		wr := transport.NewWriter(upServer, transport.DefaultMsize)

		msg := readFrameOrReturn(rd)
		if msg == nil {
			return
		}
		tv := msg.Body.(wire.Tversion)
		writeFrameOrReturn(wr, wire.NoTag, wire.Rversion{Msize: tv.Msize, Version: wire.Version})

		msg = readFrameOrReturn(rd)
		if msg == nil {
			return
		}
		ta, ok := msg.Body.(wire.Tattach)
		if !ok || ta.Fid != 5 {
			t.Errorf("upstream saw %#v, want Tattach{Fid: 5}", msg.Body)
		}
		writeFrameOrReturn(wr, msg.Tag, wire.Rattach{Qid: wire.Qid{Path: 1}})

		msg = readFrameOrReturn(rd)
		if msg == nil {
			return
		}
		if _, ok := msg.Body.(wire.Tclunk); !ok {
			t.Errorf("upstream saw %T, want Tclunk", msg.Body)
		}
		writeFrameOrReturn(wr, msg.Tag, wire.Rclunk{})
	}()

	dial := func(ctx context.Context) (net.Conn, error) { return upClient, nil }

	proxyClient, testClient := net.Pipe()
	proxyDone := make(chan error, 1)
	go func() { proxyDone <- Serve(context.Background(), proxyClient, dial, Options{}) }()

	crd := transport.NewReader(testClient, transport.DefaultMsize)
	cwr := transport.NewWriter(testClient, transport.DefaultMsize)

	writeFrame(t, cwr, wire.NoTag, wire.Tversion{Msize: transport.DefaultMsize, Version: wire.Version})
	if _, ok := readFrame(t, crd).Body.(wire.Rversion); !ok {
		t.Fatal("expected Rversion")
	}

	writeFrame(t, cwr, 1, wire.Tattach{Fid: 5, Uname: "glenda", Aname: "/"})
	ra, ok := readFrame(t, crd).Body.(wire.Rattach)
	if !ok || ra.Qid.Path != 1 {
		t.Fatalf("expected Rattach{Qid.Path: 1}, got %#v", ra)
	}

	writeFrame(t, cwr, 2, wire.Tclunk{Fid: 5})
	if _, ok := readFrame(t, crd).Body.(wire.Rclunk); !ok {
		t.Fatal("expected Rclunk")
	}

	testClient.Close()
	select {
	case <-proxyDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve never returned after client closed")
	}
	<-serverDone
}

// TestServeReconnectReplaysAttachAndDrainsInFlight exercises the
// reconnect path: the first upstream vanishes right after answering
// Tattach, the call in flight at that moment is synthesized as
// Rlerror{EIO} to the client, and a second upstream (returned by the
// next Dialer call) receives a replayed Tattach for the still-live fid
// before ordinary traffic resumes.
func TestServeReconnectReplaysAttachAndDrainsInFlight(t *testing.T) {
	aConn1, bConn1 := net.Pipe()
	aConn2, bConn2 := net.Pipe()

	var dialCount int32
	dial := func(ctx context.Context) (net.Conn, error) {
		if atomic.AddInt32(&dialCount, 1) == 1 {
			return aConn1, nil
		}
		return aConn2, nil
	}

	upstream1Done := make(chan struct{})
	go func() {
		defer close(upstream1Done)
		rd := transport.NewReader(bConn1, transport.DefaultMsize)
		wr := transport.NewWriter(bConn1, transport.DefaultMsize)

		msg := readFrameOrReturn(rd)
		if msg == nil {
			return
		}
		tv := msg.Body.(wire.Tversion)
		writeFrameOrReturn(wr, wire.NoTag, wire.Rversion{Msize: tv.Msize, Version: wire.Version})

		msg = readFrameOrReturn(rd)
		if msg == nil {
			return
		}
		if _, ok := msg.Body.(wire.Tattach); !ok {
			t.Errorf("upstream1 saw %T, want Tattach", msg.Body)
		}
		writeFrameOrReturn(wr, msg.Tag, wire.Rattach{Qid: wire.Qid{Path: 1}})

		// Vanish: no more replies, ever.
		bConn1.Close()
	}()

	upstream2Done := make(chan struct{})
	upstream2SawReplay := make(chan struct{})
	go func() {
		defer close(upstream2Done)
		rd := transport.NewReader(bConn2, transport.DefaultMsize)
		wr := transport.NewWriter(bConn2, transport.DefaultMsize)

		msg := readFrameOrReturn(rd)
		if msg == nil {
			return
		}
		tv := msg.Body.(wire.Tversion)
		writeFrameOrReturn(wr, wire.NoTag, wire.Rversion{Msize: tv.Msize, Version: wire.Version})

		msg = readFrameOrReturn(rd)
		if msg == nil {
			return
		}
		ta, ok := msg.Body.(wire.Tattach)
		if !ok || ta.Fid != 5 || msg.Tag != wire.NoTag {
			t.Errorf("upstream2 saw %#v, want replayed Tattach{Fid: 5} with NoTag", msg.Body)
		}
		writeFrameOrReturn(wr, msg.Tag, wire.Rattach{Qid: wire.Qid{Path: 1}})
		close(upstream2SawReplay)

		msg = readFrameOrReturn(rd)
		if msg == nil {
			return
		}
		if tc, ok := msg.Body.(wire.Tclunk); !ok || tc.Fid != 5 {
			t.Errorf("upstream2 saw %#v, want Tclunk{Fid: 5}", msg.Body)
		}
		writeFrameOrReturn(wr, msg.Tag, wire.Rclunk{})
	}()

	proxyClient, testClient := net.Pipe()
	proxyDone := make(chan error, 1)
	go func() { proxyDone <- Serve(context.Background(), proxyClient, dial, Options{}) }()

	crd := transport.NewReader(testClient, transport.DefaultMsize)
	cwr := transport.NewWriter(testClient, transport.DefaultMsize)

	writeFrame(t, cwr, wire.NoTag, wire.Tversion{Msize: transport.DefaultMsize, Version: wire.Version})
	if _, ok := readFrame(t, crd).Body.(wire.Rversion); !ok {
		t.Fatal("expected Rversion")
	}

	writeFrame(t, cwr, 1, wire.Tattach{Fid: 5, Uname: "glenda", Aname: "/"})
	if ra, ok := readFrame(t, crd).Body.(wire.Rattach); !ok || ra.Qid.Path != 1 {
		t.Fatalf("expected Rattach{Qid.Path: 1}, got unexpected body")
	}

	// upstream1 closes its side right after the attach reply; this
	// Twalk either fails to send or never gets an answer, and must
	// come back as a synthetic EIO once the proxy notices the loss.
	writeFrame(t, cwr, 2, wire.Twalk{Fid: 5, NewFid: 6, Wnames: []string{"x"}})
	rl, ok := readFrame(t, crd).Body.(wire.Rlerror)
	if !ok || wire.Errno(rl.Ecode) != wire.EIO {
		t.Fatalf("expected Rlerror{EIO} for the in-flight Twalk, got %#v", rl)
	}

	select {
	case <-upstream2SawReplay:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream2 never observed the replayed Tattach")
	}

	// Ordinary traffic resumes against the reconnected upstream.
	writeFrame(t, cwr, 3, wire.Tclunk{Fid: 5})
	if _, ok := readFrame(t, crd).Body.(wire.Rclunk); !ok {
		t.Fatal("expected Rclunk from the reconnected upstream")
	}

	testClient.Close()
	select {
	case <-proxyDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve never returned after client closed")
	}
	<-upstream1Done
	<-upstream2Done
}

func readFrameOrReturn(rd *transport.Reader) *wire.Message {
	frame, err := rd.ReadFrame()
	if err != nil {
		return nil
	}
	msg, err := wire.Unmarshal(frame)
	if err != nil {
		return nil
	}
	return &msg
}

func writeFrameOrReturn(wr *transport.Writer, tag uint16, body wire.Body) {
	buf := make([]byte, wire.HeaderLen+wire.Len(body))
	wr.WriteFrame(buf, tag, body)
}

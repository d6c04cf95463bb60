package server

import (
	"context"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"

	"aqwari.net/net/p9p/transport"
	"aqwari.net/net/p9p/wire"
)

// ResponseHandle is a one-shot, move-only handle to the reply slot
// for a single request. A Filesystem method running on a ServePool
// worker never sees a ResponseHandle directly (Filesystem stays
// synchronous, see filesystem.go); it exists purely inside the
// dispatcher, which uses it to guarantee at most one reply per
// request even if a handler panics. The dispatcher explicitly calls
// ensureSent after every job, whether the handler returned normally
// or the dispatcher recovered a panic from it.
type ResponseHandle struct {
	tag  uint16
	conn *poolConn
	sent int32 // atomic bool
}

// Send writes body as the reply to this handle's request. Only the
// first call does anything; later calls (including the dispatcher's
// own fallback) are no-ops.
func (h *ResponseHandle) Send(body wire.Body) {
	if !atomic.CompareAndSwapInt32(&h.sent, 0, 1) {
		return
	}
	h.conn.reply(h.tag, body)
}

func (h *ResponseHandle) ensureSent() {
	h.Send(wire.Rlerror{Ecode: uint32(wire.EIO)})
}

// poolConn is the per-connection state ServePool shares across its
// worker pool: a fid table (already safe for concurrent access, see
// fidtable.go) and a mutex-guarded write side, since responses may be
// emitted out of order by any worker.
type poolConn struct {
	id     xid.ID
	rwc    net.Conn
	wmu    sync.Mutex
	wr     *transport.Writer
	fids   *fidTable
	msize  uint32
	logger Logger

	mu       sync.Mutex
	inflight map[uint16]context.CancelFunc
}

func (c *poolConn) reply(tag uint16, body wire.Body) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	buf := make([]byte, wire.HeaderLen+wire.Len(body))
	c.wr.WriteFrame(buf, tag, body)
}

func (c *poolConn) trackCancel(tag uint16, cancel context.CancelFunc) {
	c.mu.Lock()
	c.inflight[tag] = cancel
	c.mu.Unlock()
}

func (c *poolConn) untrack(tag uint16) {
	c.mu.Lock()
	delete(c.inflight, tag)
	c.mu.Unlock()
}

func (c *poolConn) cancel(tag uint16) {
	c.mu.Lock()
	cancel, ok := c.inflight[tag]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

type job struct {
	ctx  context.Context
	conn *poolConn
	tag  uint16
	body wire.Body
}

// ServePool accepts connections on l and services requests with a
// fixed-size worker pool shared across every connection: each
// connection's reader goroutine decodes requests and enqueues them,
// but a worker (not the reader) calls into fs, so one slow request
// never blocks the reader from decoding the next one. Responses may
// be written out of order relative to requests, which is legal
// because tags (not arrival order) correlate request and response.
func ServePool(ctx context.Context, l net.Listener, fs Filesystem, opts Options) error {
	workers := opts.Workers
	if workers == 0 {
		workers = 8
	}
	m := newServerMetrics(opts.Metrics)
	jobs := make(chan job) // zero-capacity: a send blocks until a worker is free
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				runJob(j, fs, m)
			}
		}()
	}
	err := acceptLoop(l, opts.Logger, func(rwc net.Conn) {
		servePoolConn(ctx, rwc, fs, opts, jobs, m)
	})
	close(jobs)
	wg.Wait()
	return err
}

func runJob(j job, fs Filesystem, m *serverMetrics) {
	h := &ResponseHandle{tag: j.tag, conn: j.conn}
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			j.conn.logPanic(r, buf)
		}
		h.ensureSent()
		j.conn.untrack(j.tag)
	}()
	databuf := make([]byte, j.conn.ioBufSize())
	m.requestStart(j.body)
	resp := dispatch(j.ctx, fs, j.conn.fids, databuf, j.body)
	m.requestDone(j.body, resp)
	h.Send(resp)
}

func (c *poolConn) logPanic(r interface{}, stack []byte) {
	if c.logger != nil {
		c.logger.Printf("p9p: %s: panic serving request: %v\n%s", c.id, r, stack)
	}
}

func (c *poolConn) ioBufSize() uint32 { return c.msize }

func servePoolConn(ctx context.Context, rwc net.Conn, fs Filesystem, opts Options, jobs chan<- job, m *serverMetrics) {
	id := xid.New()
	opts.logf("p9p: %s: connection from %s", id, rwc.RemoteAddr())
	m.connOpened()
	defer func() {
		rwc.Close()
		m.connClosed()
	}()

	bootstrap := opts.maxMsize()
	rd := transport.NewReader(rwc, bootstrap)
	wr := transport.NewWriter(rwc, bootstrap)

	msize, err := negotiate(ctx, fs, rd, wr, opts.maxMsize())
	if err != nil {
		opts.logf("p9p: %s: version handshake failed: %v", id, err)
		return
	}

	conn := &poolConn{
		id:       id,
		rwc:      rwc,
		wr:       wr,
		fids:     newFidTable(),
		inflight: make(map[uint16]context.CancelFunc),
		msize:    msize,
		logger:   opts.Logger,
	}

	for {
		frame, err := rd.ReadFrame()
		if err != nil {
			if !isEOF(err) {
				opts.logf("p9p: %s: read error: %v", id, err)
			}
			return
		}
		msg, err := wire.Unmarshal(frame)
		if err != nil {
			opts.logf("p9p: %s: malformed message: %v", id, err)
			return
		}
		if _, ok := msg.Body.(wire.Tversion); ok {
			opts.logf("p9p: %s: late Tversion", id)
			return
		}
		if tf, ok := msg.Body.(wire.Tflush); ok {
			conn.cancel(tf.Oldtag)
			conn.reply(msg.Tag, wire.Rflush{})
			continue
		}

		body := wire.Clone(msg.Body)
		jctx, cancel := context.WithCancel(ctx)
		conn.trackCancel(msg.Tag, cancel)
		select {
		case jobs <- job{ctx: jctx, conn: conn, tag: msg.Tag, body: body}:
		case <-ctx.Done():
			cancel()
			conn.untrack(msg.Tag)
			return
		}
	}
}

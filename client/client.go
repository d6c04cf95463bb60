// Package client implements a 9P2000.L client: version/attach
// negotiation, fid and tag allocation, and the request/reply
// machinery needed to drive a remote file tree over any
// io.ReadWriteCloser transport.
//
// The concurrency model follows this module's existing client
// convention: a single writer, serialized behind one mutex, and a
// dedicated read-worker goroutine that demultiplexes replies onto
// per-tag channels by their tag. Any number of goroutines may issue
// requests on a Client concurrently.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"aqwari.net/net/p9p/internal/idpool"
	"aqwari.net/net/p9p/internal/syncmap"
	"aqwari.net/net/p9p/transport"
	"aqwari.net/net/p9p/wire"
)

// Logger is satisfied by *log.Logger; a Client with a nil Logger
// does not log.
type Logger interface {
	Printf(format string, v ...interface{})
}

// ErrClosed is returned by Client operations still waiting for a
// reply when the caller closes the Client. If the connection is
// instead lost to a read or decode error, waiting operations fail
// with that error.
var ErrClosed = errors.New("client: connection closed")

// ErrFidsExhausted is returned by operations that need to allocate a
// new fid (Attach, Walk, ...) when all 2^32-1 usable fids are in use.
var ErrFidsExhausted = errors.New("client: fid pool exhausted")

// ErrTagsExhausted is returned when every one of the 65535 usable
// tags is associated with an in-flight request.
var ErrTagsExhausted = errors.New("client: tag pool exhausted")

type reply struct {
	body wire.Body
	err  error
}

// Client is a connected 9P2000.L session. Create one with Dial.
type Client struct {
	rwc   io.ReadWriteCloser
	msize uint32
	log   Logger
	m     *metrics

	wmu sync.Mutex // serializes writes to wr
	wr  *transport.Writer
	rd  *transport.Reader

	tags     *idpool.Pool
	fids     *idpool.Pool
	inflight *syncmap.Map[uint16, chan reply]

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  atomic.Value // error
}

// Options configures Dial.
type Options struct {
	// Msize is the maximum message size this client proposes during
	// version negotiation. If zero, transport.DefaultMsize is used.
	Msize uint32
	// Logger receives diagnostic messages about reconnect-worthy
	// conditions; nil disables logging.
	Logger Logger
	// Metrics optionally registers Prometheus counters and gauges
	// against reg. A nil Registerer disables metrics entirely.
	Metrics Registerer
}

// Dial negotiates a 9P2000.L session over rwc and returns a ready
// Client. Dial takes ownership of rwc: Client.Close closes it.
func Dial(ctx context.Context, rwc io.ReadWriteCloser, opts Options) (*Client, error) {
	msize := opts.Msize
	if msize == 0 {
		msize = transport.DefaultMsize
	}
	if msize < wire.MinMsize {
		return nil, fmt.Errorf("client: msize %d below minimum %d", msize, wire.MinMsize)
	}
	c := &Client{
		rwc:      rwc,
		msize:    msize,
		log:      opts.Logger,
		m:        newMetrics(opts.Metrics),
		wr:       transport.NewWriter(rwc, msize),
		rd:       transport.NewReader(rwc, msize),
		tags:     idpool.New(uint32(wire.NoTag), uint32(wire.NoTag)),
		fids:     idpool.New(wire.NoFid, wire.NoFid),
		inflight: syncmap.New[uint16, chan reply](),
		closed:   make(chan struct{}),
	}
	if err := c.negotiate(ctx, msize); err != nil {
		rwc.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) negotiate(ctx context.Context, msize uint32) error {
	body, err := c.callLocked(ctx, wire.NoTag, wire.Tversion{Msize: msize, Version: wire.Version})
	if err != nil {
		return err
	}
	rv, ok := body.(wire.Rversion)
	if !ok {
		return fmt.Errorf("client: unexpected reply %T to Tversion", body)
	}
	if rv.Version != wire.Version {
		return fmt.Errorf("client: server negotiated unsupported version %q", rv.Version)
	}
	if rv.Msize > msize {
		return fmt.Errorf("client: server grew msize from %d to %d", msize, rv.Msize)
	}
	c.msize = rv.Msize
	c.wr.SetMsize(rv.Msize)
	c.rd.SetMsize(rv.Msize)
	return nil
}

// callLocked performs the Tversion handshake, which uses the
// reserved NOTAG value instead of an allocated tag and therefore
// bypasses the normal tag pool.
func (c *Client) callLocked(ctx context.Context, tag uint16, body wire.Body) (wire.Body, error) {
	ch := make(chan reply, 1)
	c.inflight.Put(tag, ch)
	defer c.inflight.Del(tag)

	if err := c.writeFrame(tag, body); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.body, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, c.loadCloseErr()
	}
}

func (c *Client) writeFrame(tag uint16, body wire.Body) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	buf := make([]byte, wire.HeaderLen+wire.Len(body))
	if err := c.wr.WriteFrame(buf, tag, body); err != nil {
		return err
	}
	return nil
}

// call allocates a tag, sends body, and waits for the matching reply
// (or ctx cancellation, or connection close). On context cancellation
// it sends Tflush for the old tag before giving up, per the protocol's
// flush discipline.
func (c *Client) call(ctx context.Context, body wire.Body) (wire.Body, error) {
	tag, ok := c.tags.Get()
	if !ok {
		return nil, ErrTagsExhausted
	}
	defer c.tags.Free(tag)

	ch := make(chan reply, 1)
	c.inflight.Put(uint16(tag), ch)
	defer c.inflight.Del(uint16(tag))

	start := c.m.requestStart(body)
	if err := c.writeFrame(uint16(tag), body); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		c.m.requestDone(start, body, r.err)
		return r.body, r.err
	case <-ctx.Done():
		c.flush(uint16(tag))
		// The flush guarantees exactly one more reply for this tag,
		// but only while the connection stays up: if it drops while
		// flush is waiting on its own Rflush, nothing will ever write
		// to ch again, so re-check c.closed here too instead of
		// blocking on ch unconditionally.
		select {
		case <-ch:
		case <-c.closed:
		}
		c.m.requestDone(start, body, ctx.Err())
		return nil, ctx.Err()
	case <-c.closed:
		return nil, c.loadCloseErr()
	}
}

// flush sends Tflush for oldtag and waits for its own Rflush,
// ignoring the result: its only purpose is to synchronize with the
// server so oldtag's reply channel receives exactly one more value.
func (c *Client) flush(oldtag uint16) {
	tag, ok := c.tags.Get()
	if !ok {
		return
	}
	defer c.tags.Free(tag)
	ch := make(chan reply, 1)
	c.inflight.Put(uint16(tag), ch)
	defer c.inflight.Del(uint16(tag))
	if err := c.writeFrame(uint16(tag), wire.Tflush{Oldtag: oldtag}); err != nil {
		return
	}
	select {
	case <-ch:
	case <-c.closed:
	}
}

func (c *Client) readLoop() {
	for {
		frame, err := c.rd.ReadFrame()
		if err != nil {
			c.shutdown(err)
			return
		}
		msg, err := wire.Unmarshal(frame)
		if err != nil {
			c.shutdown(err)
			return
		}
		body := wire.Clone(msg.Body)
		ch, ok := c.inflight.Get(msg.Tag)
		if !ok {
			// reply for a tag nobody is waiting on (stale flush, or a
			// protocol violation by the server); drop it.
			continue
		}
		if le, ok := body.(wire.Rlerror); ok {
			ch <- reply{err: wire.Errno(le.Ecode)}
			continue
		}
		ch <- reply{body: body}
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		if err == nil {
			err = ErrClosed
		}
		c.closeErr.Store(err)
		close(c.closed)
		c.rwc.Close()
		if c.log != nil {
			c.log.Printf("client: connection closed: %v", err)
		}
	})
}

func (c *Client) loadCloseErr() error {
	if v := c.closeErr.Load(); v != nil {
		return v.(error)
	}
	return ErrClosed
}

// Close terminates the connection. Pending requests fail with
// ErrClosed.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// Msize returns the negotiated maximum message size.
func (c *Client) Msize() uint32 { return c.msize }

func (c *Client) allocFid() (uint32, error) {
	fid, ok := c.fids.Get()
	if !ok {
		return 0, ErrFidsExhausted
	}
	return fid, nil
}

// Attach establishes a new session as uname (with the given numeric
// uid, or wire.NoNuname to rely on uname alone) on the file tree
// named aname, returning a Fid bound to the tree's root.
func (c *Client) Attach(ctx context.Context, nuname uint32, uname, aname string) (*Fid, error) {
	fid, err := c.allocFid()
	if err != nil {
		return nil, err
	}
	body, err := c.call(ctx, wire.Tattach{
		Fid: fid, Afid: wire.NoFid, Uname: uname, Aname: aname, Nuname: nuname,
	})
	if err != nil {
		c.fids.Free(fid)
		return nil, err
	}
	ra, ok := body.(wire.Rattach)
	if !ok {
		c.fids.Free(fid)
		return nil, unexpected(body)
	}
	return newFid(c, fid, ra.Qid), nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"time"

	"aqwari.net/retry"
	"github.com/rs/xid"

	"aqwari.net/net/p9p/transport"
	"aqwari.net/net/p9p/wire"
)

// Logger is satisfied by *log.Logger; a nil Logger disables logging.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Options configures Serve and ServePool.
type Options struct {
	// MaxMsize bounds the msize a client may negotiate; the server
	// clamps the client's proposal to [512, MaxMsize]. Zero selects
	// transport.DefaultMsize.
	MaxMsize uint32
	// Logger receives one line per accepted connection and per
	// connection-ending error; nil disables logging.
	Logger Logger
	// Metrics optionally registers Prometheus counters against a
	// caller-supplied registry; nil disables metrics.
	Metrics Registerer
	// Workers is the number of goroutines ServePool runs requests
	// on, shared by all connections. Zero selects 8.
	Workers int
}

func (o Options) maxMsize() uint32 {
	if o.MaxMsize == 0 {
		return transport.DefaultMsize
	}
	return o.MaxMsize
}

func (o Options) logf(format string, v ...interface{}) {
	if o.Logger != nil {
		o.Logger.Printf(format, v...)
	}
}

// acceptLoop runs fn for every connection l accepts, retrying
// temporary Accept errors with exponential backoff the way this
// module's earlier 9P server did (its own accept loop used
// aqwari.net/retry.Exponential around a bare time.Sleep). A permanent
// Accept error (typically the listener closing) ends the loop.
func acceptLoop(l net.Listener, logger Logger, fn func(net.Conn)) error {
	type temporary interface {
		Temporary() bool
	}
	backoff := retry.Exponential(5 * time.Millisecond).Max(time.Second)
	try := 0
	for {
		rwc, err := l.Accept()
		if err != nil {
			if te, ok := err.(temporary); ok && te.Temporary() {
				try++
				if logger != nil {
					logger.Printf("p9p: accept error: %v; retrying in %v", err, backoff(try))
				}
				time.Sleep(backoff(try))
				continue
			}
			return err
		}
		try = 0
		go fn(rwc)
	}
}

// negotiate performs the Tversion handshake common to Serve and
// ServePool: it rejects any version but 9P2000.L and clamps msize to
// [512, maxMsize], consulting fs.Version if fs implements
// VersionNegotiator.
func negotiate(ctx context.Context, fs Filesystem, rd *transport.Reader, wr *transport.Writer, maxMsize uint32) (uint32, error) {
	frame, err := rd.ReadFrame()
	if err != nil {
		return 0, fmt.Errorf("server: reading Tversion: %w", err)
	}
	msg, err := wire.Unmarshal(frame)
	if err != nil {
		return 0, fmt.Errorf("server: decoding Tversion: %w", err)
	}
	tv, ok := msg.Body.(wire.Tversion)
	if !ok {
		return 0, fmt.Errorf("server: expected Tversion, got %T", msg.Body)
	}

	msize := tv.Msize
	if msize > maxMsize {
		msize = maxMsize
	}
	if msize < 512 {
		msize = 512
	}
	version := wire.Version
	if tv.Version != wire.Version {
		// No handler convention exists for 9P2000/9P2000.u: report
		// "unknown", the same refusal 9P servers have always used,
		// and let the caller close the connection.
		version = "unknown"
	}
	if vn, ok := fs.(VersionNegotiator); ok && version == wire.Version {
		negotiated, err := vn.Version(ctx, msize, version)
		if err != nil {
			return 0, err
		}
		if negotiated < 512 {
			negotiated = 512
		}
		msize = negotiated
	}

	buf := make([]byte, wire.HeaderLen+wire.Len(wire.Rversion{Version: version, Msize: msize}))
	if err := wr.WriteFrame(buf, msg.Tag, wire.Rversion{Msize: msize, Version: version}); err != nil {
		return 0, fmt.Errorf("server: writing Rversion: %w", err)
	}
	if version != wire.Version {
		return 0, fmt.Errorf("server: client requested unsupported version %q", tv.Version)
	}
	rd.SetMsize(msize)
	wr.SetMsize(msize)
	return msize, nil
}

// Serve accepts connections on l and services each sequentially
// against fs: one goroutine per connection, no concurrency within a
// connection. A slow Filesystem method stalls every other pending
// request on that connection; use ServePool when that is
// unacceptable.
func Serve(ctx context.Context, l net.Listener, fs Filesystem, opts Options) error {
	m := newServerMetrics(opts.Metrics)
	return acceptLoop(l, opts.Logger, func(rwc net.Conn) {
		serveOneConn(ctx, rwc, fs, opts, m)
	})
}

func serveOneConn(ctx context.Context, rwc net.Conn, fs Filesystem, opts Options, m *serverMetrics) {
	id := xid.New()
	opts.logf("p9p: %s: connection from %s", id, rwc.RemoteAddr())
	m.connOpened()
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			opts.logf("p9p: %s: panic serving %s: %v\n%s", id, rwc.RemoteAddr(), r, buf)
		}
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

	fids := newFidTable()
	databuf := make([]byte, msize)

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
		var resp wire.Body
		if _, ok := msg.Body.(wire.Tflush); ok {
			// Strictly sequential dispatch means the request a
			// Tflush names has already completed (or never
			// existed); there is nothing to cancel.
			resp = wire.Rflush{}
		} else {
			m.requestStart(msg.Body)
			resp = dispatch(ctx, fs, fids, databuf, msg.Body)
			m.requestDone(msg.Body, resp)
		}
		buf := make([]byte, wire.HeaderLen+wire.Len(resp))
		if err := wr.WriteFrame(buf, msg.Tag, resp); err != nil {
			opts.logf("p9p: %s: write error: %v", id, err)
			return
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

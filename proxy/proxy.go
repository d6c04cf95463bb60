// Package proxy implements a transparent reconnecting 9P2000.L proxy:
// it sits between one client connection and one upstream server
// connection, observing messages in both directions to maintain a
// shadow model of the client's live attaches. When the upstream
// connection is lost, the proxy reconnects and replays enough state
// (Tattach for every live fid) that the client can keep using its
// existing fids without re-attaching itself; only the calls genuinely
// in flight at the moment of loss are failed, with a synthesized
// Rlerror so their callers unblock instead of hanging.
//
// The proxy never changes the wire protocol its client sees: from the
// client's point of view an upstream hiccup looks like a handful of
// calls failing with EIO, not a connection reset.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"aqwari.net/retry"

	"aqwari.net/net/p9p/transport"
	"aqwari.net/net/p9p/wire"
)

// Logger is satisfied by *log.Logger; a Proxy with a nil Logger does
// not log.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Dialer connects to the upstream 9P server. It is called once per
// connection attempt, including every reconnect.
type Dialer func(ctx context.Context) (net.Conn, error)

// Options configures Serve.
type Options struct {
	// Msize sizes the proxy's frame buffers on both sides until the
	// version phase completes. The client's Tversion is forwarded
	// upstream unchanged, so the negotiated msize is whatever the
	// upstream's Rversion returns. If zero, transport.DefaultMsize is
	// used.
	Msize uint32
	// Logger receives diagnostics about reconnect attempts and
	// replay failures; nil disables logging.
	Logger Logger
	// Metrics optionally registers Prometheus counters for
	// reconnect attempts and replayed fids.
	Metrics Registerer
}

// ErrVersionMismatch is returned (and logged) when a reconnected
// upstream offers a smaller msize or a different version than the
// connection was originally negotiated with. This proxy refuses lossy
// re-negotiation: the client connection is closed rather than quietly
// downgraded to a msize the client may not expect.
var ErrVersionMismatch = errors.New("proxy: reconnected upstream offered a smaller msize or different version")

// ErrReplayFailed is returned (and logged) when re-Tattach of a live
// fid fails against the reconnected upstream. This proxy aborts the
// entire client connection rather than continue with a
// partially-replayed fid set.
var ErrReplayFailed = errors.New("proxy: fid replay failed after reconnect")

// Serve runs a proxy for a single client connection: client is the
// already-accepted connection from a 9P2000.L client, and dial
// connects (and reconnects) to the upstream server. Serve blocks
// until the client connection closes or an unrecoverable error
// occurs (version mismatch, or replay failure, both of which also
// close client). It always closes client before returning.
func Serve(ctx context.Context, client net.Conn, dial Dialer, opts Options) error {
	msize := opts.Msize
	if msize == 0 {
		msize = transport.DefaultMsize
	}
	p := &proxy{
		client:  client,
		dial:    dial,
		log:     opts.Logger,
		m:       newMetrics(opts.Metrics),
		bufsize: msize,
		shadow:  newShadow(),
	}
	defer client.Close()
	return p.run(ctx)
}

type proxy struct {
	client  net.Conn
	dial    Dialer
	log     Logger
	m       *metrics
	bufsize uint32

	clientWmu sync.Mutex
	clientWr  *transport.Writer
	clientRd  *transport.Reader

	shadow *shadow

	// upstream state, guarded by mu. Swapped wholesale on reconnect;
	// readers/writers of the forward and reverse loops re-read it
	// after any operation fails.
	mu           sync.Mutex
	up           *upstream
	reconnecting bool
	reconnected  chan struct{}

	version string
	msize   uint32 // authoritative negotiated size, fixed after version phase
}

type upstream struct {
	conn net.Conn
	rd   *transport.Reader
	wr   *transport.Writer
	gen  uint64
}

func (p *proxy) logf(format string, v ...interface{}) {
	if p.log != nil {
		p.log.Printf(format, v...)
	}
}

func (p *proxy) run(ctx context.Context) error {
	p.clientRd = transport.NewReader(p.client, p.bufsize)
	p.clientWr = transport.NewWriter(p.client, p.bufsize)

	if err := p.versionPhase(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- p.forward(ctx) }()
	go func() { errCh <- p.reverse(ctx) }()
	err := <-errCh
	p.client.Close()
	if up := p.currentUpstream(); up != nil {
		up.conn.Close()
	}
	<-errCh
	return err
}

// versionPhase reads the client's Tversion, then connects upstream
// (retrying indefinitely, since there is no client-visible session
// to fail yet) and forwards the negotiation, finally relaying
// Rversion back to the client. The negotiated (msize, version) become
// authoritative for the lifetime of the connection: a later
// reconnect that can't match them aborts the connection instead of
// silently adopting a smaller msize.
func (p *proxy) versionPhase(ctx context.Context) error {
	frame, err := p.clientRd.ReadFrame()
	if err != nil {
		return fmt.Errorf("proxy: reading client Tversion: %w", err)
	}
	msg, err := wire.Unmarshal(frame)
	if err != nil {
		return fmt.Errorf("proxy: decoding client Tversion: %w", err)
	}
	tv, ok := msg.Body.(wire.Tversion)
	if !ok {
		return fmt.Errorf("proxy: expected Tversion from client, got %T", msg.Body)
	}

	up, rv, err := p.dialAndNegotiate(ctx, tv)
	if err != nil {
		return err
	}
	p.msize = rv.Msize
	p.version = rv.Version
	p.clientRd.SetMsize(p.msize)
	p.clientWr.SetMsize(p.msize)

	p.mu.Lock()
	p.up = up
	p.mu.Unlock()

	return p.writeToClient(msg.Tag, rv)
}

// dialAndNegotiate connects to upstream and performs the Tversion
// exchange. A failed dial or a failed read of the Rversion is retried
// on a fresh connection with exponential backoff capped at one second
// between attempts; a failed Tversion write or an undecodable or
// unexpected reply is returned as an error.
func (p *proxy) dialAndNegotiate(ctx context.Context, tv wire.Tversion) (*upstream, wire.Rversion, error) {
	backoff := retry.Exponential(100 * time.Millisecond).Max(time.Second)
	for attempt := 1; ; attempt++ {
		conn, err := p.dial(ctx)
		if err != nil {
			p.logf("proxy: dial upstream failed (attempt %d): %v", attempt, err)
			p.m.reconnectAttempt(false)
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return nil, wire.Rversion{}, ctx.Err()
			}
			continue
		}
		rd := transport.NewReader(conn, p.bufsize)
		wr := transport.NewWriter(conn, p.bufsize)
		buf := make([]byte, wire.HeaderLen+wire.Len(tv))
		if err := wr.WriteFrame(buf, wire.NoTag, tv); err != nil {
			conn.Close()
			return nil, wire.Rversion{}, fmt.Errorf("proxy: sending upstream Tversion: %w", err)
		}
		frame, err := rd.ReadFrame()
		if err != nil {
			conn.Close()
			p.logf("proxy: upstream Tversion round-trip failed (attempt %d): %v", attempt, err)
			p.m.reconnectAttempt(false)
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return nil, wire.Rversion{}, ctx.Err()
			}
			continue
		}
		msg, err := wire.Unmarshal(frame)
		if err != nil {
			conn.Close()
			return nil, wire.Rversion{}, fmt.Errorf("proxy: decoding upstream Rversion: %w", err)
		}
		rv, ok := msg.Body.(wire.Rversion)
		if !ok {
			conn.Close()
			return nil, wire.Rversion{}, fmt.Errorf("proxy: expected Rversion from upstream, got %T", msg.Body)
		}
		p.m.reconnectAttempt(true)
		return &upstream{conn: conn, rd: rd, wr: wr}, rv, nil
	}
}

func (p *proxy) currentUpstream() *upstream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.up
}

func (p *proxy) writeToClient(tag uint16, body wire.Body) error {
	p.clientWmu.Lock()
	defer p.clientWmu.Unlock()
	buf := make([]byte, wire.HeaderLen+wire.Len(body))
	return p.clientWr.WriteFrame(buf, tag, body)
}

func (p *proxy) writeToUpstream(up *upstream, tag uint16, body wire.Body) error {
	buf := make([]byte, wire.HeaderLen+wire.Len(body))
	return up.wr.WriteFrame(buf, tag, body)
}

// forward reads requests from the client and relays them upstream,
// recording the shadow-state intent of each before it is sent. A
// write failure against upstream triggers a reconnect; the request
// that failed to send is resolved by the synthetic-EIO drain inside
// reconnect itself, since its tag is already recorded as pending.
func (p *proxy) forward(ctx context.Context) error {
	for {
		frame, err := p.clientRd.ReadFrame()
		if err != nil {
			return err
		}
		msg, err := wire.Unmarshal(frame)
		if err != nil {
			return err
		}
		body := wire.Clone(msg.Body)
		p.shadow.onRequest(msg.Tag, body)

		up := p.currentUpstream()
		if err := p.writeToUpstream(up, msg.Tag, body); err != nil {
			up = p.reconnect(ctx, up.gen)
			if up == nil {
				return fmt.Errorf("proxy: reconnect failed, closing connection")
			}
			// The message that failed to send never reached any
			// upstream. If the other goroutine's reconnect drained
			// the pending tags before this one was recorded, drain
			// it here; either way the client gets one synthetic
			// Rlerror for it. Do not resend it.
			p.shadow.mu.Lock()
			_, stillPending := p.shadow.pending[msg.Tag]
			delete(p.shadow.pending, msg.Tag)
			p.shadow.mu.Unlock()
			if stillPending {
				if err := p.writeToClient(msg.Tag, wire.Rlerror{Ecode: uint32(wire.EIO)}); err != nil {
					return err
				}
			}
		}
	}
}

// reverse reads responses from upstream and relays them to the
// client, resolving shadow-state intent for each. A read failure
// triggers a reconnect and resumes once it completes.
func (p *proxy) reverse(ctx context.Context) error {
	up := p.currentUpstream()
	for {
		frame, err := up.rd.ReadFrame()
		if err != nil {
			up = p.reconnect(ctx, up.gen)
			if up == nil {
				return fmt.Errorf("proxy: reconnect failed, closing connection")
			}
			continue
		}
		msg, err := wire.Unmarshal(frame)
		if err != nil {
			up = p.reconnect(ctx, up.gen)
			if up == nil {
				return fmt.Errorf("proxy: reconnect failed, closing connection")
			}
			continue
		}
		body := wire.Clone(msg.Body)
		p.shadow.onResponse(msg.Tag, body)
		if err := p.writeToClient(msg.Tag, body); err != nil {
			return err
		}
	}
}

// reconnect is called by whichever of forward/reverse first observes
// upstream loss (identified by failedGen, the generation of the
// upstream it was using). Concurrent callers for the same generation
// coalesce onto a single reconnect attempt; a caller for a
// newer generation (the other goroutine already reconnected) returns
// immediately with the current upstream. A nil return means the
// connection could not be recovered and must be torn down.
func (p *proxy) reconnect(ctx context.Context, failedGen uint64) *upstream {
	p.mu.Lock()
	if p.up.gen != failedGen {
		u := p.up
		p.mu.Unlock()
		return u
	}
	if p.reconnecting {
		ch := p.reconnected
		p.mu.Unlock()
		<-ch
		return p.currentUpstream()
	}
	p.reconnecting = true
	done := make(chan struct{})
	p.reconnected = done
	oldGen := p.up.gen
	oldConn := p.up.conn
	p.mu.Unlock()

	// Close the dead upstream so that whichever of forward/reverse
	// didn't win the race to reconnect unblocks from its pending
	// read or write promptly instead of waiting out the OS's own
	// timeout.
	oldConn.Close()

	p.drainInflight()

	up, err := p.reconnectUpstream(ctx, oldGen)
	if err != nil {
		p.logf("proxy: reconnect aborted: %v", err)
		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()
		close(done)
		return nil
	}

	p.mu.Lock()
	p.up = up
	p.reconnecting = false
	p.mu.Unlock()
	close(done)
	return up
}

// drainInflight synthesizes Rlerror{EIO} to the client for every tag
// the shadow state still considers pending: these are calls that were
// in flight to the old upstream and will never get a real reply.
func (p *proxy) drainInflight() {
	tags := p.shadow.drainPending()
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, tag := range tags {
		if err := p.writeToClient(tag, wire.Rlerror{Ecode: uint32(wire.EIO)}); err != nil {
			p.logf("proxy: failed to drain tag %d to client: %v", tag, err)
		}
	}
}

// reconnectUpstream dials a new upstream, renegotiates version, and
// replays the live attach set. It returns an error (never partial
// success) if renegotiation regresses msize/version or any replay
// Tattach fails; both cases abort the whole client connection rather
// than leave it running against a downgraded or partially-replayed
// upstream.
func (p *proxy) reconnectUpstream(ctx context.Context, oldGen uint64) (*upstream, error) {
	up, rv, err := p.dialAndNegotiate(ctx, wire.Tversion{Msize: p.msize, Version: p.version})
	if err != nil {
		return nil, err
	}
	up.gen = oldGen + 1
	if rv.Msize < p.msize || rv.Version != p.version {
		up.conn.Close()
		return nil, fmt.Errorf("%w: wanted (%d, %s), got (%d, %s)",
			ErrVersionMismatch, p.msize, p.version, rv.Msize, rv.Version)
	}

	if err := p.replayAttaches(up); err != nil {
		up.conn.Close()
		return nil, err
	}
	return up, nil
}

// replayAttaches re-sends Tattach, one at a time and waiting for each
// Rattach before moving on, for every fid the shadow state believes
// is still live. Serial replay (rather than a concurrent fan-out)
// matches this module's existing assumption that a filesystem's
// attach handler need not be safe for concurrent calls sharing an
// aname.
func (p *proxy) replayAttaches(up *upstream) error {
	for _, att := range p.shadow.attachSnapshot() {
		if err := p.writeToUpstream(up, wire.NoTag, att); err != nil {
			return fmt.Errorf("%w: fid %d: %v", ErrReplayFailed, att.Fid, err)
		}
		frame, err := up.rd.ReadFrame()
		if err != nil {
			return fmt.Errorf("%w: fid %d: %v", ErrReplayFailed, att.Fid, err)
		}
		msg, err := wire.Unmarshal(frame)
		if err != nil {
			return fmt.Errorf("%w: fid %d: %v", ErrReplayFailed, att.Fid, err)
		}
		if _, ok := msg.Body.(wire.Rattach); !ok {
			return fmt.Errorf("%w: fid %d: upstream replied %T", ErrReplayFailed, att.Fid, msg.Body)
		}
		p.m.fidReplayed()
	}
	return nil
}

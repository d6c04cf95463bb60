package proxy

import (
	"sync"

	"aqwari.net/net/p9p/wire"
)

// intentKind classifies what a pending request should do to the
// shadow's attach set once its response is observed.
type intentKind int

const (
	intentNone intentKind = iota
	intentAttach
	intentRemove
)

type pendingIntent struct {
	kind   intentKind
	fid    uint32
	attach wire.Tattach
}

// shadow tracks the subset of client state the proxy must reconstruct
// on the other side of a reconnect: which fids are attached, and
// which in-flight requests haven't been resolved yet. It is updated
// from both the forward and reverse goroutines, so every method takes
// the same mutex: exactly one lock acquisition per message, in
// either direction.
type shadow struct {
	mu         sync.Mutex
	attachFids map[uint32]wire.Tattach
	pending    map[uint16]pendingIntent
}

func newShadow() *shadow {
	return &shadow{
		attachFids: make(map[uint32]wire.Tattach),
		pending:    make(map[uint16]pendingIntent),
	}
}

// onRequest records tag's intent as body crosses from client to
// upstream. It must be called before the request is forwarded, so
// that a write failure right after still leaves the tag recorded for
// drainPending to resolve.
func (s *shadow) onRequest(tag uint16, body wire.Body) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch m := body.(type) {
	case wire.Tattach:
		s.pending[tag] = pendingIntent{kind: intentAttach, fid: m.Fid, attach: m}
	case wire.Tclunk:
		s.pending[tag] = pendingIntent{kind: intentRemove, fid: m.Fid}
	case wire.Tremove:
		s.pending[tag] = pendingIntent{kind: intentRemove, fid: m.Fid}
	default:
		s.pending[tag] = pendingIntent{kind: intentNone}
	}
}

// onResponse resolves tag's recorded intent as body crosses from
// upstream back to the client: Tattach only commits to attachFids on
// a successful Rattach, while Tclunk/Tremove remove the mapping
// regardless of outcome, matching this module's existing Tremove
// convention: a fid is gone once the client asked to remove it, even
// if the server answered with an error.
func (s *shadow) onResponse(tag uint16, body wire.Body) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[tag]
	if !ok {
		return
	}
	delete(s.pending, tag)
	switch entry.kind {
	case intentAttach:
		if _, ok := body.(wire.Rattach); ok {
			s.attachFids[entry.fid] = entry.attach
		}
	case intentRemove:
		delete(s.attachFids, entry.fid)
	}
}

// drainPending clears every pending tag and returns them, so the
// caller can synthesize an Rlerror for each. A Tattach whose response
// was never observed is drained without ever having been committed to
// attachFids.
func (s *shadow) drainPending() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]uint16, 0, len(s.pending))
	for tag := range s.pending {
		tags = append(tags, tag)
	}
	s.pending = make(map[uint16]pendingIntent)
	return tags
}

// attachSnapshot returns every live attach, ordered by fid so replay
// is deterministic across runs (the wire protocol itself doesn't
// care about the order, but reproducible logs and tests do).
func (s *shadow) attachSnapshot() []wire.Tattach {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Tattach, 0, len(s.attachFids))
	for _, att := range s.attachFids {
		out = append(out, att)
	}
	sortAttaches(out)
	return out
}

func sortAttaches(atts []wire.Tattach) {
	// Small N in practice (live attach count per connection); a
	// simple insertion sort is enough and stays obviously correct.
	for i := 1; i < len(atts); i++ {
		for j := i; j > 0 && atts[j].Fid < atts[j-1].Fid; j-- {
			atts[j], atts[j-1] = atts[j-1], atts[j]
		}
	}
}

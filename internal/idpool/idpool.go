// Package idpool manages pools of integer identifiers, used for fid
// and tag allocation by the client.
//
// It is adapted from the fid/tag pool used by the older 9P2000
// client in this module's history: identifiers are handed out in
// ascending order from a monotonic cursor, and freed identifiers
// below the cursor are tracked in a sorted slice so the cursor can be
// walked back down when a contiguous run of them is released. This
// keeps Get allocation-free and mostly lock-free in the common case
// where fids/tags are freed in roughly the same order they were
// acquired, at the cost of a pool that can report "full" before every
// slot is reclaimed under pathological free patterns.
package idpool

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Pool allocates uint32 identifiers below a ceiling. The zero value
// has a ceiling of 0 and hands out no identifiers; create one with
// New.
type Pool struct {
	ceil uint32
	skip uint32 // id that is never handed out, e.g. NOTAG or NOFID

	next uint32

	mu      sync.Mutex
	clunked []uint32
}

// New returns a Pool that allocates ids in [0, ceil), never returning
// skip even if it falls in that range.
func New(ceil, skip uint32) *Pool {
	return &Pool{ceil: ceil, skip: skip}
}

// Get returns a free identifier, or ok=false if the pool is
// exhausted.
func (p *Pool) Get() (id uint32, ok bool) {
	for {
		cur := atomic.LoadUint32(&p.next)
		if cur >= p.ceil {
			return 0, false
		}
		if !atomic.CompareAndSwapUint32(&p.next, cur, cur+1) {
			continue
		}
		if cur == p.skip {
			continue
		}
		return cur, true
	}
}

// Free releases id for reuse. Free must be called at most once for
// any id returned by Get.
func (p *Pool) Free(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !atomic.CompareAndSwapUint32(&p.next, id+1, id) {
		p.clunked = append(p.clunked, id)
		sort.Slice(p.clunked, func(i, j int) bool { return p.clunked[i] < p.clunked[j] })
	}
	for len(p.clunked) > 0 {
		last := p.clunked[len(p.clunked)-1]
		if !atomic.CompareAndSwapUint32(&p.next, last+1, last) {
			break
		}
		p.clunked = p.clunked[:len(p.clunked)-1]
	}
}

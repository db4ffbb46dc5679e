// Package objhash implements the content-addressed, concurrently-accessed
// de-duplication table that backs every primitive list: a fixed power-of-two
// row table, 7 inline cells per row plus an overflow chain, lock-striped
// row spinlocks (sync.Mutex stands in for a spinlock here - Go does not
// expose one in the standard library) and a single "extras" lock guarding
// the overflow free-list and the entry counter.
//
// Grounded on original_source/libuup/lib-uup/object-hash.c.
package objhash

import (
	"sync"
	"sync/atomic"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/polistore/uup/counters"
	"github.com/polistore/uup/internal/cfg"
	"github.com/polistore/uup/internal/debug"
)

const cellsPerRow = 7

type row[T any] struct {
	cell [cellsPerRow]*T
	next *row[T]
}

// Predicate is consulted against every non-empty cell that Action walks.
// Returning true indicates a match; if the predicate also nulls *obj, the
// entry count is decremented - this is how removal is implemented. The
// predicate runs under the row's lock: it must be short and must never
// call back into the hash.
type Predicate[T any] func(udata any, obj **T) bool

// Hash is a content-addressed de-duplication table for pointers to T.
type Hash[T any] struct {
	magic uint32

	table []row[T]
	locks []sync.Mutex
	extra sync.Mutex

	entries uint32

	// filter is a probabilistic per-table pre-check: a fingerprint that the
	// filter says is definitely absent skips the row walk (and its locks)
	// entirely. False positives just fall through to the real walk.
	filter *cuckoo.Filter
}

// New builds a table with the given number of rows and lock stripes, both
// of which must be a power of two (locks may be zero, disabling locking
// entirely for single-threaded use). magic is an opaque tag chosen by the
// caller - e.g. a payload-kind id - used only to catch a caller wiring the
// wrong table to the wrong element type.
func New[T any](rows, locks uint32, magic uint32) *Hash[T] {
	debug.Assert(rows != 0 && rows&(rows-1) == 0, "rows must be a power of two")
	debug.Assert(locks == 0 || locks&(locks-1) == 0, "locks must be zero or a power of two")

	h := &Hash[T]{
		magic:  magic,
		table:  make([]row[T], rows),
		filter: cuckoo.NewFilter(rows * cellsPerRow),
	}
	if locks != 0 {
		h.locks = make([]sync.Mutex, locks)
	}
	return h
}

// NewFromConfig is New, sized from the process's own internal/cfg.ObjHash
// tunable instead of bare rows/locks arguments - the wiring point a host
// application uses instead of picking table dimensions by hand.
func NewFromConfig[T any](c cfg.ObjHash, magic uint32) *Hash[T] {
	return New[T](c.Rows, c.Locks, magic)
}

func (h *Hash[T]) Magic() uint32 { return h.magic }

func (h *Hash[T]) Entries() uint32 { return atomic.LoadUint32(&h.entries) }

func (h *Hash[T]) rowsMask() uint32 { return uint32(len(h.table)) - 1 }

func (h *Hash[T]) lock(probe uint32) {
	if len(h.locks) == 0 {
		return
	}
	h.locks[probe&(uint32(len(h.locks))-1)].Lock()
}

func (h *Hash[T]) unlock(probe uint32) {
	if len(h.locks) == 0 {
		return
	}
	h.locks[probe&(uint32(len(h.locks))-1)].Unlock()
}

// candidateRows resolves a fingerprint's four probes into up to four
// distinct rows, nulling out any probe that aliases an earlier one - the
// same de-duplication the original setup_hashes_and_rows performs.
func (h *Hash[T]) candidateRows(fp Fingerprint) (rows [4]*row[T], probes [4]uint32) {
	p := fp.probes()
	for i := 0; i < 4; i++ {
		idx := p[i] & h.rowsMask()
		r := &h.table[idx]
		dup := false
		for j := 0; j < i; j++ {
			if rows[j] == r {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		rows[i] = r
		probes[i] = p[i]
	}
	return rows, probes
}

// Action walks up to four candidate rows (and their overflow chains),
// running pred against every non-empty cell under that row's lock. It
// returns the first object for which pred returned true, or nil.
func (h *Hash[T]) Action(fp Fingerprint, udata any, pred Predicate[T]) *T {
	if h.filter != nil && !h.filter.Lookup(fp[:]) {
		counters.ObjectHashMiss.Inc()
		return nil
	}

	rows, probes := h.candidateRows(fp)
	var result *T
	for {
		more := false
		for i := 0; i < 4 && result == nil; i++ {
			r := rows[i]
			if r == nil {
				continue
			}
			h.lock(probes[i])
			for c := 0; c < cellsPerRow; c++ {
				obj := r.cell[c]
				if obj != nil && pred(udata, &r.cell[c]) {
					result = obj
					if r.cell[c] == nil {
						h.extra.Lock()
						h.entries--
						h.extra.Unlock()
					}
					break
				}
				result = nil
			}
			h.unlock(probes[i])
			if r.next != nil {
				rows[i] = r.next
				more = true
			} else {
				rows[i] = nil
			}
		}
		if !more || result != nil {
			break
		}
	}

	if result == nil {
		counters.ObjectHashMiss.Inc()
	} else {
		counters.ObjectHashHit.Inc()
	}
	return result
}

// Add inserts obj keyed by fp, returning obj. If another goroutine already
// holds a live entry under a free cell race, Add still returns obj in the
// cell it claimed - the caller is responsible for fingerprint-keyed
// de-duplication happening before Add is called (typically via Action with
// a "does this fingerprint already have a live entry" predicate).
func (h *Hash[T]) Add(obj *T, fp Fingerprint) *T {
	rows, probes := h.candidateRows(fp)
	var result *T
	extendRow := -1
	for {
		more := false
		for i := 0; i < 4 && result == nil; i++ {
			r := rows[i]
			if r == nil {
				continue
			}
			h.lock(probes[i])
			for c := 0; c < cellsPerRow; c++ {
				if r.cell[c] == nil {
					r.cell[c] = obj
					result = obj
					h.extra.Lock()
					h.entries++
					h.extra.Unlock()
					break
				}
			}
			h.unlock(probes[i])
			if r.next != nil {
				rows[i] = r.next
				more = true
			} else {
				rows[i] = nil
				if extendRow == -1 {
					extendRow = i
				}
			}
		}
		if !more || result != nil {
			break
		}
	}

	if result == nil {
		debug.Assert(extendRow != -1, "no row available to extend")
		counters.ObjectHashOverflows.Inc()

		extra := &row[T]{}
		h.lock(probes[extendRow])
		tail := &h.table[probes[extendRow]&h.rowsMask()]
		for tail.next != nil {
			tail = tail.next
		}
		placed := false
		for c := 0; c < cellsPerRow; c++ {
			if tail.cell[c] == nil {
				tail.cell[c] = obj
				placed = true
				break
			}
		}
		if !placed {
			extra.cell[0] = obj
			tail.next = extra
		}
		h.unlock(probes[extendRow])

		h.extra.Lock()
		h.entries++
		h.extra.Unlock()
		result = obj
	}

	if h.filter != nil {
		_, _ = h.filter.InsertUnique(fp[:])
	}
	return result
}

// Fingerprinted is implemented by every primitive list type this package's
// callers de-duplicate by content hash.
type Fingerprinted interface {
	Fingerprint() Fingerprint
}

// FindOrAdd is the de-duplication entry point a primitive list parser calls
// instead of Add directly: if a live entry with the same fingerprint is
// already resident, its pointer is returned and obj is discarded; otherwise
// obj is added and becomes the resident entry. This is what gives unchanged
// segments their "retain lists by pointer" property across a reload.
func FindOrAdd[T Fingerprinted](h *Hash[T], obj *T, fp Fingerprint) *T {
	pred := func(_ any, cur **T) bool {
		return *cur != nil && (**cur).Fingerprint() == fp
	}
	if existing := h.Action(fp, nil, pred); existing != nil {
		return existing
	}
	return h.Add(obj, fp)
}

// Remove deletes obj's fingerprint from the probabilistic pre-check filter.
// Callers invoke this only after Action has confirmed (via a nulling
// predicate) that obj's cell was actually cleared - the filter must never
// claim absence for an entry that is still live.
func (h *Hash[T]) Remove(fp Fingerprint) {
	if h.filter != nil {
		h.filter.Delete(fp[:])
	}
}

// Package confset implements the segmented, copy-on-write configuration set
// described by lib-uup's conf_segment machinery: a sorted array of per-org
// segments published atomically as one generation, so that a reload can
// rebuild only the organizations whose files changed while every other
// segment pointer is shared, unmodified, with whatever reader already holds
// the previous generation.
//
// Grounded on original_source/libuup/lib-uup/conf-segment.c and the
// per-module confset headers (application-confset.h etc.) listed in
// original_source/_INDEX.md. The original tracks segment lifetime with a
// manual refcount and an atomic dec-then-free on release, racing the
// destructor against concurrent lookups by re-checking hash membership
// after the decrement reaches zero. This package instead leans on the Go
// garbage collector: a segment published into a Set lives exactly as long
// as something still references that Set (or the segment directly), and
// Clone's shallow copy of the pointer array is what gives two generations
// shared, reference-counted-for-free ownership of their common segments.
// See DESIGN.md for the full writeup of this redesign decision.
package confset

import (
	"sort"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"github.com/teris-io/shortid"

	"github.com/polistore/uup/internal/cfg"
)

// defaultGrowthQuantum is the number of slots a Clone's backing array is
// rounded up to when the caller doesn't configure one, amortizing the
// common case of a handful of orgs changing per reload. A pure
// performance heuristic; callers in a tiny or huge deployment may prefer
// a different quantum via FromConfig.
const defaultGrowthQuantum = 10

// Segment is one per-org partition of a segmented module: a
// domainlist-backed block list, an application confset row, whatever the
// module in question builds per organization.
type Segment interface {
	OrgID() uint32
	// FailedLoad reports whether this segment is a placeholder left behind
	// by a build failure - the confset still loads around it so a single
	// corrupt org doesn't take the whole resolver offline.
	FailedLoad() bool
	// MTime is the segment's own file modification time, used to advance
	// the owning Set's watermark via SetTimeAtLeast.
	MTime() int64
}

// Set is a segmented confset: a sorted-by-OrgID array of segments plus the
// generation's overall mtime watermark, safe to read concurrently by any
// number of goroutines once published (see Published).
type Set[S Segment] struct {
	segments      []S
	mtime         int64
	generation    string
	growthQuantum int
}

// Empty returns a zero-segment Set with the default growth quantum, the
// starting point for a first load.
func Empty[S Segment]() *Set[S] {
	return &Set[S]{generation: newGenerationID(), growthQuantum: defaultGrowthQuantum}
}

// FromConfig is Empty, with the Clone growth quantum taken from the
// process's own internal/cfg.Segment tunable instead of the built-in
// default - the wiring point a host application uses to size the
// confset's reallocation behavior for its own deployment scale.
func FromConfig[S Segment](c cfg.Segment) *Set[S] {
	return &Set[S]{generation: newGenerationID(), growthQuantum: c.GrowthQuantum}
}

func newGenerationID() string {
	id, err := shortid.Generate()
	if err != nil {
		return ""
	}
	return id
}

// Generation is an opaque, unique label for this Set snapshot, handy for
// logging which generation a particular lookup was served from.
func (s *Set[S]) Generation() string { return s.generation }

// MTime is the newest MTime among all segments ever folded into this
// lineage (via SetTimeAtLeast), used to answer "has anything changed since
// time T" without walking every segment.
func (s *Set[S]) MTime() int64 { return s.mtime }

// Len is the number of live segments.
func (s *Set[S]) Len() int { return len(s.segments) }

func (s *Set[S]) slotFor(orgID uint32) (int, bool) {
	i := sort.Search(len(s.segments), func(i int) bool { return s.segments[i].OrgID() >= orgID })
	if i < len(s.segments) && s.segments[i].OrgID() == orgID {
		return i, true
	}
	return i, false
}

// Slot2Segment returns the segment occupying slot i, for callers that
// already resolved a slot index via Id2Slot.
func (s *Set[S]) Slot2Segment(i int) S { return s.segments[i] }

// SlotIsEmpty reports whether slot i falls past the end of the live
// segment array.
func (s *Set[S]) SlotIsEmpty(i int) bool { return i >= len(s.segments) }

// Id2Slot resolves orgID to its slot index, in the id2slot + usesegment
// vocabulary of the update protocol; ok is false when the org has no
// segment yet (the caller is about to insert one).
func (s *Set[S]) Id2Slot(orgID uint32) (int, bool) { return s.slotFor(orgID) }

// Segment looks up the segment for orgID directly.
func (s *Set[S]) Segment(orgID uint32) (S, bool) {
	if i, ok := s.slotFor(orgID); ok {
		return s.segments[i], true
	}
	var zero S
	return zero, false
}

// SlotFailedLoad reports whether the segment at slot i is a failed-load
// placeholder.
func (s *Set[S]) SlotFailedLoad(i int) bool {
	if i < 0 || i >= len(s.segments) {
		return false
	}
	return s.segments[i].FailedLoad()
}

// Clone allocates a new header that shares every current segment pointer,
// rounding the backing array's capacity up to the next growth-quantum
// multiple so that the common handful of per-reload insertions don't each
// force their own reallocation. The returned Set is a fresh generation;
// mutating it (via UseSegment/FreeSlot) never affects s or anything else
// still holding s.
func (s *Set[S]) Clone() *Set[S] {
	quantum := s.growthQuantum
	if quantum <= 0 {
		quantum = defaultGrowthQuantum
	}
	capacity := ((len(s.segments) / quantum) + 1) * quantum
	out := make([]S, len(s.segments), capacity)
	copy(out, s.segments)
	return &Set[S]{segments: out, mtime: s.mtime, generation: newGenerationID(), growthQuantum: quantum}
}

// UseSegment inserts seg at its sorted position, or replaces whatever
// already occupies that org's slot, preserving the sort invariant. Callers
// building a reload's new generation call this once per changed file's
// freshly-built segment.
func (s *Set[S]) UseSegment(seg S) {
	i, exists := s.slotFor(seg.OrgID())
	if exists {
		s.segments[i] = seg
	} else {
		var zero S
		s.segments = append(s.segments, zero)
		copy(s.segments[i+1:], s.segments[i:])
		s.segments[i] = seg
	}
	s.SetTimeAtLeast(seg.MTime())
}

// FreeSlot removes the segment for orgID, shifting the remainder of the
// array down by one. A no-op if orgID has no segment.
func (s *Set[S]) FreeSlot(orgID uint32) {
	if i, ok := s.slotFor(orgID); ok {
		s.segments = append(s.segments[:i], s.segments[i+1:]...)
	}
}

// SetTimeAtLeast raises the Set's mtime watermark if t is newer.
func (s *Set[S]) SetTimeAtLeast(t int64) {
	if t > s.mtime {
		s.mtime = t
	}
}

// Each calls fn for every live segment, in sorted OrgID order.
func (s *Set[S]) Each(fn func(S)) {
	for _, seg := range s.segments {
		fn(seg)
	}
}

type dumpRow struct {
	OrgID      uint32 `json:"org_id"`
	FailedLoad bool   `json:"failed_load"`
	MTime      int64  `json:"mtime"`
}

type dumpSnapshot struct {
	Generation string    `json:"generation"`
	MTime      int64     `json:"mtime"`
	Segments   []dumpRow `json:"segments"`
}

// Dump renders a jsoniter diagnostic snapshot of the set - its generation
// label, watermark, and each segment's org id / failed-load flag / mtime -
// for an operator-facing status endpoint.
func (s *Set[S]) Dump() ([]byte, error) {
	snap := dumpSnapshot{Generation: s.generation, MTime: s.mtime}
	snap.Segments = make([]dumpRow, len(s.segments))
	for i, seg := range s.segments {
		snap.Segments[i] = dumpRow{OrgID: seg.OrgID(), FailedLoad: seg.FailedLoad(), MTime: seg.MTime()}
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(snap)
}

// Published holds the atomically-swapped current generation of a Set[S]:
// the publication half of the update protocol, letting readers on any
// goroutine grab a consistent snapshot without a lock.
type Published[S Segment] struct {
	ptr atomic.Pointer[Set[S]]
}

// NewPublished wraps an initial Set as the first published generation.
func NewPublished[S Segment](initial *Set[S]) *Published[S] {
	p := &Published[S]{}
	p.ptr.Store(initial)
	return p
}

// Load returns the currently published generation.
func (p *Published[S]) Load() *Set[S] { return p.ptr.Load() }

// Publish atomically swaps in a new generation built via Clone + UseSegment
// + FreeSlot. Every reader that already called Load keeps working against
// its own snapshot; only subsequent Load calls observe the new generation.
func (p *Published[S]) Publish(s *Set[S]) { p.ptr.Store(s) }

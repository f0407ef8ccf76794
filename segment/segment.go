// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package segment implements the ColumnSegment state machine (spec
// §4.C) and its codec (§4.D): a segment holds row [start, start+count)
// of one integer column, presented either as an Uncompressed fixed-
// width page or a bit-Packed succvec.Vector, and flips between the two
// under its own mutex when an append expands a Packed segment, when a
// scan compacts it lazily (non-adaptive mode), or when Compact/Uncompact
// is issued, e.g. by the adaptive controller. Filling a segment or
// finalizing an append does not by itself compact it.
package segment

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sneller-labs/succinct/bufmgr"
	"github.com/sneller-labs/succinct/ints"
	"github.com/sneller-labs/succinct/succvec"
)

type representation uint8

const (
	repUncompressed representation = iota
	repPacked
)

// Segment is one contiguous row-range of a single integer column.
// Exactly one of the two representation fields is meaningful at a
// time, selected by rep; transitions between them hold mu for their
// entire duration so no scan ever observes a half-packed vector
// (spec §5: "a representation transition is atomic w.r.t. scans").
type Segment struct {
	id       uuid.UUID
	typ      Type
	typeSize int
	start    int

	segmentSize int // bytes reserved for the Uncompressed page
	capacity    int // segmentSize / typeSize

	isDataSegment               bool
	succinctPossible            bool
	backgroundCompactionEnabled bool
	opts                        Options

	bm      bufmgr.Manager
	catalog *Catalog // non-owning: segment carries a borrow, never the reverse

	mu         sync.Mutex
	count      int
	rep        representation
	generation uint64 // bumped on every representation transition

	page  []byte         // valid when rep == repUncompressed
	block bufmgr.BlockHandle
	vec   *succvec.Vector // valid when rep == repPacked

	compacted     bool
	minSubtrahend *uint64

	minObserved uint64
	maxObserved uint64
	haveStats   bool

	persistent   bool
	persistedAlg string
	persisted    []byte // compr-encoded page, valid once persistent
}

// ScanState is a cursor into one representation of a segment, handed
// out by InitScan and advanced by Scan/ScanPartial. It transparently
// reinitializes when the representation changed since it was
// obtained (spec's scan ordering guarantee), which for us only means
// adopting the segment's current generation: both representations
// support O(1) random access by logical row, so there is no streaming
// position to lose across a transition.
type ScanState struct {
	row        int
	generation uint64
}

// AppendState is returned by InitAppend; it exists to mirror the
// spec's contract (append is only legal after InitAppend) and to
// catch use against a Persistent segment.
type AppendState struct {
	seg *Segment
}

// ID returns the segment's catalog identity.
func (s *Segment) ID() uuid.UUID { return s.id }

// Start returns the first row id covered by this segment.
func (s *Segment) Start() int { return s.start }

// Count returns the number of rows currently appended.
func (s *Segment) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Range returns the half-open row range [start, start+count) this
// segment currently covers, used by Catalog.FindByRow to resolve an
// absolute row id back to the segment holding it.
func (s *Segment) Range() ints.Interval {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ints.Interval{Start: s.start, End: s.start + s.count}
}

// Type returns the segment's logical element type.
func (s *Segment) Type() Type { return s.typ }

// IsCompacted reports whether the segment is currently Packed with a
// valid bit-compression applied (spec's `compacted` flag).
func (s *Segment) IsCompacted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compacted
}

// newBase fills in the fields shared by every constructor.
func newBase(typ Type, start, segmentSize int, bm bufmgr.Manager, catalog *Catalog, opts Options) *Segment {
	ts := typ.Size()
	return &Segment{
		id:                          uuid.New(),
		typ:                         typ,
		typeSize:                    ts,
		start:                       start,
		segmentSize:                 segmentSize,
		capacity:                    segmentSize / ts,
		isDataSegment:               typ.Supported(),
		succinctPossible:            opts.SuccinctEnabled,
		backgroundCompactionEnabled: opts.AdaptiveSuccinctCompressionEnabled,
		opts:                        opts,
		bm:                          bm,
		catalog:                     catalog,
	}
}

// NewTransient creates an empty TransientUncompressed segment, the
// default creation state (spec §4.C lifecycle). If opts.SuccinctEnabled
// is true and adaptive mode is off, callers should instead use
// NewTransientPacked so that packing starts at creation time, per §4.C
// ("created directly as Packed with width = type_size*8 when ... global
// succinct mode is on and adaptive mode is off").
func NewTransient(typ Type, start, segmentSize int, bm bufmgr.Manager, catalog *Catalog, opts Options) *Segment {
	s := newBase(typ, start, segmentSize, bm, catalog, opts)
	s.block = bm.Allocate(segmentSize)
	s.page = bm.Pin(s.block)
	s.rep = repUncompressed
	bm.AddToDataSize(int64(segmentSize))
	if catalog != nil {
		catalog.register(s)
	}
	return s
}

// NewTransientPacked creates an empty segment directly in the Packed
// representation at the type's full width, used when succinct mode is
// on and adaptive mode is off (spec §4.C).
func NewTransientPacked(typ Type, start, segmentSize int, bm bufmgr.Manager, catalog *Catalog, opts Options) *Segment {
	s := newBase(typ, start, segmentSize, bm, catalog, opts)
	s.rep = repPacked
	s.vec = succvec.New(s.capacity, uint8(s.typeSize*8))
	bm.AddToDataSize(int64(s.vec.SizeInBytes()))
	if catalog != nil {
		catalog.register(s)
	}
	return s
}

// Close destroys the segment, releasing its backing storage and
// de-registering from the catalog's access-statistics map (spec: "on
// destruction the segment de-registers from the statistics map").
func (s *Segment) Close() {
	s.mu.Lock()
	switch s.rep {
	case repUncompressed:
		if s.block != (bufmgr.BlockHandle{}) {
			s.bm.Unpin(s.block)
			s.bm.Free(s.block)
			s.bm.AddToDataSize(-int64(s.segmentSize))
		}
	case repPacked:
		if s.vec != nil {
			s.bm.AddToDataSize(-int64(s.vec.SizeInBytes()))
		}
	}
	s.mu.Unlock()
	if s.catalog != nil {
		s.catalog.unregister(s.id)
	}
}

// SegmentSizeBytes returns the bytes reserved for the Uncompressed
// representation, regardless of which representation is current.
func (s *Segment) SegmentSizeBytes() int { return s.segmentSize }

// DataSizeBytes returns the accounted footprint of the segment's
// current representation: the reserved page size when Uncompressed,
// or the packed vector's exact heap footprint when Packed.
func (s *Segment) DataSizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataSizeBytesLocked()
}

func (s *Segment) dataSizeBytesLocked() int64 {
	switch s.rep {
	case repUncompressed:
		return int64(s.segmentSize)
	case repPacked:
		return int64(s.vec.SizeInBytes())
	default:
		return 0
	}
}

// SuccinctSizeBytes returns the footprint the segment would have if
// Packed right now, without performing the transition, so compaction
// gains can be estimated before committing to them.
func (s *Segment) SuccinctSizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rep == repPacked {
		return int64(s.vec.SizeInBytes())
	}
	if !s.haveStats || s.count == 0 {
		return int64(s.segmentSize)
	}
	w := s.chooseWidthLocked()
	return int64(succvec.New(s.count, w).SizeInBytes())
}

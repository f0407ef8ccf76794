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

package segment

import (
	"math/bits"

	"github.com/sneller-labs/succinct/bufmgr"
	"github.com/sneller-labs/succinct/ints"
	"github.com/sneller-labs/succinct/succvec"
)

// chooseWidthLocked computes the target bit width per spec §4.C: the
// max effective range (optionally reduced by the frame-of-reference
// minimum), rounded up to a byte if padding is configured.
func (s *Segment) chooseWidthLocked() uint8 {
	maxEffective := s.maxObserved
	if s.opts.ExtractPrefix {
		maxEffective = s.maxObserved - s.minObserved
	}
	w := minWidthFor(maxEffective)
	if s.opts.PadToNextByte {
		w = ints.AlignUp8(w, 8)
	}
	return w
}

func minWidthFor(maxEffective uint64) uint8 {
	return ints.Max(uint8(bits.Len64(maxEffective)), 1)
}

// eligibleLocked implements the eligibility predicate from spec §4.C:
// a data segment, succinct-enabled, non-empty, not already compacted,
// with a codec registered for its type (all eight Type values have
// one, so this reduces to IsDataSegment).
func (s *Segment) eligibleLocked() bool {
	return s.isDataSegment && s.succinctPossible && s.count > 0 && !s.compacted && !s.persistent
}

// Compact transitions the segment toward its narrowest representation.
// It is idempotent: calling it on an already-compacted or ineligible
// segment is a no-op.
func (s *Segment) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.eligibleLocked() {
		return nil
	}
	switch s.rep {
	case repUncompressed:
		s.compactUncompressedLocked()
	case repPacked:
		s.compactPackedLocked()
	}
	return nil
}

// compactUncompressedLocked chooses a target width from the (min, max)
// that Append tracks incrementally, emits a fresh packed vector from
// the page, and releases the page.
func (s *Segment) compactUncompressedLocked() {
	w := s.chooseWidthLocked()
	vec := succvec.New(s.count, w)

	var sub *uint64
	if s.opts.ExtractPrefix && s.haveStats {
		m := s.minObserved
		sub = &m
	}

	for i := 0; i < s.count; i++ {
		v := getUint(s.page[i*s.typeSize:], s.typeSize)
		uv := v
		if s.typ.Signed() {
			uv = signedToRank(v, s.typeSize)
		}
		if sub != nil {
			uv -= *sub
		}
		vec.Set(i, uv)
	}

	oldSize := int64(s.segmentSize)
	s.bm.Unpin(s.block)
	s.bm.Free(s.block)
	s.page = nil
	s.block = bufmgr.BlockHandle{}

	s.vec = vec
	s.minSubtrahend = sub
	s.rep = repPacked
	s.compacted = true
	s.generation++

	newSize := int64(vec.SizeInBytes())
	s.bm.AddToDataSize(newSize - oldSize)
}

// compactPackedLocked re-packs an already-Packed segment (created at
// full type width via NewTransientPacked) down to the minimum width
// its current values need. Per spec: "If min_width >= current_width,
// skip."
func (s *Segment) compactPackedLocked() {
	w := s.chooseWidthLocked()
	if w >= s.vec.Width() {
		return
	}
	oldSize := int64(s.vec.SizeInBytes())
	s.vec.BitCompress(w)
	s.compacted = true
	s.generation++
	newSize := int64(s.vec.SizeInBytes())
	s.bm.AddToDataSize(newSize - oldSize)
}

// Uncompact is the inverse of Compact: it allocates a fresh
// Uncompressed page, writes every packed value back at its original
// type width (adding the min-subtrahend back in), and releases the
// packed buffer. It is a no-op unless the segment is currently Packed
// and compacted.
func (s *Segment) Uncompact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rep != repPacked || !s.compacted {
		return nil
	}
	s.uncompactLocked()
	return nil
}

func (s *Segment) uncompactLocked() {
	block := s.bm.Allocate(s.segmentSize)
	page := s.bm.Pin(block)

	var add uint64
	if s.minSubtrahend != nil {
		add = *s.minSubtrahend
	}
	signed := s.typ.Signed()
	for i := 0; i < s.count; i++ {
		v := s.vec.Get(i) + add
		if signed {
			v = rankToSigned(v, s.typeSize)
		}
		putUint(page[i*s.typeSize:], s.typeSize, v)
	}

	oldSize := int64(s.vec.SizeInBytes())
	s.bm.AddToDataSize(int64(s.segmentSize) - oldSize)

	s.vec = nil
	s.minSubtrahend = nil
	s.block = block
	s.page = page
	s.rep = repUncompressed
	s.compacted = false
	s.generation++
}

// maybeLazyCompactLocked implements the non-adaptive (autonomous)
// mode: a segment self-compacts on its first scan instead of waiting
// for the controller. Mutually exclusive with adaptive mode by
// construction (Options.AdaptiveSuccinctCompressionEnabled gates
// backgroundCompactionEnabled at construction time), resolving the
// spec's open question about the two modes' interaction.
func (s *Segment) maybeLazyCompactLocked() {
	if !s.eligibleLocked() {
		return
	}
	switch s.rep {
	case repUncompressed:
		s.compactUncompressedLocked()
	case repPacked:
		s.compactPackedLocked()
	}
}


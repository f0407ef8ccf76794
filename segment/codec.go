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

import "encoding/binary"

// InitScan prepares a cursor into the segment's current representation.
func (s *Segment) InitScan() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScanState{generation: s.generation}
}

// InitAppend prepares an append cursor. Only legal on a non-Persistent
// segment (spec: "Allowed only for Transient segments").
func (s *Segment) InitAppend() (AppendState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistent {
		return AppendState{}, stateErr("InitAppend", "segment is Persistent")
	}
	return AppendState{seg: s}, nil
}

// Scan materializes count logical values starting at the scan
// cursor's current row into out, which must hold count*typeSize bytes,
// and registers one read hit with the catalog. It is equivalent to
// ScanPartial with result_offset 0, and advances the cursor by count.
func (s *Segment) Scan(state *ScanState, count int, out []byte) error {
	return s.ScanPartial(state, count, out, 0)
}

// ScanPartial reads the next count logical values starting at the
// scan cursor's current row, writing them into out starting at byte
// offset resultOffset*typeSize, and advances the cursor by count. If
// a representation transition happened since the ScanState was
// obtained, the cursor transparently adopts the new representation
// before reading (spec's scan ordering guarantee); because both
// representations support O(1) random access by logical row, this
// never loses scan progress — only the storage backing the same row
// changes.
func (s *Segment) ScanPartial(state *ScanState, count int, out []byte, resultOffset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.generation != s.generation {
		state.generation = s.generation
	}
	if count < 0 || state.row+count > s.count {
		return rangeErr("ScanPartial", "cursor %d + count %d exceeds segment count %d", state.row, count, s.count)
	}
	if s.catalog != nil {
		s.catalog.recordRead(s.id)
	}
	if !s.backgroundCompactionEnabled {
		s.maybeLazyCompactLocked()
	}

	switch s.rep {
	case repUncompressed:
		n := count * s.typeSize
		srcOff := state.row * s.typeSize
		dstOff := resultOffset * s.typeSize
		copy(out[dstOff:dstOff+n], s.page[srcOff:srcOff+n])
	case repPacked:
		s.packedScanPartialLocked(state.row, count, out, resultOffset)
	}
	state.row += count
	return nil
}

// packedScanPartialLocked materializes count values from the packed
// vector starting at logical row start, writing type_size bytes per
// slot with the min-subtrahend added back, zero-extended to the type
// width.
func (s *Segment) packedScanPartialLocked(start, count int, out []byte, resultOffset int) {
	var add uint64
	if s.minSubtrahend != nil {
		add = *s.minSubtrahend
	}
	signed := s.typ.Signed()
	for i := 0; i < count; i++ {
		v := s.vec.Get(start+i) + add
		if signed {
			v = rankToSigned(v, s.typeSize)
		}
		putUint(out[(resultOffset+i)*s.typeSize:], s.typeSize, v)
	}
}

// FetchRow writes the single logical value at row_id into out at
// byte offset idx*typeSize.
func (s *Segment) FetchRow(rowID int, out []byte, idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rowID < s.start || rowID >= s.start+s.count {
		return rangeErr("FetchRow", "row %d outside [%d,%d)", rowID, s.start, s.start+s.count)
	}
	if s.catalog != nil {
		s.catalog.recordRead(s.id)
	}
	rel := rowID - s.start
	switch s.rep {
	case repUncompressed:
		copy(out[idx*s.typeSize:], s.page[rel*s.typeSize:(rel+1)*s.typeSize])
	case repPacked:
		var add uint64
		if s.minSubtrahend != nil {
			add = *s.minSubtrahend
		}
		v := s.vec.Get(rel) + add
		if s.typ.Signed() {
			v = rankToSigned(v, s.typeSize)
		}
		putUint(out[idx*s.typeSize:], s.typeSize, v)
	}
	return nil
}

// Skip advances the scan cursor by count rows without materializing
// any data.
func (s *Segment) Skip(state *ScanState, count int) {
	state.row += count
}

func putUint(dst []byte, size int, v uint64) {
	switch size {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	}
}

func getUint(src []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(src))
	case 4:
		return uint64(binary.LittleEndian.Uint32(src))
	case 8:
		return binary.LittleEndian.Uint64(src)
	}
	return 0
}

// AppendTyped is Append's typed entry point: it checks typ against
// the segment's own logical type before delegating, raising KindType
// when a caller's declared buffer type doesn't match (spec §4.C/§7).
// Append itself only ever sees an untyped []byte and has no way to
// perform this check, so callers that know the source type should
// call AppendTyped rather than Append directly.
func (s *Segment) AppendTyped(state *AppendState, typ Type, data []byte, offset, count int, valid func(row int) bool) (int, error) {
	if typ != s.typ {
		return 0, typeErr("AppendTyped", "data type %v does not match segment type %v", typ, s.typ)
	}
	return s.Append(state, data, offset, count, valid)
}

// Append appends min(count, capacity_left) values from data (laid out
// as count*typeSize bytes, little-endian, one element per typeSize
// bytes) starting at source row offset, i.e. byte offset*typeSize,
// honoring valid as a
// per-row null mask (valid may be nil, meaning "all valid"). It
// returns the number of rows actually appended; a return of 0 with
// count > 0 signals the segment is full (spec's Capacity condition).
// Append trusts the caller's byte layout; use AppendTyped when the
// source type needs validating.
func (s *Segment) Append(state *AppendState, data []byte, offset, count int, valid func(row int) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == nil || state.seg != s {
		return 0, stateErr("Append", "append state not initialized for this segment")
	}
	if s.persistent {
		return 0, stateErr("Append", "segment is Persistent")
	}

	// Appending into a Packed segment forces an expansion back to
	// Uncompressed first: the packed width is value-range-derived, so
	// a wider incoming value would otherwise silently truncate (spec
	// §4.C / §9 resolved Open Question).
	if s.rep == repPacked {
		s.uncompactLocked()
	}

	maxTuples := s.capacity
	copyCount := count
	if left := maxTuples - s.count; copyCount > left {
		copyCount = left
	}
	if copyCount <= 0 {
		return 0, nil
	}

	for i := 0; i < copyCount; i++ {
		srcOff := (offset + i) * s.typeSize
		dstOff := (s.count + i) * s.typeSize
		if valid != nil && !valid(offset+i) {
			putUint(s.page[dstOff:], s.typeSize, nullSentinel(s.typ))
			continue
		}
		v := getUint(data[srcOff:], s.typeSize)
		copy(s.page[dstOff:dstOff+s.typeSize], data[srcOff:srcOff+s.typeSize])
		s.updateStatsLocked(v)
	}
	s.count += copyCount
	return copyCount, nil
}

func (s *Segment) updateStatsLocked(v uint64) {
	signed := s.typ.Signed()
	uv := v
	if signed {
		uv = signedToRank(v, s.typeSize)
	}
	if !s.haveStats {
		s.minObserved, s.maxObserved = uv, uv
		s.haveStats = true
		return
	}
	if uv < s.minObserved {
		s.minObserved = uv
	}
	if uv > s.maxObserved {
		s.maxObserved = uv
	}
}

// signedToRank maps a two's-complement value of the given byte width
// onto an order-preserving unsigned rank (and back again, since
// flipping the sign bit is its own inverse), so min/max tracking and
// frame-of-reference subtraction work uniformly across signed and
// unsigned types.
func signedToRank(v uint64, size int) uint64 {
	bit := uint64(1) << (uint(size)*8 - 1)
	return v ^ bit
}

// rankToSigned is signedToRank's own inverse.
func rankToSigned(v uint64, size int) uint64 { return signedToRank(v, size) }

// FinalizeAppend returns the bytes currently occupied by the
// segment's representation. It does not itself trigger compaction:
// Append already forces a Packed segment back to Uncompressed before
// writing any row (see Append's resolved Open Question), so by the
// time an append cycle reaches FinalizeAppend the segment is never
// still Packed with rows pending compaction; compaction only ever
// happens through Compact or the controller.
func (s *Segment) FinalizeAppend(state *AppendState) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == nil || state.seg != s {
		return 0, stateErr("FinalizeAppend", "append state not initialized for this segment")
	}
	return s.dataSizeBytesLocked(), nil
}

// RevertAppend truncates count back to startRow - start, undoing a
// partial append (e.g. after a transaction abort). It is
// representation-agnostic: both representations only need their
// logical count shrunk, since Get/page reads are bounded by count at
// the call sites, not by pre-revert garbage left past the new end.
func (s *Segment) RevertAppend(startRow int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel := startRow - s.start
	if rel < 0 || rel > s.count {
		return rangeErr("RevertAppend", "start row %d outside [%d,%d]", startRow, s.start, s.start+s.count)
	}
	s.count = rel
	return nil
}

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

// Package segstats is the process-wide access-statistics registry: a
// concurrent map from segment identity to a monotonically-growing
// read counter, plus a ranked view the adaptive controller consults.
// Writers (RecordRead) are on the scan hot path and must never block
// behind the controller's long ranking pass, so the table is sharded
// the way tenant/dcache shards its mapping cache, with siphash picking
// the shard instead of a single global mutex.
package segstats

import (
	"sync"
	"sync/atomic"

	"github.com/dchest/siphash"
	"github.com/google/uuid"

	"github.com/sneller-labs/succinct/heap"
)

const shardCount = 32

// a fixed process-lifetime key; we only need collision-resistant
// bucketing across a small, known shard count, not a MAC.
const shardK0, shardK1 = 0x9ae16a3b2f90404f, 0xc2b2ae3d27d4eb4f

type entry struct {
	numReads uint64
}

type shard struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entry
}

// Map tracks per-segment read counts. The zero value is not usable;
// construct with New.
type Map struct {
	shards       [shardCount]shard
	eventCounter int64 // accessed atomically
}

// New returns an empty statistics map.
func New() *Map {
	m := &Map{}
	for i := range m.shards {
		m.shards[i].rows = make(map[uuid.UUID]*entry)
	}
	return m
}

func (m *Map) shardFor(id uuid.UUID) *shard {
	h := siphash.Hash(shardK0, shardK1, id[:])
	return &m.shards[h%shardCount]
}

// AddSegment registers id with a zero read count. Call only for
// segments with IsDataSegment set; the catalog enforces this.
func (m *Map) AddSegment(id uuid.UUID) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		s.rows[id] = &entry{}
	}
}

// RemoveSegment erases id unconditionally. Called from the segment's
// destructor/Close path regardless of whether it was ever added.
func (m *Map) RemoveSegment(id uuid.UUID) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
}

// RecordRead increments id's read counter and the global event
// counter. If id is absent, it establishes a fresh entry at 1 so that
// a read racing a late AddSegment is never silently dropped.
func (m *Map) RecordRead(id uuid.UUID) {
	s := m.shardFor(id)
	s.mu.Lock()
	e, ok := s.rows[id]
	if !ok {
		e = &entry{}
		s.rows[id] = e
	}
	e.numReads++
	s.mu.Unlock()
	atomic.AddInt64(&m.eventCounter, 1)
}

// Ranked is one row of a ranked snapshot.
type Ranked struct {
	ID       uuid.UUID
	NumReads uint64
}

// SnapshotRankedAscending copies the current (id, numReads) pairs and
// returns them ascending by numReads, ties broken by id bytes for
// determinism. The result may be slightly stale with respect to
// concurrent RecordRead calls; that is acceptable for the controller.
// Ordering is produced with the package-wide generic min-heap rather
// than sort.Slice: every pair is popped off the heap in turn, giving a
// total order that the controller walks from start to end.
func (m *Map) SnapshotRankedAscending() []Ranked {
	var out []Ranked
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for id, e := range s.rows {
			out = append(out, Ranked{ID: id, NumReads: e.numReads})
		}
		s.mu.Unlock()
	}
	less := func(a, b Ranked) bool {
		if a.NumReads != b.NumReads {
			return a.NumReads < b.NumReads
		}
		return lessID(a.ID, b.ID)
	}
	heap.OrderSlice(out, less)
	sorted := make([]Ranked, 0, len(out))
	for len(out) > 0 {
		sorted = append(sorted, heap.PopSlice(&out, less))
	}
	return sorted
}

func lessID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// EventCount returns the number of RecordRead calls since the last
// ResetCounts.
func (m *Map) EventCount() int64 {
	return atomic.LoadInt64(&m.eventCounter)
}

// ResetCounts zeroes every entry's read counter and the event
// counter, starting a fresh observation interval for the controller.
func (m *Map) ResetCounts() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for _, e := range s.rows {
			e.numReads = 0
		}
		s.mu.Unlock()
	}
	atomic.StoreInt64(&m.eventCounter, 0)
}

// SizeFunc reports the accounted byte footprint of a tracked segment;
// the map itself knows nothing about segment internals.
type SizeFunc func(id uuid.UUID) (size int64, ok bool)

// TotalDataSize sums SizeFunc over every currently-tracked segment,
// skipping entries the callback reports as gone (destroyed
// concurrently with the walk).
func (m *Map) TotalDataSize(size SizeFunc) int64 {
	var total int64
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		ids := make([]uuid.UUID, 0, len(s.rows))
		for id := range s.rows {
			ids = append(ids, id)
		}
		s.mu.Unlock()
		for _, id := range ids {
			if sz, ok := size(id); ok {
				total += sz
			}
		}
	}
	return total
}

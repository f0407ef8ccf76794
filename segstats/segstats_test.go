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

package segstats

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestRecordReadEstablishesAbsentEntry(t *testing.T) {
	m := New()
	id := uuid.New()
	m.RecordRead(id)
	ranked := m.SnapshotRankedAscending()
	if len(ranked) != 1 || ranked[0].ID != id || ranked[0].NumReads != 1 {
		t.Fatalf("unexpected snapshot: %+v", ranked)
	}
}

func TestSnapshotRankedAscendingOrdersByReads(t *testing.T) {
	m := New()
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		m.AddSegment(ids[i])
		for j := 0; j <= i; j++ {
			m.RecordRead(ids[i])
		}
	}
	ranked := m.SnapshotRankedAscending()
	if len(ranked) != 5 {
		t.Fatalf("got %d entries, want 5", len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i-1].NumReads > ranked[i].NumReads {
			t.Fatalf("snapshot not ascending: %+v", ranked)
		}
	}
}

func TestRemoveSegmentErasesEntry(t *testing.T) {
	m := New()
	id := uuid.New()
	m.AddSegment(id)
	m.RemoveSegment(id)
	for _, r := range m.SnapshotRankedAscending() {
		if r.ID == id {
			t.Fatalf("removed segment still present")
		}
	}
}

func TestResetCounts(t *testing.T) {
	m := New()
	id := uuid.New()
	m.AddSegment(id)
	m.RecordRead(id)
	m.RecordRead(id)
	m.ResetCounts()
	if m.EventCount() != 0 {
		t.Fatalf("event counter not reset")
	}
	ranked := m.SnapshotRankedAscending()
	if ranked[0].NumReads != 0 {
		t.Fatalf("read count not reset: %+v", ranked)
	}
}

func TestConcurrentRecordReadDoesNotRace(t *testing.T) {
	m := New()
	ids := make([]uuid.UUID, 16)
	for i := range ids {
		ids[i] = uuid.New()
		m.AddSegment(ids[i])
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.RecordRead(id)
			}
		}()
	}
	wg.Wait()
	if m.EventCount() != int64(len(ids)*1000) {
		t.Fatalf("event count = %d, want %d", m.EventCount(), len(ids)*1000)
	}
}

func TestTotalDataSizeSkipsMissing(t *testing.T) {
	m := New()
	id := uuid.New()
	m.AddSegment(id)
	total := m.TotalDataSize(func(i uuid.UUID) (int64, bool) {
		if i == id {
			return 42, true
		}
		return 0, false
	})
	if total != 42 {
		t.Fatalf("total = %d, want 42", total)
	}
}

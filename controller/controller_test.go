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

package controller

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeRegistry is an in-memory Registry double, letting iterate's
// partition logic be tested without constructing real segments or a
// buffer manager.
type fakeRegistry struct {
	mu        sync.Mutex
	snapshot  []Ranked
	compacted map[[16]byte]bool
	resets    int
	failID    [16]byte // Compact/Uncompact returns an error for this id
}

func (f *fakeRegistry) SnapshotRankedAscending() []Ranked {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Ranked, len(f.snapshot))
	copy(out, f.snapshot)
	return out
}

func (f *fakeRegistry) ResetCounts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeRegistry) Compact(id [16]byte) error {
	if id == f.failID {
		return errors.New("injected compact failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compacted[id] = true
	return nil
}

func (f *fakeRegistry) Uncompact(id [16]byte) error {
	if id == f.failID {
		return errors.New("injected uncompact failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compacted[id] = false
	return nil
}

func idOf(n byte) [16]byte {
	var id [16]byte
	id[0] = n
	return id
}

func newFakeRegistry(snapshot []Ranked) *fakeRegistry {
	return &fakeRegistry{snapshot: snapshot, compacted: make(map[[16]byte]bool)}
}

// TestIteratePartitionEqualWeight checks that, with 10 equally-counted
// segments and rho=0.90, exactly the coldest 8 get Compact and the
// two hottest get Uncompact.
func TestIteratePartitionEqualWeight(t *testing.T) {
	snapshot := make([]Ranked, 10)
	for i := range snapshot {
		// ids start at 1 so none equals the fake's zero-value failID
		snapshot[i] = Ranked{ID: idOf(byte(i + 1)), NumReads: uint64(i)} // ascending by construction
	}
	reg := newFakeRegistry(snapshot)
	c := &Controller{reg: reg, policy: Policy{Rho: 0.90, Weight: EqualWeight}, done: make(chan struct{})}
	c.iterate()

	for i, r := range snapshot {
		// cumulative fraction after entry i is (i+1)/10; entries 0..7
		// land strictly under rho=0.90, entry 8 lands exactly at 0.90
		// (not "<" rho) and is uncompacted along with entry 9.
		wantCompacted := i < 8
		if got := reg.compacted[r.ID]; got != wantCompacted {
			t.Fatalf("segment %d: compacted = %v, want %v", i, got, wantCompacted)
		}
	}
	if reg.resets != 1 {
		t.Fatalf("resets = %d, want 1", reg.resets)
	}
}

// TestIteratePartitionReadWeighted checks the read-weighted variant:
// one segment dominating the read count should itself land above rho
// even though it is the only entry past the threshold.
func TestIteratePartitionReadWeighted(t *testing.T) {
	snapshot := []Ranked{
		{ID: idOf(1), NumReads: 1},
		{ID: idOf(2), NumReads: 1},
		{ID: idOf(3), NumReads: 1},
		{ID: idOf(4), NumReads: 97}, // dominates the total
	}
	reg := newFakeRegistry(snapshot)
	c := &Controller{reg: reg, policy: Policy{Rho: 0.90, Weight: ReadWeighted}, done: make(chan struct{})}
	c.iterate()

	// cumulative fractions: 1/100, 2/100, 3/100, 100/100 -- only the
	// last entry crosses 0.90, so the first three stay compacted and
	// the dominant one gets uncompacted.
	if !reg.compacted[idOf(1)] || !reg.compacted[idOf(2)] || !reg.compacted[idOf(3)] {
		t.Fatalf("expected the three cold segments compacted")
	}
	if reg.compacted[idOf(4)] {
		t.Fatalf("expected the dominant hot segment uncompacted")
	}
}

// TestIterateEmptySnapshotIsNoop checks that an empty registry
// snapshot never calls ResetCounts (nothing to reset).
func TestIterateEmptySnapshotIsNoop(t *testing.T) {
	reg := newFakeRegistry(nil)
	c := &Controller{reg: reg, policy: DefaultPolicy(), done: make(chan struct{})}
	c.iterate()
	if reg.resets != 0 {
		t.Fatalf("resets = %d, want 0 on empty snapshot", reg.resets)
	}
}

// TestIterateSkipsErrorsAndContinues checks that a Compact/Uncompact
// failure on one segment doesn't stop the rest of the pass or skip
// the final ResetCounts.
func TestIterateSkipsErrorsAndContinues(t *testing.T) {
	snapshot := []Ranked{
		{ID: idOf(1), NumReads: 0},
		{ID: idOf(2), NumReads: 1},
		{ID: idOf(3), NumReads: 2},
	}
	reg := newFakeRegistry(snapshot)
	reg.failID = idOf(1)
	var logged []string
	c := &Controller{reg: reg, policy: Policy{Rho: 0.90, Weight: EqualWeight}, done: make(chan struct{})}
	c.Logger = logFunc(func(f string, args ...interface{}) { logged = append(logged, f) })
	c.iterate()

	if len(logged) != 1 {
		t.Fatalf("expected exactly one logged failure, got %d", len(logged))
	}
	// idOf(2) sits at cumulative fraction 2/3 < rho and gets Compact;
	// idOf(3) reaches 3/3 and gets Uncompact, recorded as false.
	compacted3, seen3 := reg.compacted[idOf(3)]
	if !reg.compacted[idOf(2)] || !seen3 || compacted3 {
		t.Fatalf("expected remaining segments still processed after one failure")
	}
	if reg.resets != 1 {
		t.Fatalf("resets = %d, want 1 even after a mid-pass failure", reg.resets)
	}
}

type logFunc func(f string, args ...interface{})

func (l logFunc) Printf(f string, args ...interface{}) { l(f, args...) }

// TestStartCloseLifecycle checks that Start is idempotent and that
// Close waits for the loop goroutine to actually exit.
func TestStartCloseLifecycle(t *testing.T) {
	reg := newFakeRegistry(nil)
	c := New(reg, Policy{Rho: 0.90, Interval: 5 * time.Millisecond, Weight: EqualWeight})
	c.Start()
	c.Start() // must not panic or start a second loop
	time.Sleep(20 * time.Millisecond)
	c.Close()
}

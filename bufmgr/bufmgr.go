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

// Package bufmgr describes the narrow contract the segment engine
// needs from a buffer/page manager, plus an in-memory reference
// implementation used by tests and the demo binary. The real
// database's buffer pool, checkpointing and eviction live outside
// this module; we only depend on allocation and the data-size
// accounting hook.
package bufmgr

import (
	"sync"
	"sync/atomic"
)

// BlockHandle names a page owned by the buffer manager. It carries
// no data itself; callers must Pin it to get at the bytes.
type BlockHandle struct {
	id   uint64
	size int
}

// Size returns the number of bytes reserved for this block.
func (h BlockHandle) Size() int { return h.size }

// Manager is the contract a ColumnSegment uses to allocate pages and
// to keep the process-wide data-size counter in sync with every
// representation transition. It is satisfied by *RefManager in tests
// and by the real database's buffer pool in production.
type Manager interface {
	// Allocate reserves a new page-backed block of the given size.
	Allocate(size int) BlockHandle
	// RegisterSmall reserves a block below the page-allocation
	// threshold (e.g. a packed vector narrower than one page).
	RegisterSmall(size int) BlockHandle
	// Pin returns a writable view of the block's bytes. Callers must
	// Unpin when done; Pin/Unpin calls nest like a reference count.
	Pin(h BlockHandle) []byte
	// Unpin releases a pin acquired with Pin.
	Unpin(h BlockHandle)
	// Free releases a block's storage entirely.
	Free(h BlockHandle)
	// AddToDataSize adjusts the global data-size counter by delta,
	// which may be negative. Every compact/expand transition must
	// report the exact signed byte delta it produced.
	AddToDataSize(delta int64)
	// DataSize returns the current value of the counter.
	DataSize() int64
}

// RefManager is a simple reference Manager backed by Go heap
// allocations, suitable for unit tests and the demo binary: pages
// never actually page out, Pin/Unpin only track liveness for
// diagnostics, and AddToDataSize is a relaxed atomic counter per
// spec's concurrency model (§5: "a relaxed atomic counter").
type RefManager struct {
	mu      sync.Mutex
	blocks  map[uint64][]byte
	nextID  uint64
	dataSz  int64
	pinned  map[uint64]int
}

// NewRefManager constructs an empty in-memory buffer manager.
func NewRefManager() *RefManager {
	return &RefManager{
		blocks: make(map[uint64][]byte),
		pinned: make(map[uint64]int),
	}
}

func (m *RefManager) alloc(size int) BlockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.blocks[id] = make([]byte, size)
	return BlockHandle{id: id, size: size}
}

// Allocate reserves a new block of at least size bytes, rounded up
// to a full OS page, zero-initialized.
func (m *RefManager) Allocate(size int) BlockHandle {
	ps := pageSize()
	if rem := size % ps; rem != 0 {
		size += ps - rem
	}
	return m.alloc(size)
}

// RegisterSmall reserves a block below the page threshold; the
// reference manager has no separate small-object pool, so it
// allocates exactly size bytes, without Allocate's page rounding.
func (m *RefManager) RegisterSmall(size int) BlockHandle { return m.alloc(size) }

// Pin returns the backing bytes for h.
func (m *RefManager) Pin(h BlockHandle) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[h.id]++
	return m.blocks[h.id]
}

// Unpin releases one pin on h.
func (m *RefManager) Unpin(h BlockHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinned[h.id] > 0 {
		m.pinned[h.id]--
	}
}

// Free releases h's storage. Freeing a block that is still pinned is
// a caller bug; the reference manager does not detect it, matching
// the buffer manager being out of scope for this module's invariants.
func (m *RefManager) Free(h BlockHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, h.id)
	delete(m.pinned, h.id)
}

// AddToDataSize adjusts the data-size counter by delta.
func (m *RefManager) AddToDataSize(delta int64) {
	atomic.AddInt64(&m.dataSz, delta)
}

// DataSize returns the current data-size counter value.
func (m *RefManager) DataSize() int64 {
	return atomic.LoadInt64(&m.dataSz)
}

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
	"sync"

	"github.com/google/uuid"

	"github.com/sneller-labs/succinct/bufmgr"
	"github.com/sneller-labs/succinct/segstats"
)

// Catalog is the process-wide ColumnSegmentCatalog: an access-
// statistics registry (segstats.Map) plus a lookup table so the
// adaptive controller can turn a ranked identity back into a segment
// to act on. Segment and Catalog hold non-owning handles to each
// other (spec §9): the segment carries a *Catalog borrow, the catalog
// stores identities in its map and a weak lookup table, and
// destruction runs segment-first, deregistering from the catalog.
type Catalog struct {
	Stats *segstats.Map
	BM    bufmgr.Manager
	Opts  Options

	mu       sync.Mutex
	segments map[uuid.UUID]*Segment
}

// NewCatalog constructs an empty catalog backed by bm and governed by
// opts. opts is also handed to every segment created through
// NewSegment/NewSegmentPacked so flags stay consistent process-wide.
func NewCatalog(bm bufmgr.Manager, opts Options) *Catalog {
	return &Catalog{
		Stats:    segstats.New(),
		BM:       bm,
		Opts:     opts,
		segments: make(map[uuid.UUID]*Segment),
	}
}

// NewSegment creates a new segment owned by this catalog, starting in
// whichever representation Options dictates at creation time (spec
// §4.C lifecycle: Packed at full width when succinct mode is on and
// adaptive mode is off, Uncompressed otherwise).
func (c *Catalog) NewSegment(typ Type, start, segmentSize int) *Segment {
	if c.Opts.SuccinctEnabled && !c.Opts.AdaptiveSuccinctCompressionEnabled {
		return NewTransientPacked(typ, start, segmentSize, c.BM, c, c.Opts)
	}
	return NewTransient(typ, start, segmentSize, c.BM, c, c.Opts)
}

func (c *Catalog) register(s *Segment) {
	c.mu.Lock()
	c.segments[s.id] = s
	c.mu.Unlock()
	if s.isDataSegment {
		c.Stats.AddSegment(s.id)
	}
}

func (c *Catalog) unregister(id uuid.UUID) {
	c.mu.Lock()
	delete(c.segments, id)
	c.mu.Unlock()
	c.Stats.RemoveSegment(id)
}

func (c *Catalog) recordRead(id uuid.UUID) {
	c.Stats.RecordRead(id)
}

// Lookup resolves a segment identity to its live *Segment, returning
// ok=false if the segment has since been destroyed (the controller
// must tolerate this per spec §4.E failure semantics).
func (c *Catalog) Lookup(id uuid.UUID) (*Segment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.segments[id]
	return s, ok
}

// TotalDataSize sums DataSizeBytes across every live data segment,
// matching the buffer manager's data_size counter when the engine is
// in a consistent state (spec's accounting invariant).
func (c *Catalog) TotalDataSize() int64 {
	return c.Stats.TotalDataSize(func(id uuid.UUID) (int64, bool) {
		s, ok := c.Lookup(id)
		if !ok {
			return 0, false
		}
		return s.DataSizeBytes(), true
	})
}

// Segments returns a snapshot slice of every live segment, for
// diagnostics and tests.
func (c *Catalog) Segments() []*Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Segment, 0, len(c.segments))
	for _, s := range c.segments {
		out = append(out, s)
	}
	return out
}

// FindByRow resolves an absolute row id to the live segment whose
// range contains it, the catalog-level counterpart of FetchRow's own
// bounds check.
func (c *Catalog) FindByRow(rowID int) (*Segment, bool) {
	for _, s := range c.Segments() {
		r := s.Range()
		if !r.Empty() && rowID >= r.Start && rowID < r.End {
			return s, true
		}
	}
	return nil, false
}

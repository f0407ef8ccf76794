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
	"github.com/google/uuid"

	"github.com/sneller-labs/succinct/controller"
)

// SnapshotRankedAscending implements controller.Registry.
func (c *Catalog) SnapshotRankedAscending() []controller.Ranked {
	rows := c.Stats.SnapshotRankedAscending()
	out := make([]controller.Ranked, len(rows))
	for i, r := range rows {
		out[i] = controller.Ranked{ID: [16]byte(r.ID), NumReads: r.NumReads}
	}
	return out
}

// ResetCounts implements controller.Registry.
func (c *Catalog) ResetCounts() { c.Stats.ResetCounts() }

// Compact implements controller.Registry: it looks up the segment
// identity in the catalog and issues Compact, tolerating the segment
// having been destroyed since the snapshot was taken (spec §4.E).
func (c *Catalog) Compact(id [16]byte) error {
	s, ok := c.Lookup(uuid.UUID(id))
	if !ok {
		return nil
	}
	return s.Compact()
}

// Uncompact implements controller.Registry, mirroring Compact.
func (c *Catalog) Uncompact(id [16]byte) error {
	s, ok := c.Lookup(uuid.UUID(id))
	if !ok {
		return nil
	}
	return s.Uncompact()
}

var _ controller.Registry = (*Catalog)(nil)

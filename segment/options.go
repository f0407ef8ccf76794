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

// Options carries the global configuration flags from spec §6. It is
// threaded explicitly into constructors rather than held in a package
// global, the way the teacher threads Cache.Logger and dcache.Flag
// rather than reaching for process-wide state.
type Options struct {
	// SuccinctEnabled is the master switch; when false every segment
	// stays Uncompressed and the controller never starts.
	SuccinctEnabled bool `json:"succinctEnabled"`
	// AdaptiveSuccinctCompressionEnabled switches control between
	// "compact on first scan" (false) and "controller decides" (true).
	// Mutually exclusive by construction: a segment either owns its
	// own lazy compaction or defers entirely to the controller; see
	// Segment.maybeLazyCompactLocked.
	AdaptiveSuccinctCompressionEnabled bool `json:"adaptiveSuccinctCompressionEnabled"`
	// PadToNextByte rounds every chosen bit width up to a multiple of 8.
	PadToNextByte bool `json:"paddedToNextByteEnabled"`
	// ExtractPrefix enables frame-of-reference: subtract the observed
	// minimum from every value before packing.
	ExtractPrefix bool `json:"extractPrefixEnabled"`
}

// LoadOptionsYAML parses a succinct.yaml-style tuning file into an
// Options value. Grounded on the teacher's use of sigs.k8s.io/yaml for
// round-tripping config structs through YAML via their JSON tags.
func LoadOptionsYAML(data []byte) (Options, error) {
	return loadOptionsYAML(data)
}

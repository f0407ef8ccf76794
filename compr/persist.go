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

package compr

// EncodePersistedPage compresses an uncompressed column-segment page
// with the given named algorithm, appending the result to dst. A
// transient segment always persists uncompressed (spec's Non-goals:
// "persistent segments are written uncompressed" refers to the
// logical representation, i.e. no bit-packing survives a restart) but
// the bytes written to the block manager still go through the same
// byte-level codec the rest of the database uses for on-disk blocks.
func EncodePersistedPage(alg string, page, dst []byte) ([]byte, error) {
	c := Compression(alg)
	if c == nil {
		return nil, &UnknownAlgorithmError{Name: alg}
	}
	return c.Compress(page, dst), nil
}

// DecodePersistedPage reverses EncodePersistedPage: dst must be sized
// to the original page length.
func DecodePersistedPage(alg string, src, dst []byte) error {
	d := Decompression(alg)
	if d == nil {
		return &UnknownAlgorithmError{Name: alg}
	}
	return d.Decompress(src, dst)
}

// UnknownAlgorithmError reports a name not recognized by Compression
// or Decompression.
type UnknownAlgorithmError struct {
	Name string
}

func (e *UnknownAlgorithmError) Error() string {
	return "compr: unknown algorithm " + e.Name
}

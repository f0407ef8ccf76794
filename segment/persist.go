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
	"github.com/sneller-labs/succinct/bufmgr"
	"github.com/sneller-labs/succinct/compr"
)

// persistAlgorithm is the byte-level codec used for the bytes a
// Persistent segment hands off to the block manager. Chosen for speed
// over ratio, matching the teacher's default block codec.
const persistAlgorithm = "s2"

// ConvertToPersistent forces the segment back to Uncompressed (if it
// is currently Packed) and marks it Persistent, a terminal state for
// this module: Persistent segments never re-pack again (spec §6,
// §4.C). The uncompressed page is additionally run through the same
// byte-level compressor the teacher uses for on-disk blocks, and the
// encoded form is retained in persisted; it returns the BlockHandle of
// the uncompressed bytes, which the (out-of-scope) checkpointing path
// would write to disk alongside the encoded form.
func (s *Segment) ConvertToPersistent() (bufmgr.BlockHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistent {
		return s.block, nil
	}
	if s.rep == repPacked {
		s.uncompactLocked()
	}
	enc, err := compr.EncodePersistedPage(persistAlgorithm, s.page[:s.count*s.typeSize], nil)
	if err != nil {
		return bufmgr.BlockHandle{}, internalErr("ConvertToPersistent", "%v", err)
	}
	s.persistedAlg = persistAlgorithm
	s.persisted = enc
	s.persistent = true
	return s.block, nil
}

// IsPersistent reports whether ConvertToPersistent has been called.
func (s *Segment) IsPersistent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistent
}

// PersistedPage returns the compr-encoded bytes produced by
// ConvertToPersistent, or ok=false if the segment isn't Persistent yet.
func (s *Segment) PersistedPage() (data []byte, alg string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.persistent {
		return nil, "", false
	}
	return s.persisted, s.persistedAlg, true
}

// DecodePersistedPage is the inverse of the encoding step
// ConvertToPersistent performs, exposed so a restart path can recover
// the uncompressed page from (alg, encoded) without a live Segment.
func DecodePersistedPage(alg string, encoded []byte, rows int, typ Type) ([]byte, error) {
	page := make([]byte, rows*typ.Size())
	if err := compr.DecodePersistedPage(alg, encoded, page); err != nil {
		return nil, internalErr("DecodePersistedPage", "%v", err)
	}
	return page, nil
}

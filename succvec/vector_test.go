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

package succvec

import (
	"math/rand"
	"testing"
)

func TestGetSetRoundTrip(t *testing.T) {
	widths := []uint8{1, 7, 13, 31, 64}
	for _, w := range widths {
		v := New(1000, w)
		want := make([]uint64, 1000)
		mask := uint64(1)<<w - 1
		if w == 64 {
			mask = ^uint64(0)
		}
		r := rand.New(rand.NewSource(int64(w)))
		for i := range want {
			want[i] = r.Uint64() & mask
			v.Set(i, want[i])
		}
		for i := range want {
			if got := v.Get(i); got != want[i] {
				t.Fatalf("width %d: index %d: got %d want %d", w, i, got, want[i])
			}
		}
	}
}

func TestSetTruncatesHighBits(t *testing.T) {
	v := New(4, 5)
	v.Set(0, 0xFFFFFFFF)
	if got := v.Get(0); got != 0x1F {
		t.Fatalf("got %d want 0x1F", got)
	}
}

func TestBitCompressPreservesValues(t *testing.T) {
	v := New(2048, 32)
	want := make([]uint64, 2048)
	for i := range want {
		want[i] = uint64(i % 100)
		v.Set(i, want[i])
	}
	v.BitCompress(7)
	if v.Width() != 7 {
		t.Fatalf("width = %d, want 7", v.Width())
	}
	for i := range want {
		if got := v.Get(i); got != want[i] {
			t.Fatalf("index %d: got %d want %d", i, got, want[i])
		}
	}
}

func TestBitCompressIdempotent(t *testing.T) {
	v := New(500, 16)
	for i := 0; i < 500; i++ {
		v.Set(i, uint64(i%50))
	}
	v.BitCompress(6)
	first := append([]uint64(nil), v.Data()...)
	v.BitCompress(6)
	second := v.Data()
	if len(first) != len(second) {
		t.Fatalf("word count changed on idempotent compress: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("word %d changed on idempotent compress", i)
		}
	}
}

func TestExpandWidthIsValuePreserving(t *testing.T) {
	v := New(300, 5)
	want := make([]uint64, 300)
	for i := range want {
		want[i] = uint64(i % 31)
		v.Set(i, want[i])
	}
	v.ExpandWidth(32)
	if v.Width() != 32 {
		t.Fatalf("width = %d, want 32", v.Width())
	}
	for i := range want {
		if got := v.Get(i); got != want[i] {
			t.Fatalf("index %d: got %d want %d", i, got, want[i])
		}
	}
}

func TestCrossWordBoundary(t *testing.T) {
	// width 13 guarantees frequent word-boundary crossings.
	v := New(100, 13)
	for i := 0; i < 100; i++ {
		val := uint64(i * 61 % (1 << 13))
		v.Set(i, val)
		if got := v.Get(i); got != val {
			t.Fatalf("index %d: got %d want %d", i, got, val)
		}
	}
}

func TestSizeInBytes(t *testing.T) {
	v := New(1_000_000, 20)
	want := ((1_000_000*20 + 63) / 64) * 8
	if v.SizeInBytes() != want {
		t.Fatalf("size = %d want %d", v.SizeInBytes(), want)
	}
}

func TestEmptyVector(t *testing.T) {
	v := New(0, 8)
	if v.Len() != 0 || v.SizeInBytes() != 0 {
		t.Fatalf("empty vector should have zero length and size")
	}
}

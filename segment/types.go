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

import "fmt"

// Type is one of the logical integer types this engine can pack.
// Only fixed-width integers participate in bit-packing (spec §4.D:
// "only integer types 8/16/32/64 are supported").
type Type uint8

const (
	U8 Type = iota
	U16
	U32
	U64
	I8
	I16
	I32
	I64
)

func (t Type) String() string {
	switch t {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Size returns the byte width of the logical element type.
func (t Type) Size() int {
	switch t {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32:
		return 4
	case U64, I64:
		return 8
	default:
		panic(fmt.Sprintf("segment: unsupported type %v", t))
	}
}

// Signed reports whether t is one of the signed integer types.
func (t Type) Signed() bool { return t >= I8 }

// Supported reports whether the codec has a compression function for
// t; all eight Type values are supported, and a segment is a data
// segment only when its type is (see newBase).
func (t Type) Supported() bool { return t <= I64 }

// nullSentinel returns the well-known reserved bit pattern stored for
// a null value of type t: the type's minimum representable value for
// signed types, and its maximum for unsigned types. Neither occurs in
// practice for the zipfian/sequential workloads this engine targets,
// and the value is never read back as meaningful data (spec §4.D).
func nullSentinel(t Type) uint64 {
	switch t {
	case U8:
		return 0xFF
	case U16:
		return 0xFFFF
	case U32:
		return 0xFFFFFFFF
	case U64:
		return 0xFFFFFFFFFFFFFFFF
	case I8:
		return uint64(uint8(0x80))
	case I16:
		return uint64(uint16(0x8000))
	case I32:
		return uint64(uint32(0x80000000))
	case I64:
		return uint64(0x8000000000000000)
	default:
		panic(fmt.Sprintf("segment: unsupported type %v", t))
	}
}

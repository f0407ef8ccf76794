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
	"fmt"
)

// Kind classifies the way a segment operation failed (spec §7).
type Kind uint8

const (
	// KindState: operation issued against the wrong representation.
	KindState Kind = iota
	// KindRange: scan/fetch row index out of bounds.
	KindRange
	// KindType: codec invoked with an unsupported logical type.
	KindType
	// KindCapacity: append attempted with no room left in the segment.
	KindCapacity
	// KindInternal: an invariant was violated.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindRange:
		return "range"
	case KindType:
		return "type"
	case KindCapacity:
		return "capacity"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error reports a failed segment operation, carrying the Kind so
// callers can branch on it with errors.Is against the package
// sentinels below.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("segment: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("segment: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRange) etc. match any *Error of the same
// Kind, without requiring identical Op/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values for errors.Is comparisons; only Kind is compared.
var (
	ErrState    = &Error{Kind: KindState}
	ErrRange    = &Error{Kind: KindRange}
	ErrType     = &Error{Kind: KindType}
	ErrCapacity = &Error{Kind: KindCapacity}
	ErrInternal = &Error{Kind: KindInternal}
)

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func stateErr(op string, format string, args ...interface{}) *Error {
	return newErr(KindState, op, fmt.Errorf(format, args...))
}

func rangeErr(op string, format string, args ...interface{}) *Error {
	return newErr(KindRange, op, fmt.Errorf(format, args...))
}

func typeErr(op string, format string, args ...interface{}) *Error {
	return newErr(KindType, op, fmt.Errorf(format, args...))
}

func internalErr(op string, format string, args ...interface{}) *Error {
	return newErr(KindInternal, op, fmt.Errorf(format, args...))
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

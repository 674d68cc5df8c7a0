// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package pv

// Status is the outcome of a per-channel save or restore. These are expected,
// frequent results in a live system, so they are result codes, not errors.
type Status int

const (
	// StatusAccessErr: not connected, or no read/write permission.
	StatusAccessErr Status = iota
	// StatusOK: the action succeeded.
	StatusOK
	// StatusNoValue: the value (save) or desired value (restore) is undefined.
	StatusNoValue
	// StatusEqual: the restore value already matches the live value.
	StatusEqual
	// StatusTypeErr: the value was rejected by the underlying write.
	StatusTypeErr
)

func (s Status) String() string {
	switch s {
	case StatusAccessErr:
		return "access error"
	case StatusOK:
		return "ok"
	case StatusNoValue:
		return "no value"
	case StatusEqual:
		return "equal"
	case StatusTypeErr:
		return "type error"
	default:
		return "unknown"
	}
}

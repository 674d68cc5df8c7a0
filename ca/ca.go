// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ca defines the boundary to the control-system client. The core
// engine only talks to channels through the Channel interface; the real
// network client and the simulated device both sit behind it.
package ca

import (
	"context"
	"errors"
	"time"
)

// Value holds a channel value. nil means "no value". Concrete types are
// float64, int64, string, []float64, []string, or []any for mixed sequences
// coming out of hand-edited save files.
type Value = any

// Metadata carries the extended channel attributes the GUI needs for display.
type Metadata struct {
	Units        string
	Precision    int
	ElementCount int
}

var (
	// ErrTimeout is returned by GetComplete when the read did not finish
	// within the given window. The read stays in flight and may be
	// completed by a later call.
	ErrTimeout = errors.New("ca: get timed out")

	// ErrDisconnected is returned by operations that need a live connection.
	ErrDisconnected = errors.New("ca: channel not connected")

	// ErrBadType is returned when a put value is rejected by the channel.
	ErrBadType = errors.New("ca: value type mismatch")

	// ErrNoGet is returned by GetComplete when no read is in flight.
	ErrNoGet = errors.New("ca: no get in flight")
)

// ConnectionCallback is invoked on every connection state change.
type ConnectionCallback func(connected bool)

// Channel is one open logical connection to a process variable.
//
// Get, GetStart/GetComplete and Put are independent: a blocking Get may be
// issued while a non-blocking read is in flight, but callers are expected to
// drain the in-flight read first (see pv.Entry).
type Channel interface {
	// Name returns the process variable name the channel is bound to.
	Name() string

	Connected() bool
	ReadAccess() bool
	WriteAccess() bool

	// Get performs a blocking read. If withMeta is set, extended metadata
	// is refreshed as part of the same request.
	Get(ctx context.Context, withMeta bool) (Value, error)

	// GetStart begins a non-blocking read. At most one read is in flight
	// per channel; starting another while one is pending is a no-op.
	GetStart() error

	// GetComplete waits up to timeout for the read begun by GetStart and
	// returns its value. A timeout <= 0 waits indefinitely. On ErrTimeout
	// the read stays pending.
	GetComplete(timeout time.Duration) (Value, error)

	// Put starts a non-blocking write and returns a channel that delivers
	// the completion outcome exactly once. A value the channel cannot
	// accept fails synchronously with ErrBadType.
	Put(value Value) (<-chan error, error)

	// Metadata fetches extended metadata (units, precision, element count).
	Metadata(ctx context.Context) (Metadata, error)

	// ElementCount reports the channel's true maximum element count. The
	// per-read count is not reliable below 2 elements, this is.
	ElementCount() int

	// OnConnection registers a callback for connection state changes.
	OnConnection(cb ConnectionCallback)

	Close() error
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package pv

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pvtools/pvsnap/ca"
)

// Entry is the per-channel cache object. It wraps an opaque ca.Channel and
// serves values from a cache kept fresh by the Updater, emulating continuous
// monitoring without per-channel subscriptions. Without an Updater it falls
// back to blocking reads.
//
// The mutex serializes the Updater's polling against synchronous callers;
// both must hold it before touching cached state.
type Entry struct {
	name string
	ch   ca.Channel

	mu          sync.Mutex
	lastValue   ca.Value
	initialized bool
	isArray     bool
	pending     bool // a non-blocking read is in flight
	meta        ca.Metadata

	cbMu    sync.Mutex
	nextCb  int
	connCbs []connCallback
}

type connCallback struct {
	id int
	fn ca.ConnectionCallback
}

// NewEntry creates a cache entry over ch and hooks the connection listener
// that keeps the array flag current.
func NewEntry(name string, ch ca.Channel) *Entry {
	e := &Entry{name: name, ch: ch}
	ch.OnConnection(e.onConnection)
	return e
}

// Name returns the resolved process variable name.
func (e *Entry) Name() string { return e.name }

// Channel returns the underlying channel handle.
func (e *Entry) Channel() ca.Channel { return e.ch }

// IsArray reports whether the channel is array-typed.
func (e *Entry) IsArray() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isArray
}

// Metadata returns the cached extended metadata (units, display precision).
// It is zero until the Updater has initialized the entry.
func (e *Entry) Metadata() ca.Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}

// Value returns the cached value. On the very first call, before the Updater
// has produced a value, it performs one blocking fetch (with metadata) and
// caches the result. It never touches the network after that.
func (e *Entry) Value(ctx context.Context) ca.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.valueLocked(ctx)
}

func (e *Entry) valueLocked(ctx context.Context) ca.Value {
	if !e.initialized {
		e.initialized = true
		e.drainLocked()
		if v, err := e.ch.Get(ctx, true); err == nil {
			e.lastValue = v
		}
	}
	return e.lastValue
}

// drainLocked finishes a non-blocking read left in flight by the Updater, so
// that a fresh blocking Get can be issued on the same channel.
func (e *Entry) drainLocked() {
	if !e.pending {
		return
	}
	v, err := e.ch.GetComplete(0)
	if err != nil {
		return
	}
	e.pending = false
	e.lastValue = v
}

// Save fetches the current value for persisting. It returns StatusAccessErr
// without touching the network when the channel is disconnected or not
// readable, StatusNoValue when the channel has no value, and the value with
// StatusOK otherwise.
func (e *Entry) Save(ctx context.Context) (ca.Value, Status) {
	if !e.ch.Connected() {
		return nil, StatusAccessErr
	}
	// Must come after the connection test. Probing access on a disconnected
	// channel makes the client attempt a reconnect, which takes time.
	if !e.ch.ReadAccess() {
		return nil, StatusAccessErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainLocked()

	v, err := e.ch.Get(ctx, false)
	if err != nil {
		v = nil
	}
	if e.isArray {
		v = NormalizeArray(v)
	}
	if v == nil {
		slog.Debug("no value returned for channel", "pv", e.name)
		return nil, StatusNoValue
	}
	return v, StatusOK
}

// Restore writes value to the channel if it differs from the current cached
// value (zero tolerance). The write is non-blocking; done receives the
// outcome exactly once and may run on a different goroutine than the caller.
func (e *Entry) Restore(ctx context.Context, value ca.Value, done func(Status)) {
	if done == nil {
		done = func(Status) {}
	}
	if !e.ch.Connected() {
		done(StatusAccessErr)
		return
	}
	// After the connection test, same as in Save.
	if !e.ch.WriteAccess() {
		done(StatusAccessErr)
		return
	}
	if value == nil {
		done(StatusNoValue)
		return
	}
	if e.EqualToCurrent(ctx, value) {
		done(StatusEqual)
		return
	}

	completion, err := e.ch.Put(value)
	if err != nil {
		if errors.Is(err, ca.ErrBadType) {
			done(StatusTypeErr)
		} else {
			done(StatusAccessErr)
		}
		return
	}
	go func() {
		if err := <-completion; errors.Is(err, ca.ErrBadType) {
			done(StatusTypeErr)
		} else {
			done(StatusOK)
		}
	}()
}

// EqualToCurrent compares value to the current cached value with zero
// tolerance.
func (e *Entry) EqualToCurrent(ctx context.Context, value ca.Value) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Compare(value, e.valueLocked(ctx), e.isArray, 0)
}

// AddConnectionCallback registers cb for connection state changes and returns
// a handle for later removal. Callbacks run in registration order.
func (e *Entry) AddConnectionCallback(cb ca.ConnectionCallback) int {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	id := e.nextCb
	e.nextCb++
	e.connCbs = append(e.connCbs, connCallback{id: id, fn: cb})
	return id
}

// RemoveConnectionCallback removes the callback registered under id.
func (e *Entry) RemoveConnectionCallback(id int) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	for i, cb := range e.connCbs {
		if cb.id == id {
			e.connCbs = append(e.connCbs[:i], e.connCbs[i+1:]...)
			return
		}
	}
}

// ClearConnectionCallbacks removes all registered connection callbacks.
func (e *Entry) ClearConnectionCallbacks() {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.connCbs = nil
}

func (e *Entry) onConnection(connected bool) {
	// The client's per-read element count is not reliable below 2 elements;
	// the channel-level count is.
	e.mu.Lock()
	e.isArray = e.ch.ElementCount() > 1
	e.mu.Unlock()

	e.cbMu.Lock()
	cbs := make([]connCallback, len(e.connCbs))
	copy(cbs, e.connCbs)
	e.cbMu.Unlock()

	for _, cb := range cbs {
		cb.fn(connected)
	}
}

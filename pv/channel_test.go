// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package pv

import (
	"context"
	"sync"
	"time"

	"github.com/pvtools/pvsnap/ca"
)

// fakeChannel is a controllable ca.Channel for the engine tests.
type fakeChannel struct {
	mu           sync.Mutex
	name         string
	connected    bool
	readAccess   bool
	writeAccess  bool
	value        ca.Value
	elementCount int
	meta         ca.Metadata
	metaErr      error
	readDelay    time.Duration // latency of non-blocking reads
	pending      chan ca.Value

	putErr        error // synchronous Put rejection
	putCompletion error // asynchronous completion outcome
	puts          []ca.Value

	getCalls  int
	metaCalls int
	cbs       []ca.ConnectionCallback
}

func newFakeChannel(name string, value ca.Value) *fakeChannel {
	return &fakeChannel{
		name:         name,
		connected:    true,
		readAccess:   true,
		writeAccess:  true,
		value:        value,
		elementCount: 1,
	}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) ReadAccess() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readAccess
}

func (f *fakeChannel) WriteAccess() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeAccess
}

func (f *fakeChannel) Get(ctx context.Context, withMeta bool) (ca.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, ca.ErrDisconnected
	}
	f.getCalls++
	return f.value, nil
}

func (f *fakeChannel) GetStart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ca.ErrDisconnected
	}
	if f.pending != nil {
		return nil
	}
	result := make(chan ca.Value, 1)
	delay := f.readDelay
	value := f.value
	go func() {
		time.Sleep(delay)
		result <- value
	}()
	f.pending = result
	return nil
}

func (f *fakeChannel) GetComplete(timeout time.Duration) (ca.Value, error) {
	f.mu.Lock()
	pending := f.pending
	f.mu.Unlock()
	if pending == nil {
		return nil, ca.ErrNoGet
	}

	var v ca.Value
	if timeout <= 0 {
		v = <-pending
	} else {
		select {
		case v = <-pending:
		case <-time.After(timeout):
			return nil, ca.ErrTimeout
		}
	}
	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()
	return v, nil
}

func (f *fakeChannel) Put(value ca.Value) (<-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, ca.ErrDisconnected
	}
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, value)
	completion := make(chan error, 1)
	completion <- f.putCompletion
	return completion, nil
}

func (f *fakeChannel) Metadata(ctx context.Context) (ca.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaCalls++
	if f.metaErr != nil {
		return ca.Metadata{}, f.metaErr
	}
	return f.meta, nil
}

func (f *fakeChannel) ElementCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elementCount
}

func (f *fakeChannel) OnConnection(cb ca.ConnectionCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cbs = append(f.cbs, cb)
}

func (f *fakeChannel) Close() error { return nil }

// fireConnection invokes the registered connection callbacks, emulating a
// client-side connection event.
func (f *fakeChannel) fireConnection(connected bool) {
	f.mu.Lock()
	f.connected = connected
	cbs := append([]ca.ConnectionCallback(nil), f.cbs...)
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(connected)
	}
}

func (f *fakeChannel) setValue(v ca.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
}

func (f *fakeChannel) getCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeChannel) putValues() []ca.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ca.Value(nil), f.puts...)
}

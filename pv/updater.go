// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package pv

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pvtools/pvsnap/ca"
)

const (
	// DefaultPeriod is the polling period used when none is configured.
	DefaultPeriod = time.Second

	// sleepQuantum bounds how long a stop request can go unnoticed.
	sleepQuantum = 100 * time.Millisecond
)

// CycleCallback receives the values observed in one polling cycle, ordered by
// entry registration order. A nil element means the read did not complete
// within the cycle.
type CycleCallback func(values []ca.Value)

// Updater runs a dedicated goroutine that periodically refreshes the cached
// values of all registered entries. One shared non-blocking read is dispatched
// across all channels with a bounded join window, which keeps the worst-case
// cycle latency near one period no matter how many channels are slow or
// disconnected.
type Updater struct {
	// Period is the polling period. Set it before Start; zero selects
	// DefaultPeriod.
	Period time.Duration

	callback CycleCallback
	workers  *Workers

	mu        sync.Mutex
	entries   []*Entry
	suspended bool
	started   bool

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewUpdater creates an Updater and registers it with the workers registry.
// callback may be nil.
func NewUpdater(workers *Workers, callback CycleCallback) *Updater {
	if callback == nil {
		callback = func([]ca.Value) {}
	}
	u := &Updater{
		Period:   DefaultPeriod,
		callback: callback,
		workers:  workers,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if workers != nil {
		workers.Register(u)
	}
	return u
}

// SetEntries replaces the set of polled entries.
func (u *Updater) SetEntries(entries []*Entry) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.entries = make([]*Entry, len(entries))
	copy(u.entries, entries)
}

// Start launches the polling goroutine.
func (u *Updater) Start() {
	u.mu.Lock()
	if u.Period <= 0 {
		u.Period = DefaultPeriod
	}
	u.started = true
	u.mu.Unlock()
	go u.run()
}

// Stop requests the polling goroutine to quit and joins it. After Stop
// returns no further cache writes occur. Safe to call more than once.
func (u *Updater) Stop() {
	u.stopOnce.Do(func() { close(u.quit) })
	u.mu.Lock()
	started := u.started
	u.mu.Unlock()
	if started {
		<-u.done
	}
}

// Suspend makes subsequent cycles no-ops until Resume is called.
func (u *Updater) Suspend() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.suspended = true
}

// Resume re-enables polling after Suspend.
func (u *Updater) Resume() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.suspended = false
}

// Close unregisters the Updater from the workers registry and stops it.
func (u *Updater) Close() {
	if u.workers != nil {
		u.workers.Unregister(u)
	}
	u.Stop()
}

func (u *Updater) run() {
	defer close(u.done)
	deadline := time.Now().Add(u.Period)
	for {
		// Sleep in small increments so stop requests are honored promptly.
		for time.Now().Before(deadline) {
			select {
			case <-u.quit:
				return
			case <-time.After(sleepQuantum):
			}
		}
		deadline = time.Now().Add(u.Period)

		u.mu.Lock()
		if u.suspended { // this check needs the lock
			u.mu.Unlock()
			continue
		}
		entries := u.entries

		slog.Debug("started getting pv values", "count", len(entries))

		reportedInitTimeout := false
		for _, e := range entries {
			e.mu.Lock()
			if !e.initialized && e.ch.Connected() {
				// Units and precision will be needed for display. Fetch
				// and cache them now so on-demand callers won't have to.
				mctx, cancel := context.WithTimeout(context.Background(), u.Period)
				md, err := e.ch.Metadata(mctx)
				cancel()
				if err == nil {
					e.meta = md
					e.initialized = true
				} else if !reportedInitTimeout {
					reportedInitTimeout = true
					slog.Debug("some connected pvs are timing out while fetching metadata, causing slowdowns")
				}
			}
			// The metadata request does not carry the value, so the read is
			// issued either way; the two requests are orthogonal in the
			// client. Disconnected channels simply fail to start.
			if err := e.ch.GetStart(); err == nil {
				e.pending = true
			}
		}

		vals := make([]ca.Value, len(entries))
		for i, e := range entries {
			if !e.pending {
				continue
			}
			v, err := e.ch.GetComplete(u.Period)
			if err != nil {
				// Timed out; the read stays pending and is retried (or
				// completed) next cycle. The cached value is unchanged.
				continue
			}
			e.pending = false
			e.lastValue = v
			vals[i] = v
		}

		for _, e := range entries {
			e.mu.Unlock()
		}
		u.mu.Unlock()

		slog.Debug("finished getting pv values")
		u.callback(vals)
	}
}

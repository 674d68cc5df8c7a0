// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package pv

import "sync"

// Worker is a long-running background task that can be paused.
type Worker interface {
	Suspend()
	Resume()
}

// Workers coordinates suspension of all registered background workers. It is
// reference counted: independent call sites may request suspension for
// unrelated reasons, and the workers only resume once every request has been
// withdrawn. The registered workers' Suspend/Resume are invoked only on the
// 0->1 and 1->0 transitions.
type Workers struct {
	mu      sync.Mutex
	workers []Worker
	count   int
}

// NewWorkers creates an empty registry.
func NewWorkers() *Workers {
	return &Workers{}
}

// Register adds w to the registry. Registering the same worker twice is a
// no-op.
func (ws *Workers) Register(w Worker) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, existing := range ws.workers {
		if existing == w {
			return
		}
	}
	ws.workers = append(ws.workers, w)
}

// Unregister removes w from the registry.
func (ws *Workers) Unregister(w Worker) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for i, existing := range ws.workers {
		if existing == w {
			ws.workers = append(ws.workers[:i], ws.workers[i+1:]...)
			return
		}
	}
}

// Suspend pauses all registered workers on the first outstanding request.
func (ws *Workers) Suspend() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.count == 0 {
		for _, w := range ws.workers {
			w.Suspend()
		}
	}
	ws.count++
}

// Resume withdraws one suspension request, resuming the workers when it was
// the last one. Calling Resume without a matching Suspend is a no-op.
func (ws *Workers) Resume() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.count == 0 {
		return
	}
	ws.count--
	if ws.count == 0 {
		for _, w := range ws.workers {
			w.Resume()
		}
	}
}

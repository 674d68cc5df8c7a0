// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package store persists the simulated device's PV table.
package store

import (
	"sort"
	"sync"

	"github.com/pvtools/pvsnap/ca"
)

// Table holds the simulated device's process variables in memory.
type Table struct {
	mu     sync.RWMutex
	values map[string]ca.Value
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{values: map[string]ca.Value{}}
}

// Get returns the value stored under name.
func (t *Table) Get(name string) (ca.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[name]
	return v, ok
}

// Set stores value under name.
func (t *Table) Set(name string, value ca.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[name] = value
}

// Names returns all stored PV names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.values))
	for n := range t.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the table contents.
func (t *Table) Snapshot() map[string]ca.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ca.Value, len(t.values))
	for n, v := range t.values {
		out[n] = v
	}
	return out
}

// Storage is the persistence backend behind a simulated device.
type Storage interface {
	// Load loads the PV table from storage. If no data exists it returns a
	// new empty table.
	Load() (*Table, error)

	// Save persists the whole table.
	Save(t *Table) error

	// OnWrite is a hook called whenever one PV is modified, allowing the
	// storage to persist in real time.
	OnWrite(name string)

	Close() error
}

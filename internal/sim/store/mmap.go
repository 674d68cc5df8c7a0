// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package store

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// MmapStorage persists scalar numeric PVs through a memory-mapped file with a
// fixed slot layout (see layout.go). Non-numeric and array values are kept in
// memory only; a name longer than a slot cannot be stored at all.
//
// The mutex serializes slot allocation and region writes; puts complete on
// their own goroutines, so OnWrite runs concurrently.
type MmapStorage struct {
	path string
	file *os.File

	mu    sync.Mutex
	data  mmap.MMap
	table *Table
	slots map[string]int
	next  int
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load maps the backing file and builds the table from its occupied slots.
func (ms *MmapStorage) Load() (*Table, error) {
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}
	ms.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	ms.data = data

	t := NewTable()
	ms.slots = make(map[string]int)
	ms.next = 0
	for slot := 0; slot < maxSlots; slot++ {
		name := slotName(data, slot)
		if name == "" {
			continue
		}
		t.Set(name, slotValue(data, slot))
		ms.slots[name] = slot
		if slot >= ms.next {
			ms.next = slot + 1
		}
	}
	ms.table = t
	return t, nil
}

// Save flushes the mmap to disk.
func (ms *MmapStorage) Save(t *Table) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	return ms.data.Flush()
}

// OnWrite stores the modified PV in its slot and flushes.
func (ms *MmapStorage) OnWrite(name string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.data == nil || ms.table == nil {
		return
	}
	v, ok := ms.table.Get(name)
	if !ok {
		return
	}
	f, ok := asScalarFloat(v)
	if !ok {
		slog.Debug("mmap store holds scalar numeric pvs only, value not persisted", "pv", name)
		return
	}

	slot, ok := ms.slots[name]
	if !ok {
		if ms.next >= maxSlots || len(name) > slotNameSize {
			slog.Warn("mmap store cannot persist pv", "pv", name)
			return
		}
		slot = ms.next
		ms.next++
		ms.slots[name] = slot
	}
	setSlot(ms.data, slot, name, f)

	if err := ms.data.Flush(); err != nil {
		slog.Error("failed to flush mmap", "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}

func asScalarFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

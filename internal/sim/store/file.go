// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package store

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	json "github.com/goccy/go-json"
)

// FileStorage persists the PV table as a JSON document. Every write syncs the
// whole table, so the file survives an unclean shutdown. Syncs are serialized;
// puts complete on their own goroutines.
type FileStorage struct {
	path  string
	table *Table

	mu sync.Mutex
}

// NewFileStorage creates a FileStorage backed by path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load reads the table from the backing file, creating an empty one when the
// file does not exist yet.
func (fs *FileStorage) Load() (*Table, error) {
	t := NewTable()
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			fs.table = t
			return t, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode store file: %w", err)
	}
	for name, v := range values {
		t.Set(name, v)
	}
	fs.table = t
	return t, nil
}

// Save writes the whole table to disk.
func (fs *FileStorage) Save(t *Table) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, err := json.Marshal(t.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}
	if err := os.WriteFile(fs.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}

// OnWrite persists the table after each modification.
func (fs *FileStorage) OnWrite(name string) {
	if fs.table == nil {
		return
	}
	if err := fs.Save(fs.table); err != nil {
		slog.Error("failed to sync store file", "err", err)
	}
}

func (fs *FileStorage) Close() error {
	return nil
}

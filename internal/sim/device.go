// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package sim provides a simulated control-system device implementing the
// ca.Channel interface. It backs the CLI when no real control system is
// reachable and the engine tests.
package sim

import (
	"github.com/pvtools/pvsnap/ca"
	"github.com/pvtools/pvsnap/internal/sim/store"
)

// Device is one simulated control-system host: a PV table with pluggable
// persistence.
type Device struct {
	table   *store.Table
	storage store.Storage
}

// NewDevice loads the PV table from storage.
func NewDevice(storage store.Storage) (*Device, error) {
	table, err := storage.Load()
	if err != nil {
		return nil, err
	}
	return &Device{table: table, storage: storage}, nil
}

// Get returns the value of the named PV.
func (d *Device) Get(name string) (ca.Value, bool) {
	return d.table.Get(name)
}

// Set stores a PV value and notifies the persistence hook.
func (d *Device) Set(name string, value ca.Value) {
	d.table.Set(name, value)
	d.storage.OnWrite(name)
}

// Names lists all PVs the device knows about.
func (d *Device) Names() []string {
	return d.table.Names()
}

// Close persists the table and releases the storage.
func (d *Device) Close() error {
	if err := d.storage.Save(d.table); err != nil {
		d.storage.Close()
		return err
	}
	return d.storage.Close()
}

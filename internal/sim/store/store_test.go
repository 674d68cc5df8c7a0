// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package store

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestTable(t *testing.T) {
	tbl := NewTable()
	tbl.Set("b", 2.0)
	tbl.Set("a", 1.0)

	if v, ok := tbl.Get("a"); !ok || v != 1.0 {
		t.Fatalf("got %v, %v", v, ok)
	}
	if _, ok := tbl.Get("missing"); ok {
		t.Fatal("missing name must not be found")
	}
	if names := tbl.Names(); !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Fatalf("names = %v", names)
	}

	snap := tbl.Snapshot()
	snap["a"] = 9.0
	if v, _ := tbl.Get("a"); v != 1.0 {
		t.Fatal("snapshot must be a copy")
	}
}

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pvs.json")

	fs := NewFileStorage(path)
	tbl, err := fs.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Names()) != 0 {
		t.Fatalf("fresh store should be empty, got %v", tbl.Names())
	}

	tbl.Set("sim:current", 3.5)
	tbl.Set("sim:mode", "auto")
	fs.OnWrite("sim:current")
	if err := fs.Save(tbl); err != nil {
		t.Fatal(err)
	}
	if err := fs.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewFileStorage(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := reloaded.Get("sim:current"); v != 3.5 {
		t.Errorf("sim:current = %v", v)
	}
	if v, _ := reloaded.Get("sim:mode"); v != "auto" {
		t.Errorf("sim:mode = %v", v)
	}
}

func TestMmapStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pvs.mmap")

	ms := NewMmapStorage(path)
	tbl, err := ms.Load()
	if err != nil {
		t.Fatal(err)
	}
	tbl.Set("sim:current", 3.5)
	ms.OnWrite("sim:current")
	tbl.Set("sim:count", 42)
	ms.OnWrite("sim:count")
	if err := ms.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded := NewMmapStorage(path)
	tbl2, err := reloaded.Load()
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()

	if v, _ := tbl2.Get("sim:current"); v != 3.5 {
		t.Errorf("sim:current = %v", v)
	}
	// Integers come back as float64, the slot holds a raw float.
	if v, _ := tbl2.Get("sim:count"); v != 42.0 {
		t.Errorf("sim:count = %v", v)
	}
}

func TestMmapStorageSkipsNonScalars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pvs.mmap")

	ms := NewMmapStorage(path)
	tbl, err := ms.Load()
	if err != nil {
		t.Fatal(err)
	}
	tbl.Set("sim:wave", []float64{1, 2, 3})
	ms.OnWrite("sim:wave")
	tbl.Set("sim:mode", "auto")
	ms.OnWrite("sim:mode")
	if err := ms.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded := NewMmapStorage(path)
	tbl2, err := reloaded.Load()
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()

	if names := tbl2.Names(); len(names) != 0 {
		t.Fatalf("non-scalar values must not be persisted, got %v", names)
	}
}

func TestSQLStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pvs.db")

	s := NewSQLStorage(path)
	tbl, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	tbl.Set("sim:current", 3.5)
	s.OnWrite("sim:current")
	tbl.Set("sim:mode", "auto")
	s.OnWrite("sim:mode")
	tbl.Set("sim:current", 4.5)
	s.OnWrite("sim:current")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded := NewSQLStorage(path)
	tbl2, err := reloaded.Load()
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()

	if v, _ := tbl2.Get("sim:current"); v != 4.5 {
		t.Errorf("sim:current = %v", v)
	}
	if v, _ := tbl2.Get("sim:mode"); v != "auto" {
		t.Errorf("sim:mode = %v", v)
	}
}

func TestMmapStorageReusesSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pvs.mmap")

	ms := NewMmapStorage(path)
	tbl, err := ms.Load()
	if err != nil {
		t.Fatal(err)
	}
	tbl.Set("sim:pv", 1.0)
	ms.OnWrite("sim:pv")
	tbl.Set("sim:pv", 2.0)
	ms.OnWrite("sim:pv")
	if ms.next != 1 {
		t.Fatalf("rewriting a pv must reuse its slot, next = %d", ms.next)
	}
	if err := ms.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded := NewMmapStorage(path)
	tbl2, err := reloaded.Load()
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()
	if v, _ := tbl2.Get("sim:pv"); v != 2.0 {
		t.Errorf("sim:pv = %v", v)
	}
}

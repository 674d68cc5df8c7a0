// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/pvtools/pvsnap/ca"
)

// SQLStorage persists the PV table in a SQLite database, one row per PV with
// the value stored as a JSON literal. Every write upserts its row, so the
// database keeps up with the device in real time.
type SQLStorage struct {
	dsn   string
	db    *sql.DB
	table *Table
}

// NewSQLStorage creates a SQLStorage backed by the SQLite database at dsn.
func NewSQLStorage(dsn string) *SQLStorage {
	return &SQLStorage{dsn: dsn}
}

// Load opens the database and builds the table from its rows.
func (s *SQLStorage) Load() (*Table, error) {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	rows, err := db.Query("SELECT name, value FROM pvs")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query pvs: %w", err)
	}
	defer rows.Close()

	t := NewTable()
	for rows.Next() {
		var name, literal string
		if err := rows.Scan(&name, &literal); err != nil {
			continue
		}
		var v ca.Value
		if err := json.Unmarshal([]byte(literal), &v); err != nil {
			slog.Warn("skipping undecodable pv row", "pv", name, "err", err)
			continue
		}
		t.Set(name, v)
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read pvs: %w", err)
	}
	s.table = t
	return t, nil
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS pvs (
		name TEXT PRIMARY KEY,
		value TEXT
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save is a no-op; OnWrite keeps every row current.
func (s *SQLStorage) Save(t *Table) error {
	return nil
}

// OnWrite upserts the modified PV's row.
func (s *SQLStorage) OnWrite(name string) {
	if s.db == nil || s.table == nil {
		return
	}
	v, ok := s.table.Get(name)
	if !ok {
		return
	}
	literal, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode pv", "pv", name, "err", err)
		return
	}

	query := "INSERT INTO pvs (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value=excluded.value"
	if _, err := s.db.Exec(query, name, string(literal)); err != nil {
		slog.Error("failed to persist pv", "pv", name, "err", err)
	}
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

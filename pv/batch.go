// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package pv

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pvtools/pvsnap/ca"
)

// batchParallel bounds how many channels are saved or restored at once.
const batchParallel = 16

// SaveResult is the outcome of saving one entry.
type SaveResult struct {
	Name   string
	Value  ca.Value
	Status Status
}

// SaveAll saves every entry with bounded parallelism. Results are ordered
// like entries. Callers typically suspend the workers registry around the
// batch so polling does not compete for the entry guards.
func SaveAll(ctx context.Context, entries []*Entry) []SaveResult {
	results := make([]SaveResult, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallel)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			v, st := e.Save(ctx)
			results[i] = SaveResult{Name: e.Name(), Value: v, Status: st}
			return nil
		})
	}
	g.Wait() // workers never return errors, statuses carry the outcome
	return results
}

// RestoreAll restores values into entries with bounded parallelism, waiting
// for every asynchronous completion before returning. Entries without a value
// in values are reported as StatusNoValue.
func RestoreAll(ctx context.Context, entries []*Entry, values map[string]ca.Value) map[string]Status {
	statuses := make([]Status, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallel)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			got := make(chan Status, 1)
			e.Restore(ctx, values[e.Name()], func(s Status) { got <- s })
			statuses[i] = <-got
			return nil
		})
	}
	g.Wait()

	out := make(map[string]Status, len(entries))
	for i, e := range entries {
		out[e.Name()] = statuses[i]
	}
	return out
}

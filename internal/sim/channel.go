// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package sim

import (
	"context"
	"sync"
	"time"

	"github.com/pvtools/pvsnap/ca"
)

type getResult struct {
	value ca.Value
	err   error
}

// Channel implements ca.Channel against a simulated Device. Latency and
// access flags are adjustable so tests can model slow, disconnected or
// read-only channels.
type Channel struct {
	name string
	dev  *Device

	mu           sync.Mutex
	connected    bool
	readAccess   bool
	writeAccess  bool
	elementCount int
	meta         ca.Metadata
	latency      time.Duration
	pending      chan getResult
	cbs          []ca.ConnectionCallback
}

// NewChannel creates a disconnected channel bound to name. Call Connect to
// bring it up.
func NewChannel(name string, dev *Device) *Channel {
	return &Channel{
		name:         name,
		dev:          dev,
		readAccess:   true,
		writeAccess:  true,
		elementCount: 1,
	}
}

// Connect marks the channel connected, derives the element count from the
// stored value and fires the connection callbacks in registration order.
func (c *Channel) Connect() {
	c.mu.Lock()
	c.connected = true
	if v, ok := c.dev.Get(c.name); ok {
		if n := seqLen(v); n > c.elementCount {
			c.elementCount = n
		}
	}
	cbs := append([]ca.ConnectionCallback(nil), c.cbs...)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(true)
	}
}

// Disconnect marks the channel disconnected and fires the callbacks.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.connected = false
	cbs := append([]ca.ConnectionCallback(nil), c.cbs...)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(false)
	}
}

// SetAccess adjusts the simulated read/write permissions.
func (c *Channel) SetAccess(read, write bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readAccess = read
	c.writeAccess = write
}

// SetLatency sets the simulated network round-trip time.
func (c *Channel) SetLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = d
}

// SetMetadata sets the metadata reported by the channel.
func (c *Channel) SetMetadata(meta ca.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = meta
	if meta.ElementCount > 0 {
		c.elementCount = meta.ElementCount
	}
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) ReadAccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.readAccess
}

func (c *Channel) WriteAccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.writeAccess
}

func (c *Channel) Get(ctx context.Context, withMeta bool) (ca.Value, error) {
	c.mu.Lock()
	connected := c.connected
	latency := c.latency
	c.mu.Unlock()

	if !connected {
		return nil, ca.ErrDisconnected
	}
	if err := sleepCtx(ctx, latency); err != nil {
		return nil, err
	}
	v, _ := c.dev.Get(c.name)
	return v, nil
}

func (c *Channel) GetStart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ca.ErrDisconnected
	}
	if c.pending != nil {
		// One read in flight per channel.
		return nil
	}

	result := make(chan getResult, 1)
	latency := c.latency
	go func() {
		time.Sleep(latency)
		v, _ := c.dev.Get(c.name)
		result <- getResult{value: v}
	}()
	c.pending = result
	return nil
}

func (c *Channel) GetComplete(timeout time.Duration) (ca.Value, error) {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return nil, ca.ErrNoGet
	}

	var res getResult
	if timeout <= 0 {
		res = <-pending
	} else {
		select {
		case res = <-pending:
		case <-time.After(timeout):
			return nil, ca.ErrTimeout
		}
	}

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	return res.value, res.err
}

func (c *Channel) Put(value ca.Value) (<-chan error, error) {
	c.mu.Lock()
	connected := c.connected
	latency := c.latency
	c.mu.Unlock()

	if !connected {
		return nil, ca.ErrDisconnected
	}
	if current, ok := c.dev.Get(c.name); ok && current != nil && !typeCompatible(current, value) {
		return nil, ca.ErrBadType
	}

	completion := make(chan error, 1)
	go func() {
		time.Sleep(latency)
		c.dev.Set(c.name, value)
		completion <- nil
	}()
	return completion, nil
}

func (c *Channel) Metadata(ctx context.Context) (ca.Metadata, error) {
	c.mu.Lock()
	connected := c.connected
	latency := c.latency
	meta := c.meta
	meta.ElementCount = c.elementCount
	c.mu.Unlock()

	if !connected {
		return ca.Metadata{}, ca.ErrDisconnected
	}
	if err := sleepCtx(ctx, latency); err != nil {
		return ca.Metadata{}, err
	}
	return meta, nil
}

func (c *Channel) ElementCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elementCount
}

func (c *Channel) OnConnection(cb ca.ConnectionCallback) {
	c.mu.Lock()
	c.cbs = append(c.cbs, cb)
	connected := c.connected
	c.mu.Unlock()

	// A listener added to an already connected channel learns the current
	// state right away.
	if connected {
		cb(true)
	}
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.cbs = nil
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func seqLen(v ca.Value) int {
	switch s := v.(type) {
	case []float64:
		return len(s)
	case []string:
		return len(s)
	case []any:
		return len(s)
	default:
		return 1
	}
}

func typeCompatible(current, next ca.Value) bool {
	return kindOf(current) == kindOf(next)
}

func kindOf(v ca.Value) string {
	switch s := v.(type) {
	case float64, float32, int, int32, int64:
		return "number"
	case string:
		return "string"
	case []float64:
		return "number-seq"
	case []string:
		return "string-seq"
	case []any:
		for _, e := range s {
			if _, ok := e.(string); ok {
				return "string-seq"
			}
		}
		return "number-seq"
	default:
		return "other"
	}
}

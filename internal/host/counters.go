// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package host

import (
	"context"
	"math"
	"sync/atomic"
)

// Introspector is the read side of the host's runtime counters.
type Introspector interface {
	AverageFPS() float64
	TickRate() int
	EntityCount() int
	ChunkCount() int
}

// MemorySource is implemented by hosts that report their own memory figures.
// ok is false when the figures are not available yet.
type MemorySource interface {
	Memory() (used, total uint64, ok bool)
}

// Reinitializer is implemented by hosts that rebuild state after reload hooks.
type Reinitializer interface {
	Reinitialize(ctx context.Context) error
}

// Counters is a lock-free Introspector the host updates from its own loop.
type Counters struct {
	fps      atomic.Uint64 // math.Float64bits
	tickRate atomic.Int64
	entities atomic.Int64
	chunks   atomic.Int64
	memUsed  atomic.Uint64
	memTotal atomic.Uint64
}

// NewCounters creates zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) SetAverageFPS(fps float64) { c.fps.Store(math.Float64bits(fps)) }
func (c *Counters) SetTickRate(rate int)      { c.tickRate.Store(int64(rate)) }
func (c *Counters) SetEntityCount(n int)      { c.entities.Store(int64(n)) }
func (c *Counters) SetChunkCount(n int)       { c.chunks.Store(int64(n)) }

// SetMemory records host-reported memory. A zero total clears the figures
// so samplers fall back to process statistics.
func (c *Counters) SetMemory(used, total uint64) {
	c.memUsed.Store(used)
	c.memTotal.Store(total)
}

func (c *Counters) AverageFPS() float64 { return math.Float64frombits(c.fps.Load()) }
func (c *Counters) TickRate() int       { return int(c.tickRate.Load()) }
func (c *Counters) EntityCount() int    { return int(c.entities.Load()) }
func (c *Counters) ChunkCount() int     { return int(c.chunks.Load()) }

// Memory implements MemorySource.
func (c *Counters) Memory() (used, total uint64, ok bool) {
	total = c.memTotal.Load()
	if total == 0 {
		return 0, 0, false
	}
	return c.memUsed.Load(), total, true
}

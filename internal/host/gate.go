// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadyPaused is returned by Pause when the gate is already paused.
	ErrAlreadyPaused = errors.New("host gate already paused")

	// ErrDrainTimeout is returned by Pause when in-flight work did not
	// finish within the caller's deadline. The gate is resumed before return.
	ErrDrainTimeout = errors.New("host work did not drain before deadline")
)

type txKey struct{}

// WithinTransaction marks ctx as running inside a reload transaction.
// Guarded work carrying such a context is admitted while the gate is paused.
func WithinTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, true)
}

// InTransaction reports whether ctx was marked by WithinTransaction.
func InTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// Gate admits host work and lets the reload orchestrator pause it.
//
// While paused, Enter blocks until Resume or until the caller's context is
// done. Pause waits for in-flight work to Leave, bounded by its context.
type Gate struct {
	mu       sync.Mutex
	paused   bool
	inflight int
	resumed  chan struct{} // closed on Resume
	drained  chan struct{} // closed when inflight reaches zero during Pause
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Enter admits one unit of host work. Every successful Enter must be paired
// with Leave.
func (g *Gate) Enter(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.paused || InTransaction(ctx) {
			g.inflight++
			g.mu.Unlock()
			return nil
		}
		wait := g.resumed
		g.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Leave releases one unit of host work.
func (g *Gate) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inflight > 0 {
		g.inflight--
	}
	if g.inflight == 0 && g.drained != nil {
		close(g.drained)
		g.drained = nil
	}
}

// Pause stops admitting new work and waits for in-flight work to drain.
// On deadline the gate is resumed and ErrDrainTimeout is returned.
func (g *Gate) Pause(ctx context.Context) error {
	g.mu.Lock()
	if g.paused {
		g.mu.Unlock()
		return ErrAlreadyPaused
	}
	g.paused = true
	g.resumed = make(chan struct{})
	if g.inflight == 0 {
		g.mu.Unlock()
		return nil
	}
	drained := make(chan struct{})
	g.drained = drained
	g.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		remaining := g.inflight
		g.mu.Unlock()
		g.Resume()
		return fmt.Errorf("%w: %d task(s) still running: %w", ErrDrainTimeout, remaining, ctx.Err())
	}
}

// Resume reopens the gate and wakes every waiting Enter.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		return
	}
	g.paused = false
	g.drained = nil
	close(g.resumed)
}

// Paused reports whether the gate is paused.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// InFlight returns the number of admitted units of work.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight
}

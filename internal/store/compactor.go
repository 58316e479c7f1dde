// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package store

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/models"
)

// Compactor periodically prunes old records and runs value log GC.
type Compactor struct {
	store *BadgerStore
	cfg   Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewCompactor creates a compactor for s.
func NewCompactor(s *BadgerStore) *Compactor {
	return &Compactor{store: s, cfg: s.Config()}
}

// Start begins the background compaction loop.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	logging.Info().Dur("interval", c.cfg.CompactInterval).Int("retain", c.cfg.Retain).Msg("Save store compactor started")
	return nil
}

// Stop stops the loop and waits for a running pass to finish.
func (c *Compactor) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("Save store compactor stopped")
	return nil
}

// IsRunning reports whether the loop is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastRun returns when the last pass finished.
func (c *Compactor) LastRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

func (c *Compactor) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.CompactInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Compact(c.ctx)
		}
	}
}

// Compact runs one pass: prune every kind down to Retain, then GC.
func (c *Compactor) Compact(ctx context.Context) {
	start := time.Now()
	total := 0

	if c.cfg.Retain > 0 {
		for _, kind := range []models.SaveKind{models.SaveKindEmergency, models.SaveKindAuto, models.SaveKindReload} {
			n, err := c.store.Prune(ctx, kind, c.cfg.Retain)
			if err != nil {
				logging.Error().Err(err).Str("kind", string(kind)).Msg("Save store prune failed")
				continue
			}
			total += n
		}
	}

	if err := c.store.RunGC(); err != nil {
		logging.Error().Err(err).Msg("Save store garbage collection failed")
	}

	c.mu.Lock()
	c.lastRun = time.Now()
	c.mu.Unlock()

	logging.Debug().Int("pruned", total).Dur("duration", time.Since(start)).Msg("Save store compaction complete")
}

// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package save

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/logging"
)

// AutoSaver issues a routine save request on a fixed interval while the
// auto_save feature is enabled.
type AutoSaver struct {
	coord    *Coordinator
	flags    *features.Flags
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewAutoSaver creates an auto-saver that uses the coordinator's AutoInterval.
func NewAutoSaver(coord *Coordinator, flags *features.Flags) *AutoSaver {
	return &AutoSaver{
		coord:    coord,
		flags:    flags,
		interval: coord.Config().AutoInterval,
	}
}

// Start begins the ticker.
func (a *AutoSaver) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.running = true

	a.wg.Add(1)
	go a.run()

	logging.Info().Dur("interval", a.interval).Msg("Auto-save started")
	return nil
}

// Stop stops the ticker.
func (a *AutoSaver) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.cancel()
	a.running = false
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

// IsRunning reports whether the ticker is active.
func (a *AutoSaver) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *AutoSaver) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *AutoSaver) tick() {
	if !a.flags.IsEnabled(features.AutoSave) {
		logging.Trace().Msg("Auto-save disabled, skipping")
		return
	}
	a.coord.RequestAutoSave("auto-save")
}

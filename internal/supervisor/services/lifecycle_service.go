// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package services

import (
	"context"
	"fmt"

	"github.com/tomtom215/crashguard/internal/logging"
)

// StartStopper is the lifecycle of crashguard's background loops.
//
// Satisfied by:
//   - *sampler.Sampler
//   - *save.Coordinator
//   - *save.AutoSaver
//   - *store.Compactor
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}

// LifecycleService adapts a Start/Stop component to suture's Serve pattern:
//  1. Calls Start(ctx) to launch the component's goroutine
//  2. Waits for context cancellation
//  3. Calls Stop(), which waits for the goroutine to exit
//
// Example usage:
//
//	smp := sampler.New(cfg, counters, flags)
//	tree.AddMonitorService(services.NewSamplerService(smp))
type LifecycleService struct {
	component StartStopper
	name      string
}

// NewLifecycleService wraps component under the given service name.
func NewLifecycleService(name string, component StartStopper) *LifecycleService {
	return &LifecycleService{component: component, name: name}
}

// NewSamplerService wraps the performance sampler.
func NewSamplerService(s StartStopper) *LifecycleService {
	return NewLifecycleService("performance-sampler", s)
}

// NewSaveCoordinatorService wraps the emergency save coordinator. Stopping
// it flushes any pending batch.
func NewSaveCoordinatorService(c StartStopper) *LifecycleService {
	return NewLifecycleService("save-coordinator", c)
}

// NewAutoSaveService wraps the auto-save ticker.
func NewAutoSaveService(a StartStopper) *LifecycleService {
	return NewLifecycleService("auto-save", a)
}

// NewCompactorService wraps the save store compactor.
func NewCompactorService(c StartStopper) *LifecycleService {
	return NewLifecycleService("store-compactor", c)
}

// Serve implements suture.Service.
//
// If Start fails the error is returned immediately and suture restarts the
// service according to its backoff policy.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.component.Stop(); err != nil {
		logging.Warn().Err(err).Str("service", s.name).Msg("Service stop reported an error")
	}
	return ctx.Err()
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *LifecycleService) String() string {
	return s.name
}

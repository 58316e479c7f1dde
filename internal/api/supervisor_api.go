// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/crashguard/internal/compat"
	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/host"
	"github.com/tomtom215/crashguard/internal/interceptor"
	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/messaging"
	"github.com/tomtom215/crashguard/internal/models"
	"github.com/tomtom215/crashguard/internal/registry"
	"github.com/tomtom215/crashguard/internal/reload"
)

// defaultSaveReason is used when a caller requests a save without a reason.
const defaultSaveReason = "requested"

// ErrInitializeFailed wraps a layer's Initialize error or panic. The layer
// is not registered.
var ErrInitializeFailed = errors.New("compatibility layer initialization failed")

// Supervisor implements the mailbox dispatcher, so every message kind is a
// direct call on the mailbox goroutine.
var _ messaging.Dispatcher = (*Supervisor)(nil)

// Version returns APIVersion.
func (s *Supervisor) Version() string {
	return APIVersion
}

// RegisterCrashHandler registers or replaces the crash handler of clientID.
func (s *Supervisor) RegisterCrashHandler(clientID string, handler models.CrashHandler) error {
	if err := s.registry.RegisterHandler(clientID, handler); err != nil {
		return fmt.Errorf("register crash handler %q: %w", clientID, err)
	}
	return nil
}

// UnregisterCrashHandler removes the crash handler of clientID and resets
// its circuit breaker. Absent clients are ignored.
func (s *Supervisor) UnregisterCrashHandler(clientID string) {
	s.registry.UnregisterHandler(clientID)
	s.interceptor.Forget(clientID)
}

// RegisterCompatibilityLayer initializes layer and then registers it for
// clientID. An Initialize error or panic leaves the registry unchanged.
func (s *Supervisor) RegisterCompatibilityLayer(ctx context.Context, clientID string, layer models.CompatibilityLayer) error {
	if clientID == "" {
		return fmt.Errorf("register compatibility layer: %w", registry.ErrEmptyClientID)
	}
	if layer == nil {
		return fmt.Errorf("register compatibility layer %q: %w", clientID, registry.ErrNilLayer)
	}
	if initer, ok := layer.(models.Initializer); ok {
		if err := initialize(logging.ContextWithClientID(ctx, clientID), initer); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("client_id", clientID).Msg("Compatibility layer rejected")
			return fmt.Errorf("%w for %q: %w", ErrInitializeFailed, clientID, err)
		}
	}
	if err := s.registry.RegisterLayer(clientID, layer); err != nil {
		return fmt.Errorf("register compatibility layer %q: %w", clientID, err)
	}
	return nil
}

// UnregisterCompatibilityLayer removes the layer of clientID. Its disabled
// features are released on the next aggregation.
func (s *Supervisor) UnregisterCompatibilityLayer(clientID string) {
	s.registry.UnregisterLayer(clientID)
}

// Unregister removes both the crash handler and the layer of clientID.
func (s *Supervisor) Unregister(clientID string) {
	s.registry.Unregister(clientID)
	s.interceptor.Forget(clientID)
}

// HasKnownIssues reports whether clientID is listed in the known-issues
// table or its layer reports INCOMPATIBLE.
func (s *Supervisor) HasKnownIssues(clientID string) bool {
	return s.gate.HasKnownIssues(clientID)
}

// DetectedConflicts returns the current conflict descriptions in
// registration order.
func (s *Supervisor) DetectedConflicts() []string {
	return s.gate.DetectedConflicts()
}

// CheckCompatibility logs a compatibility report for one client. It serves
// the check-compatibility mailbox message.
func (s *Supervisor) CheckCompatibility(ctx context.Context, clientID string) {
	s.CompatibilityReport(ctx, clientID)
}

// CompatibilityReport returns the compatibility report for one client.
func (s *Supervisor) CompatibilityReport(ctx context.Context, clientID string) compat.ClientReport {
	return s.gate.CheckClient(ctx, clientID)
}

// MinCompatibilityLevel returns the minimum level from the latest
// aggregation. HIGH when no layer is registered.
func (s *Supervisor) MinCompatibilityLevel() models.CompatibilityLevel {
	return s.gate.MinLevel()
}

// IsFeatureEnabled reports whether a feature is currently enabled.
func (s *Supervisor) IsFeatureEnabled(name string) bool {
	return s.flags.IsEnabled(name)
}

// Features returns the effective state of every known feature.
func (s *Supervisor) Features() map[string]bool {
	return s.flags.Snapshot()
}

// PerformanceMetrics returns a copy of the latest performance snapshot, or
// the zero value before the first sample.
func (s *Supervisor) PerformanceMetrics() models.PerformanceSnapshot {
	return s.sampler.Latest()
}

// RequestEmergencySave asks for an emergency save without waiting for it.
// The supervised save worker writes it; before Serve or ServeBackground
// the request stays pending until Close flushes it.
func (s *Supervisor) RequestEmergencySave(reason string) {
	if reason == "" {
		reason = defaultSaveReason
	}
	s.saves.RequestSave(reason)
}

// IsSafeMode reports whether safe mode is latched.
func (s *Supervisor) IsSafeMode() bool {
	return s.flags.IsSafeMode()
}

// SafeModeStatus returns the safe mode latch details.
func (s *Supervisor) SafeModeStatus() features.SafeModeStatus {
	return s.flags.SafeModeStatus()
}

// ResetSafeMode clears the safe mode latch. It returns false when safe mode
// was not active.
func (s *Supervisor) ResetSafeMode(ctx context.Context) bool {
	status := s.flags.SafeModeStatus()
	if !s.flags.ResetSafeMode() {
		return false
	}
	logging.Ctx(ctx).Info().
		Str("reason", status.Reason).
		Dur("active_for", time.Since(status.Since)).
		Msg("Safe mode reset")
	s.events.Emit(ctx, messaging.TopicSafeModeReset, messaging.SafeModeEvent{
		Active: false,
		Reason: status.Reason,
		At:     time.Now(),
	})
	return true
}

// Reload runs one hot-reload transaction.
func (s *Supervisor) Reload(ctx context.Context) (reload.Summary, error) {
	return s.orchestrator.Reload(ctx)
}

// ReloadState returns the orchestrator state.
func (s *Supervisor) ReloadState() reload.State {
	return s.orchestrator.State()
}

// LastReload returns the summary of the most recent reload that passed the
// gate.
func (s *Supervisor) LastReload() (reload.Summary, bool) {
	return s.orchestrator.LastSummary()
}

// Guard runs fn as guarded host work. See interceptor.Interceptor.Guard.
func (s *Supervisor) Guard(ctx context.Context, location, originClientID string, fn func(ctx context.Context) error) error {
	return s.interceptor.Guard(ctx, location, originClientID, fn)
}

// Intercept presents a fault the host caught itself.
func (s *Supervisor) Intercept(ctx context.Context, location, originClientID string, cause error) interceptor.Outcome {
	return s.interceptor.Intercept(ctx, location, originClientID, cause)
}

// Mailbox returns the fire-and-forget inbound channel.
func (s *Supervisor) Mailbox() *messaging.Mailbox {
	return s.mailbox
}

// Events returns the lifecycle event bus.
func (s *Supervisor) Events() *messaging.EventBus {
	return s.events
}

// Host returns the admission gate guarded host work goes through.
func (s *Supervisor) Host() *host.Gate {
	return s.hostGate
}

// Counters returns the introspection counters the host updates, or nil
// when an Introspector was supplied in Options.
func (s *Supervisor) Counters() *host.Counters {
	return s.counters
}

// PendingSaves returns the number of save requests waiting for a write.
func (s *Supervisor) PendingSaves() int {
	return s.saves.Pending()
}

// LastSave returns the most recent successful save record.
func (s *Supervisor) LastSave() (models.SaveRecord, bool) {
	return s.saves.LastRecord()
}

// UnstoppedServiceReport lists services that did not stop within the
// shutdown timeout after Serve returned.
func (s *Supervisor) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return s.tree.UnstoppedServiceReport()
}

// Status summarises the supervisor for the status endpoint.
func (s *Supervisor) Status() models.StatusResponse {
	safe := s.flags.SafeModeStatus()
	resp := models.StatusResponse{
		Version:     APIVersion,
		Features:    s.flags.Snapshot(),
		SafeMode:    safe.Active,
		SafeReason:  safe.Reason,
		ReloadState: s.orchestrator.State().String(),
		MinLevel:    s.MinCompatibilityLevel().String(),
		PendingSave: s.saves.Pending(),
	}
	for _, c := range s.registry.Clients() {
		cs := models.ClientStatus{
			ClientID:     c.ClientID,
			CrashHandler: c.HasHandler,
			CompatLayer:  c.HasLayer,
		}
		if level, ok := s.gate.LevelOf(c.ClientID); ok {
			cs.Level = level.String()
		}
		if issue, ok := s.gate.KnownIssue(c.ClientID); ok {
			cs.KnownIssue = issue
		}
		resp.Clients = append(resp.Clients, cs)
	}
	return resp
}

func initialize(ctx context.Context, initer models.Initializer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initialize panicked: %v", r)
		}
	}()
	return initer.Initialize(ctx)
}

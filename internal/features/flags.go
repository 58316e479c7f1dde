// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

// Package features holds the process-wide feature flag set and the safe
// mode latch.
//
// A feature is enabled when the global policy does not turn it off, no
// registered compatibility layer lists it as disabled, and safe mode is not
// suppressing it as high-risk. Names the policy does not mention are
// enabled by default.
package features

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/crashguard/internal/metrics"
)

// Known feature names.
const (
	CrashPrevention    = "crash_prevention"
	HotReload          = "hot_reload"
	PerformanceMonitor = "performance_monitor"
	AutoSave           = "auto_save"
	SafeMode           = "safe_mode"
)

// Known returns the well-known feature names in a stable order.
func Known() []string {
	return []string{CrashPrevention, HotReload, PerformanceMonitor, AutoSave, SafeMode}
}

// DefaultHighRisk lists the features suppressed while in safe mode when the
// configuration does not say otherwise.
var DefaultHighRisk = []string{HotReload}

// SafeModeStatus describes the safe mode latch.
type SafeModeStatus struct {
	Active  bool      `json:"active"`
	Reason  string    `json:"reason,omitempty"`
	Since   time.Time `json:"since,omitempty"`
	Entries int       `json:"entries"`
}

// state is immutable once published.
type state struct {
	global         map[string]bool
	clientDisabled map[string][]string // feature -> client IDs, sorted
	highRisk       map[string]struct{}
	safeMode       SafeModeStatus
}

// Flags is the feature flag set. Reads are lock-free; writes are serialized.
type Flags struct {
	mu    sync.Mutex
	state atomic.Pointer[state]
}

// New creates a flag set from a global policy and the high-risk list used in
// safe mode. A nil highRisk uses DefaultHighRisk.
func New(global map[string]bool, highRisk []string) *Flags {
	if highRisk == nil {
		highRisk = DefaultHighRisk
	}
	st := &state{
		global:         copyPolicy(global),
		clientDisabled: map[string][]string{},
		highRisk:       make(map[string]struct{}, len(highRisk)),
	}
	for _, name := range highRisk {
		st.highRisk[name] = struct{}{}
	}
	f := &Flags{}
	f.state.Store(st)
	return f
}

// IsEnabled reports whether the named feature is currently enabled.
func (f *Flags) IsEnabled(name string) bool {
	st := f.state.Load()
	if enabled, ok := st.global[name]; ok && !enabled {
		return false
	}
	if len(st.clientDisabled[name]) > 0 {
		return false
	}
	if st.safeMode.Active {
		if _, risky := st.highRisk[name]; risky {
			return false
		}
	}
	return true
}

// DisabledBy returns the clients currently disabling the named feature.
func (f *Flags) DisabledBy(name string) []string {
	ids := f.state.Load().clientDisabled[name]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Snapshot returns the effective value of the known features plus every
// feature named by the policy or by a client.
func (f *Flags) Snapshot() map[string]bool {
	st := f.state.Load()
	names := map[string]struct{}{}
	for _, n := range Known() {
		names[n] = struct{}{}
	}
	for n := range st.global {
		names[n] = struct{}{}
	}
	for n := range st.clientDisabled {
		names[n] = struct{}{}
	}
	out := make(map[string]bool, len(names))
	for n := range names {
		out[n] = f.IsEnabled(n)
	}
	return out
}

// SetGlobal replaces the global policy. Called on configuration load.
func (f *Flags) SetGlobal(policy map[string]bool) {
	f.update(func(st *state) {
		st.global = copyPolicy(policy)
	})
}

// SetClientDisabled replaces the per-client disabled features, keyed by
// client ID. Called by the compatibility gate after each aggregation.
func (f *Flags) SetClientDisabled(byClient map[string][]string) {
	inverted := map[string][]string{}
	for clientID, names := range byClient {
		seen := map[string]struct{}{}
		for _, name := range names {
			if _, dup := seen[name]; dup || name == "" {
				continue
			}
			seen[name] = struct{}{}
			inverted[name] = append(inverted[name], clientID)
		}
	}
	for name := range inverted {
		sort.Strings(inverted[name])
	}
	f.update(func(st *state) {
		st.clientDisabled = inverted
	})
}

// EnterSafeMode latches safe mode. It returns true only for the call that
// performed the transition; later calls while active keep the first reason.
func (f *Flags) EnterSafeMode(reason string) bool {
	entered := false
	f.update(func(st *state) {
		if st.safeMode.Active {
			return
		}
		entered = true
		st.safeMode = SafeModeStatus{
			Active:  true,
			Reason:  reason,
			Since:   time.Now(),
			Entries: st.safeMode.Entries + 1,
		}
	})
	if entered {
		metrics.SetSafeMode(true)
		metrics.SafeModeEntries.Inc()
	}
	return entered
}

// ResetSafeMode clears the latch. It returns true if safe mode was active.
func (f *Flags) ResetSafeMode() bool {
	wasActive := false
	f.update(func(st *state) {
		wasActive = st.safeMode.Active
		st.safeMode = SafeModeStatus{Entries: st.safeMode.Entries}
	})
	if wasActive {
		metrics.SetSafeMode(false)
	}
	return wasActive
}

// IsSafeMode reports whether safe mode is active.
func (f *Flags) IsSafeMode() bool {
	return f.state.Load().safeMode.Active
}

// SafeModeStatus returns the latch details.
func (f *Flags) SafeModeStatus() SafeModeStatus {
	return f.state.Load().safeMode
}

// update applies fn to a copy of the current state and publishes it.
func (f *Flags) update(fn func(st *state)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.state.Load()
	next := *cur
	fn(&next)
	f.state.Store(&next)
}

func copyPolicy(policy map[string]bool) map[string]bool {
	out := make(map[string]bool, len(policy))
	for k, v := range policy {
		out[k] = v
	}
	return out
}

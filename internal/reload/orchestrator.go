// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package reload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/crashguard/internal/compat"
	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/host"
	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/messaging"
	"github.com/tomtom215/crashguard/internal/metrics"
	"github.com/tomtom215/crashguard/internal/models"
	"github.com/tomtom215/crashguard/internal/registry"
)

// State is a reload orchestrator state.
type State int32

// Orchestrator states in transaction order.
const (
	StateIdle State = iota
	StateGateCheck
	StateVetoed
	StateFreezing
	StateSnapshotting
	StateInvokingHooks
	StateReinitializing
	StateResumed
)

var stateNames = [...]string{
	StateIdle:           "IDLE",
	StateGateCheck:      "GATE_CHECK",
	StateVetoed:         "VETOED",
	StateFreezing:       "FREEZING",
	StateSnapshotting:   "SNAPSHOTTING",
	StateInvokingHooks:  "INVOKING_HOOKS",
	StateReinitializing: "REINITIALIZING",
	StateResumed:        "RESUMED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Freezable is a component that stops mutating while a reload runs.
type Freezable interface {
	Freeze()
	Thaw()
}

// Snapshotter takes the reload-scoped state capture.
type Snapshotter interface {
	Capture(ctx context.Context, reason string) (models.SaveRecord, error)
}

// HookFailure records one layer whose reload hook returned an error or
// panicked.
type HookFailure struct {
	ClientID string `json:"client_id"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
	Panicked bool   `json:"panicked"`
}

// Summary describes a completed reload transaction.
type Summary struct {
	ID               string                    `json:"id"`
	StartedAt        time.Time                 `json:"started_at"`
	Duration         time.Duration             `json:"duration_ns"`
	Invoked          []string                  `json:"invoked"`
	Failures         []HookFailure             `json:"failures,omitempty"`
	MinLevel         models.CompatibilityLevel `json:"min_level"`
	DisabledFeatures []string                  `json:"disabled_features"`
	SnapshotID       string                    `json:"snapshot_id,omitempty"`
	SnapshotError    string                    `json:"snapshot_error,omitempty"`
	ReinitError      string                    `json:"reinit_error,omitempty"`
}

// Partial reports whether any step of the transaction degraded.
func (s Summary) Partial() bool {
	return len(s.Failures) > 0 || s.SnapshotError != "" || s.ReinitError != ""
}

// Config configures the orchestrator.
type Config struct {
	// FreezeTimeout bounds how long FREEZING waits for in-flight host work.
	FreezeTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{FreezeTimeout: 5 * time.Second}
}

// Deps are the collaborators of the orchestrator. Registry, Compat, Flags
// and Host are required; the rest may be nil.
type Deps struct {
	Registry      *registry.Registry
	Compat        *compat.Gate
	Flags         *features.Flags
	Host          *host.Gate
	Sampler       Freezable
	Snapshots     Snapshotter
	Reinitializer host.Reinitializer
	Events        messaging.Emitter
}

// Orchestrator runs hot-reload transactions one at a time.
type Orchestrator struct {
	cfg  Config
	deps Deps

	txMu  sync.Mutex
	state atomic.Int32
	last  atomic.Pointer[Summary]
}

// New creates an orchestrator in IDLE.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.FreezeTimeout <= 0 {
		cfg.FreezeTimeout = DefaultConfig().FreezeTimeout
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// LastSummary returns the summary of the most recent transaction that
// passed the gate.
func (o *Orchestrator) LastSummary() (Summary, bool) {
	s := o.last.Load()
	if s == nil {
		return Summary{}, false
	}
	return *s, true
}

// Reload runs one hot-reload transaction.
//
// Vetoes return a *VetoError and leave everything untouched. Once host work
// is frozen the transaction runs to completion regardless of ctx; hook,
// snapshot and reinitialise failures are reported in the Summary.
func (o *Orchestrator) Reload(ctx context.Context) (Summary, error) {
	if !o.txMu.TryLock() {
		metrics.RecordReload(metrics.ReloadInProgress, 0)
		return Summary{}, ErrReloadInProgress
	}
	defer o.txMu.Unlock()
	defer o.transition(ctx, StateIdle)

	summary := Summary{ID: uuid.New().String(), StartedAt: time.Now()}
	ctx = logging.EnsureCorrelationID(ctx)
	log := logging.Ctx(ctx).With().Str("reload_id", summary.ID).Logger()

	if !o.deps.Flags.IsEnabled(features.HotReload) {
		metrics.RecordReload(metrics.ReloadDisabled, 0)
		log.Info().Strs("disabled_by", o.deps.Flags.DisabledBy(features.HotReload)).Msg("Reload refused, hot_reload disabled")
		return summary, ErrHotReloadDisabled
	}

	o.transition(ctx, StateGateCheck)
	decision := o.deps.Compat.Check(ctx)
	summary.MinLevel = decision.MinLevel
	summary.DisabledFeatures = decision.DisabledFeatures
	if !decision.Allowed {
		o.transition(ctx, StateVetoed)
		metrics.RecordReload(metrics.ReloadVetoed, 0)
		log.Warn().Strs("refused_by", decision.Refusals).Msg("Reload vetoed")
		o.emit(ctx, messaging.TopicReloadVetoed, messaging.ReloadEvent{
			ReloadID: summary.ID,
			Vetoes:   decision.Refusals,
			MinLevel: decision.MinLevel.String(),
		})
		return summary, &VetoError{Clients: decision.Refusals}
	}

	o.transition(ctx, StateFreezing)
	if err := o.freeze(ctx); err != nil {
		metrics.RecordReload(metrics.ReloadTimeout, 0)
		log.Error().Err(err).Dur("freeze_timeout", o.cfg.FreezeTimeout).Msg("Reload aborted, host did not freeze")
		return summary, err
	}

	// Frozen: no mid-transaction cancellation from here on.
	txCtx := context.WithoutCancel(ctx)
	thawed := false
	defer func() {
		if !thawed {
			o.thaw()
		}
	}()

	o.transition(ctx, StateSnapshotting)
	if o.deps.Snapshots != nil {
		rec, err := o.deps.Snapshots.Capture(txCtx, "reload "+summary.ID)
		if err != nil {
			summary.SnapshotError = err.Error()
			log.Warn().Err(err).Msg("Reload snapshot failed, continuing")
		} else {
			summary.SnapshotID = rec.ID
		}
	}

	o.transition(ctx, StateInvokingHooks)
	hookCtx := host.WithinTransaction(txCtx)
	for _, entry := range o.deps.Registry.Layers() {
		summary.Invoked = append(summary.Invoked, entry.ClientID)
		if failure, failed := invokeHook(hookCtx, entry); failed {
			summary.Failures = append(summary.Failures, failure)
			metrics.HookFailures.WithLabelValues(entry.ClientID).Inc()
			log.Error().
				Str("client_id", entry.ClientID).
				Bool("panicked", failure.Panicked).
				Str("error", failure.Message).
				Msg("Reload hook failed")
		}
	}

	o.transition(ctx, StateReinitializing)
	if o.deps.Reinitializer != nil {
		if err := reinitialize(hookCtx, o.deps.Reinitializer); err != nil {
			summary.ReinitError = err.Error()
			log.Error().Err(err).Msg("Host reinitialisation failed")
		}
	}
	summary.MinLevel = o.deps.Compat.Aggregate(txCtx)

	o.transition(ctx, StateResumed)
	thawed = true
	o.thaw()

	summary.Duration = time.Since(summary.StartedAt)
	result := metrics.ReloadCompleted
	if summary.Partial() {
		result = metrics.ReloadPartial
	}
	metrics.RecordReload(result, summary.Duration)
	o.last.Store(&summary)

	log.Info().
		Str("result", result).
		Int("invoked", len(summary.Invoked)).
		Int("failures", len(summary.Failures)).
		Str("min_level", summary.MinLevel.String()).
		Dur("duration", summary.Duration).
		Msg("Reload completed")
	o.emit(ctx, messaging.TopicReloadCompleted, reloadEvent(summary))
	return summary, nil
}

// freeze quiesces the registry, the sampler and host work. On failure
// everything is thawed again.
func (o *Orchestrator) freeze(ctx context.Context) error {
	o.deps.Registry.Freeze()
	if o.deps.Sampler != nil {
		o.deps.Sampler.Freeze()
	}

	pauseCtx, cancel := context.WithTimeout(ctx, o.cfg.FreezeTimeout)
	defer cancel()
	if err := o.deps.Host.Pause(pauseCtx); err != nil {
		if o.deps.Sampler != nil {
			o.deps.Sampler.Thaw()
		}
		o.deps.Registry.Thaw()
		return fmt.Errorf("%w: %w", ErrFreezeTimeout, err)
	}
	return nil
}

// thaw resumes host work, then the sampler, then applies queued registry
// mutations.
func (o *Orchestrator) thaw() {
	o.deps.Host.Resume()
	if o.deps.Sampler != nil {
		o.deps.Sampler.Thaw()
	}
	o.deps.Registry.Thaw()
}

func (o *Orchestrator) transition(ctx context.Context, next State) {
	prev := State(o.state.Swap(int32(next)))
	if prev == next {
		return
	}
	metrics.ReloadState.Set(float64(next))
	logging.Ctx(ctx).Debug().
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("Reload state transition")
}

func (o *Orchestrator) emit(ctx context.Context, topic string, payload any) {
	if o.deps.Events != nil {
		o.deps.Events.Emit(ctx, topic, payload)
	}
}

func invokeHook(ctx context.Context, entry registry.LayerEntry) (failure HookFailure, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("reload hook panicked: %v", r)
			failure = HookFailure{ClientID: entry.ClientID, Err: err, Message: err.Error(), Panicked: true}
			failed = true
		}
	}()
	if err := entry.Layer.OnReload(logging.ContextWithClientID(ctx, entry.ClientID)); err != nil {
		return HookFailure{ClientID: entry.ClientID, Err: err, Message: err.Error()}, true
	}
	return HookFailure{}, false
}

func reinitialize(ctx context.Context, r host.Reinitializer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reinitialise panicked: %v", p)
		}
	}()
	return r.Reinitialize(ctx)
}

func reloadEvent(s Summary) messaging.ReloadEvent {
	ev := messaging.ReloadEvent{
		ReloadID:         s.ID,
		Invoked:          s.Invoked,
		DisabledFeatures: s.DisabledFeatures,
		MinLevel:         s.MinLevel.String(),
		DurationMS:       s.Duration.Milliseconds(),
	}
	for _, f := range s.Failures {
		ev.FailedClients = append(ev.FailedClients, f.ClientID)
	}
	return ev
}

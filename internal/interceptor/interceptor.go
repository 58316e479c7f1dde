// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package interceptor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/host"
	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/messaging"
	"github.com/tomtom215/crashguard/internal/metrics"
	"github.com/tomtom215/crashguard/internal/models"
	"github.com/tomtom215/crashguard/internal/registry"
)

// SaveRequester receives one emergency save request per unhandled fault.
type SaveRequester interface {
	RequestSave(reason string)
}

// Config configures the per-handler circuit breakers.
type Config struct {
	// BreakerFailures is the number of consecutive handler panics that
	// open a client's breaker.
	BreakerFailures uint32

	// BreakerTimeout is how long an open breaker skips its handler before
	// letting one attempt through.
	BreakerTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BreakerFailures: 3,
		BreakerTimeout:  30 * time.Second,
	}
}

// Outcome reports what happened to one fault.
type Outcome struct {
	Fault           models.FaultContext
	Handled         bool
	HandledBy       string
	Attempts        int
	Panicked        []string // clients whose handler panicked
	Skipped         []string // clients whose breaker was open
	Escalated       bool
	SafeModeEntered bool
}

type clientBreaker struct {
	seq uint64
	cb  *gobreaker.CircuitBreaker[interface{}]
}

// Interceptor dispatches faults to registered crash handlers.
// It is safe for concurrent use; the dispatch path takes no registry lock.
type Interceptor struct {
	cfg      Config
	registry *registry.Registry
	flags    *features.Flags
	saver    SaveRequester
	events   messaging.Emitter
	gate     *host.Gate

	breakersMu sync.Mutex
	breakers   map[string]*clientBreaker
}

// New creates an interceptor. events and gate may be nil.
func New(cfg Config, reg *registry.Registry, flags *features.Flags, saver SaveRequester, events messaging.Emitter, gate *host.Gate) *Interceptor {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultConfig().BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultConfig().BreakerTimeout
	}
	return &Interceptor{
		cfg:      cfg,
		registry: reg,
		flags:    flags,
		saver:    saver,
		events:   events,
		gate:     gate,
		breakers: make(map[string]*clientBreaker),
	}
}

// Intercept presents a fault reported by host code.
func (i *Interceptor) Intercept(ctx context.Context, location, originClientID string, cause error) Outcome {
	return i.intercept(ctx, location, originClientID, cause, false)
}

// Guard runs fn as guarded host work. A panic inside fn becomes a fault.
// Guard returns nil when the fault was handled, an *UnhandledFaultError when
// it was not, and fn's own error otherwise.
//
// Admission goes through the host gate, so Guard waits while a reload holds
// the gate unless ctx belongs to the reload transaction.
func (i *Interceptor) Guard(ctx context.Context, location, originClientID string, fn func(ctx context.Context) error) error {
	if i.gate != nil {
		if err := i.gate.Enter(ctx); err != nil {
			return fmt.Errorf("admit guarded work at %s: %w", location, err)
		}
		defer i.gate.Leave()
	}

	if !i.flags.IsEnabled(features.CrashPrevention) {
		return fn(ctx)
	}
	return i.guard(ctx, location, originClientID, fn)
}

func (i *Interceptor) guard(ctx context.Context, location, originClientID string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		out := i.intercept(ctx, location, originClientID, &PanicError{Value: r}, true)
		if out.Handled {
			err = nil
			return
		}
		err = &UnhandledFaultError{Fault: out.Fault}
	}()
	return fn(ctx)
}

func (i *Interceptor) intercept(ctx context.Context, location, originClientID string, cause error, panicked bool) Outcome {
	ctx = logging.EnsureCorrelationID(ctx)
	fault := newFault(location, originClientID, cause, panicked)
	out := Outcome{Fault: fault}
	log := logging.Ctx(ctx)

	if !i.flags.IsEnabled(features.CrashPrevention) {
		metrics.RecordFault(metrics.OutcomeBypassed)
		log.Error().
			Str("fault_id", fault.ID).
			Str("location", location).
			Str("origin_client_id", originClientID).
			Str("cause", fault.Message).
			Msg("Crash prevention disabled, fault not dispatched")
		return out
	}

	for _, entry := range i.registry.Handlers() {
		out.Attempts++
		resolved, err := i.attempt(ctx, entry, fault)
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			out.Skipped = append(out.Skipped, entry.ClientID)
			metrics.HandlerSkipped.WithLabelValues(entry.ClientID).Inc()
			continue
		case errors.Is(err, errHandlerPanicked):
			out.Panicked = append(out.Panicked, entry.ClientID)
			continue
		}
		if resolved {
			out.Handled = true
			out.HandledBy = entry.ClientID
			break
		}
	}

	if out.Handled {
		metrics.RecordFault(metrics.OutcomeHandled)
		log.Info().
			Str("fault_id", fault.ID).
			Str("location", location).
			Str("handled_by", out.HandledBy).
			Int("attempts", out.Attempts).
			Msg("Fault resolved by crash handler")
		return out
	}

	metrics.RecordFault(metrics.OutcomeUnhandled)
	log.Error().
		Str("fault_id", fault.ID).
		Str("location", location).
		Str("origin_client_id", originClientID).
		Str("cause", fault.Message).
		Bool("panicked", panicked).
		Int("attempts", out.Attempts).
		Msg("Unhandled fault, escalating")

	i.escalate(ctx, &out)
	return out
}

// escalate requests exactly one emergency save and then enters safe mode.
func (i *Interceptor) escalate(ctx context.Context, out *Outcome) {
	fault := out.Fault
	reason := fmt.Sprintf("unhandled fault %s at %s", fault.ID, fault.Location)
	out.Escalated = true

	if i.saver != nil {
		i.saver.RequestSave(reason)
	}
	i.emit(ctx, messaging.TopicFaultUnhandled, messaging.FaultEvent{
		FaultID:        fault.ID,
		Location:       fault.Location,
		OriginClientID: fault.OriginClientID,
		Message:        fault.Message,
		Panicked:       fault.Panicked,
		OccurredAt:     fault.Timestamp,
	})

	if !i.flags.IsEnabled(features.SafeMode) {
		return
	}
	if i.flags.EnterSafeMode(reason) {
		out.SafeModeEntered = true
		logging.Ctx(ctx).Warn().Str("fault_id", fault.ID).Str("reason", reason).Msg("Entered safe mode")
		i.emit(ctx, messaging.TopicSafeModeEntered, messaging.SafeModeEvent{
			Active:  true,
			Reason:  reason,
			FaultID: fault.ID,
			At:      time.Now(),
		})
	}
}

// attempt runs one handler through its breaker. A panic is recovered and
// reported as errHandlerPanicked.
func (i *Interceptor) attempt(ctx context.Context, entry registry.HandlerEntry, fault models.FaultContext) (bool, error) {
	cb := i.breakerFor(entry)
	res, err := cb.Execute(func() (resolved interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				metrics.HandlerPanics.WithLabelValues(entry.ClientID).Inc()
				logging.Ctx(ctx).Error().
					Str("client_id", entry.ClientID).
					Str("fault_id", fault.ID).
					Str("panic", fmt.Sprint(r)).
					Msg("Crash handler panicked")
				resolved, err = false, errHandlerPanicked
			}
		}()
		return entry.Handler.AttemptResolve(ctx, fault), nil
	})
	if err != nil {
		return false, err
	}
	resolved, _ := res.(bool)
	return resolved, nil
}

// breakerFor returns the breaker for the entry's current registration.
// A re-registered client starts with a closed breaker.
func (i *Interceptor) breakerFor(entry registry.HandlerEntry) *gobreaker.CircuitBreaker[interface{}] {
	i.breakersMu.Lock()
	defer i.breakersMu.Unlock()

	if b, ok := i.breakers[entry.ClientID]; ok && b.seq == entry.Seq {
		return b.cb
	}

	failures := i.cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        entry.ClientID,
		MaxRequests: 1,
		Timeout:     i.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("client_id", name).Str("from", from.String()).Str("to", to.String()).Msg("Crash handler breaker state change")
			metrics.HandlerBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
	i.breakers[entry.ClientID] = &clientBreaker{seq: entry.Seq, cb: cb}
	metrics.HandlerBreakerState.WithLabelValues(entry.ClientID).Set(0)
	return cb
}

// Forget drops breaker state for an unregistered client.
func (i *Interceptor) Forget(clientID string) {
	i.breakersMu.Lock()
	defer i.breakersMu.Unlock()
	delete(i.breakers, clientID)
	metrics.HandlerBreakerState.DeleteLabelValues(clientID)
}

func (i *Interceptor) emit(ctx context.Context, topic string, payload any) {
	if i.events != nil {
		i.events.Emit(ctx, topic, payload)
	}
}

func newFault(location, originClientID string, cause error, panicked bool) models.FaultContext {
	if cause == nil {
		cause = errors.New("unspecified fault")
	}
	return models.FaultContext{
		ID:             uuid.New().String(),
		Location:       location,
		OriginClientID: originClientID,
		Timestamp:      time.Now(),
		Cause:          cause,
		Message:        cause.Error(),
		Stack:          string(debug.Stack()),
		Panicked:       panicked,
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

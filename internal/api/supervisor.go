// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/crashguard/internal/compat"
	"github.com/tomtom215/crashguard/internal/config"
	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/host"
	"github.com/tomtom215/crashguard/internal/interceptor"
	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/messaging"
	"github.com/tomtom215/crashguard/internal/registry"
	"github.com/tomtom215/crashguard/internal/reload"
	"github.com/tomtom215/crashguard/internal/sampler"
	"github.com/tomtom215/crashguard/internal/save"
	"github.com/tomtom215/crashguard/internal/store"
	"github.com/tomtom215/crashguard/internal/supervisor"
	"github.com/tomtom215/crashguard/internal/supervisor/services"
)

// APIVersion is the version of the direct-call API.
const APIVersion = "1.0.0"

// ErrClosed is returned by Serve after Close.
var ErrClosed = errors.New("supervisor is closed")

// Options are the host collaborators. Every field is optional.
type Options struct {
	// Introspector is read by the performance sampler. When nil the
	// supervisor creates a host.Counters the host can update through
	// Counters().
	Introspector host.Introspector

	// State supplies the opaque host state written into save records.
	State save.StateProvider

	// Reinitializer runs during the REINITIALIZING step of a reload.
	Reinitializer host.Reinitializer

	// Persister replaces the BadgerDB save store.
	Persister save.Persister
}

// Supervisor owns every crashguard component. It is the only entry point
// hosts and clients use; there is no package-level state.
type Supervisor struct {
	cfg *config.Config

	registry     *registry.Registry
	flags        *features.Flags
	gate         *compat.Gate
	hostGate     *host.Gate
	counters     *host.Counters
	interceptor  *interceptor.Interceptor
	sampler      *sampler.Sampler
	saves        *save.Coordinator
	autoSave     *save.AutoSaver
	store        *store.BadgerStore
	compactor    *store.Compactor
	events       *messaging.EventBus
	mailbox      *messaging.Mailbox
	orchestrator *reload.Orchestrator
	tree         *supervisor.SupervisorTree

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

// New wires a supervisor from configuration. A nil cfg uses the defaults.
// Long-lived loops do not start until Serve or ServeBackground. That
// includes the save worker: an embedder that never serves the supervisor
// gets its requested saves written only by Close.
func New(cfg *config.Config, opts Options) (*Supervisor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Supervisor{
		cfg:      cfg,
		registry: registry.New(),
		flags:    features.New(cfg.Features.Policy(), cfg.SafeMode.HighRiskFeatures),
		hostGate: host.NewGate(),
	}

	s.gate = compat.New(compat.Config{
		KnownIssues:      cfg.Compatibility.KnownIssues,
		SoftDependencies: cfg.LoadOrder.SoftDependencies,
	}, s.registry, s.flags)

	s.events = messaging.NewEventBus(messaging.EventBusConfig{
		OutputBuffer: cfg.Messaging.EventBuffer,
	}, logging.NewWatermillAdapter())

	persister := opts.Persister
	if persister == nil {
		st, err := store.Open(&store.Config{
			Path:            cfg.Save.Path,
			InMemory:        cfg.Save.InMemory,
			SyncWrites:      cfg.Save.SyncWrites,
			Compression:     cfg.Save.Compression,
			Retain:          cfg.Save.Retain,
			CompactInterval: cfg.Save.CompactInterval,
			GCRatio:         cfg.Save.GCRatio,
		})
		if err != nil {
			_ = s.events.Close()
			return nil, fmt.Errorf("failed to open save store: %w", err)
		}
		s.store = st
		s.compactor = store.NewCompactor(st)
		persister = st
	}

	s.saves = save.NewCoordinator(save.Config{
		CoalesceWindow: cfg.Save.CoalesceWindow,
		MinInterval:    cfg.Save.MinInterval,
		WriteTimeout:   cfg.Save.WriteTimeout,
		AutoInterval:   cfg.Save.AutoInterval,
	}, persister, opts.State, s.events)
	s.autoSave = save.NewAutoSaver(s.saves, s.flags)

	s.interceptor = interceptor.New(interceptor.Config{
		BreakerFailures: cfg.Interceptor.BreakerFailures,
		BreakerTimeout:  cfg.Interceptor.BreakerTimeout,
	}, s.registry, s.flags, s.saves, s.events, s.hostGate)

	introspector := opts.Introspector
	if introspector == nil {
		s.counters = host.NewCounters()
		introspector = s.counters
	}
	s.sampler = sampler.New(sampler.Config{Interval: cfg.Sampler.Interval}, introspector, s.flags)

	s.orchestrator = reload.New(reload.Config{FreezeTimeout: cfg.Reload.FreezeTimeout}, reload.Deps{
		Registry:      s.registry,
		Compat:        s.gate,
		Flags:         s.flags,
		Host:          s.hostGate,
		Sampler:       s.sampler,
		Snapshots:     s.saves,
		Reinitializer: opts.Reinitializer,
		Events:        s.events,
	})

	s.mailbox = messaging.NewMailbox(cfg.Messaging.MailboxBuffer, s)

	// Registration and unregistration re-aggregate layer declarations.
	s.registry.OnChange(func() {
		s.gate.Aggregate(context.Background())
	})

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		s.closeResources()
		return nil, fmt.Errorf("failed to create supervisor tree: %w", err)
	}
	s.tree = tree
	s.addServices()

	logging.Info().
		Str("api_version", APIVersion).
		Interface("features", s.flags.Snapshot()).
		Bool("http", cfg.Server.Enabled).
		Bool("embedded_store", s.store != nil).
		Msg("Crashguard supervisor created")
	return s, nil
}

func (s *Supervisor) addServices() {
	s.tree.AddCoreService(services.NewMailboxService(s.mailbox))
	s.tree.AddCoreService(services.NewSaveCoordinatorService(s.saves))
	if s.compactor != nil {
		s.tree.AddCoreService(services.NewCompactorService(s.compactor))
	}

	s.tree.AddMonitorService(services.NewSamplerService(s.sampler))
	s.tree.AddMonitorService(services.NewAutoSaveService(s.autoSave))

	if s.cfg.Server.Enabled {
		server := &http.Server{
			Handler:           NewRouter(s),
			ReadHeaderTimeout: s.cfg.Server.Timeout,
			ReadTimeout:       s.cfg.Server.Timeout,
			WriteTimeout:      s.cfg.Server.Timeout,
		}
		s.tree.AddAPIService(services.NewHTTPServerService(s.cfg.Server.Addr, server, s.cfg.Supervisor.ShutdownTimeout))
	}
}

// Serve runs the supervisor tree until ctx is canceled.
func (s *Supervisor) Serve(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.tree.Serve(ctx)
}

// ServeBackground runs the supervisor tree on its own goroutine. The
// channel receives the tree's exit error.
func (s *Supervisor) ServeBackground(ctx context.Context) <-chan error {
	if s.closed.Load() {
		errCh := make(chan error, 1)
		errCh <- ErrClosed
		close(errCh)
		return errCh
	}
	return s.tree.ServeBackground(ctx)
}

// Close flushes pending saves and releases the event bus and the save store.
// Cancel the Serve context first; Close is safe to call more than once.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.mailbox.Close()
		s.closeErr = s.closeResources()
		logging.Info().Msg("Crashguard supervisor closed")
	})
	return s.closeErr
}

func (s *Supervisor) closeResources() error {
	var errs []error
	if err := s.autoSave.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("auto-save: %w", err))
	}
	if err := s.sampler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("sampler: %w", err))
	}
	if err := s.saves.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("save coordinator: %w", err))
	}
	if s.compactor != nil {
		if err := s.compactor.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("compactor: %w", err))
		}
	}
	if err := s.events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event bus: %w", err))
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("save store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package sampler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/host"
	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/metrics"
	"github.com/tomtom215/crashguard/internal/models"
)

// Tick results.
const (
	resultSampled         = "sampled"
	resultSkippedFrozen   = "skipped_frozen"
	resultSkippedDisabled = "skipped_disabled"
	resultError           = "error"
)

// Config configures the sampler.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Second}
}

// MemoryReader returns memory used and total in bytes.
type MemoryReader func(ctx context.Context) (used, total uint64, err error)

// Sampler collects host performance on a fixed interval and keeps only the
// latest snapshot.
type Sampler struct {
	cfg    Config
	host   host.Introspector
	flags  *features.Flags
	memory MemoryReader

	latest atomic.Pointer[models.PerformanceSnapshot]
	frozen atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a sampler reading from introspector, which may be nil.
// Memory comes from the introspector when it is a host.MemorySource with
// figures available, otherwise from process statistics.
func New(cfg Config, introspector host.Introspector, flags *features.Flags) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Sampler{
		cfg:    cfg,
		host:   introspector,
		flags:  flags,
		memory: ProcessMemory(),
	}
}

// SetMemoryReader replaces the fallback memory reader.
func (s *Sampler) SetMemoryReader(r MemoryReader) {
	s.memory = r
}

// Start begins sampling.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.run()

	logging.Info().Dur("interval", s.cfg.Interval).Msg("Performance sampler started")
	return nil
}

// Stop stops sampling.
func (s *Sampler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info().Msg("Performance sampler stopped")
	return nil
}

// IsRunning reports whether the sampler is active.
func (s *Sampler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Freeze makes scheduled ticks skip until Thaw.
func (s *Sampler) Freeze() { s.frozen.Store(true) }

// Thaw resumes scheduled ticks.
func (s *Sampler) Thaw() { s.frozen.Store(false) }

// Frozen reports whether ticks are being skipped.
func (s *Sampler) Frozen() bool { return s.frozen.Load() }

// Latest returns a copy of the most recent snapshot, or the zero value
// before the first sample.
func (s *Sampler) Latest() models.PerformanceSnapshot {
	if snap := s.latest.Load(); snap != nil {
		return *snap
	}
	return models.PerformanceSnapshot{}
}

// SampleNow takes and publishes a sample immediately.
func (s *Sampler) SampleNow(ctx context.Context) (models.PerformanceSnapshot, error) {
	snap, err := s.collect(ctx)
	if err != nil {
		return models.PerformanceSnapshot{}, err
	}
	s.publish(snap)
	return snap, nil
}

func (s *Sampler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(s.ctx)
		}
	}
}

func (s *Sampler) tick(ctx context.Context) {
	if s.frozen.Load() {
		metrics.SamplesTotal.WithLabelValues(resultSkippedFrozen).Inc()
		return
	}
	if !s.flags.IsEnabled(features.PerformanceMonitor) {
		metrics.SamplesTotal.WithLabelValues(resultSkippedDisabled).Inc()
		return
	}
	if _, err := s.SampleNow(ctx); err != nil {
		metrics.SamplesTotal.WithLabelValues(resultError).Inc()
		logging.Warn().Err(err).Msg("Performance sample failed")
		return
	}
	metrics.SamplesTotal.WithLabelValues(resultSampled).Inc()
}

func (s *Sampler) collect(ctx context.Context) (models.PerformanceSnapshot, error) {
	snap := models.PerformanceSnapshot{CapturedAt: time.Now()}
	if s.host != nil {
		snap.AverageFPS = s.host.AverageFPS()
		snap.TickRate = s.host.TickRate()
		snap.EntityCount = s.host.EntityCount()
		snap.ChunkCount = s.host.ChunkCount()
	}

	used, total, ok := uint64(0), uint64(0), false
	if src, isSource := s.host.(host.MemorySource); isSource {
		used, total, ok = src.Memory()
	}
	if !ok && s.memory != nil {
		var err error
		used, total, err = s.memory(ctx)
		if err != nil {
			return models.PerformanceSnapshot{}, fmt.Errorf("read memory: %w", err)
		}
	}
	snap.MemoryUsed = used
	snap.MemoryTotal = total
	snap.MemoryUsagePercent = models.MemoryPercent(used, total)
	return snap, nil
}

func (s *Sampler) publish(snap models.PerformanceSnapshot) {
	s.latest.Store(&snap)
	metrics.UpdateHostGauges(snap.AverageFPS, snap.TickRate, snap.MemoryUsed, snap.MemoryTotal, snap.EntityCount, snap.ChunkCount)
}

// ProcessMemory returns a reader reporting this process's resident set
// size against total system memory.
func ProcessMemory() MemoryReader {
	var (
		once    sync.Once
		proc    *process.Process
		procErr error
	)
	return func(ctx context.Context) (uint64, uint64, error) {
		once.Do(func() {
			proc, procErr = process.NewProcessWithContext(ctx, int32(os.Getpid()))
		})
		if procErr != nil {
			return 0, 0, fmt.Errorf("inspect process: %w", procErr)
		}
		info, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("process memory: %w", err)
		}
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("system memory: %w", err)
		}
		return info.RSS, vm.Total, nil
	}
}

// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package save

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/messaging"
	"github.com/tomtom215/crashguard/internal/metrics"
	"github.com/tomtom215/crashguard/internal/models"
)

// Persister is the durable storage collaborator.
type Persister interface {
	Persist(ctx context.Context, rec models.SaveRecord) error
}

// StateProvider supplies the host state written with each record.
type StateProvider interface {
	SnapshotState(ctx context.Context) ([]byte, error)
}

// Config configures request coalescing and write pacing.
type Config struct {
	// CoalesceWindow is how long the worker waits after the first request
	// of a batch before writing.
	CoalesceWindow time.Duration

	// MinInterval is the minimum time between coalesced writes.
	MinInterval time.Duration

	// WriteTimeout bounds a single persistence write.
	WriteTimeout time.Duration

	// AutoInterval is the auto-save period.
	AutoInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CoalesceWindow: 250 * time.Millisecond,
		MinInterval:    time.Second,
		WriteTimeout:   10 * time.Second,
		AutoInterval:   5 * time.Minute,
	}
}

type request struct {
	reason string
	kind   models.SaveKind
	at     time.Time
}

// Coordinator turns save requests into coalesced persistence writes.
// RequestSave never blocks and never reports failures to the caller.
type Coordinator struct {
	cfg       Config
	persister Persister
	state     StateProvider
	events    messaging.Emitter
	limiter   *rate.Limiter

	mu      sync.Mutex
	pending []request
	signal  chan struct{}

	// serializes writes from the worker, Stop and Capture
	writeMu sync.Mutex

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool

	last atomic.Pointer[models.SaveRecord]
}

// NewCoordinator creates a coordinator. state and events may be nil.
func NewCoordinator(cfg Config, persister Persister, state StateProvider, events messaging.Emitter) *Coordinator {
	def := DefaultConfig()
	if cfg.CoalesceWindow < 0 {
		cfg.CoalesceWindow = 0
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.AutoInterval <= 0 {
		cfg.AutoInterval = def.AutoInterval
	}
	return &Coordinator{
		cfg:       cfg,
		persister: persister,
		state:     state,
		events:    events,
		limiter:   rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		signal:    make(chan struct{}, 1),
	}
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// RequestSave records an emergency save request and returns immediately.
func (c *Coordinator) RequestSave(reason string) {
	c.enqueue(reason, models.SaveKindEmergency)
}

// RequestAutoSave records a routine save request and returns immediately.
func (c *Coordinator) RequestAutoSave(reason string) {
	c.enqueue(reason, models.SaveKindAuto)
}

func (c *Coordinator) enqueue(reason string, kind models.SaveKind) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		metrics.SaveCoalesced.Inc()
	}
	c.pending = append(c.pending, request{reason: reason, kind: kind, at: time.Now()})
	c.mu.Unlock()

	metrics.SaveRequests.WithLabelValues(string(kind)).Inc()
	select {
	case c.signal <- struct{}{}:
	default:
		// worker already signalled
	}
}

// Pending returns the number of requests waiting for the next write.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// LastRecord returns the most recently persisted record, if any.
func (c *Coordinator) LastRecord() (models.SaveRecord, bool) {
	rec := c.last.Load()
	if rec == nil {
		return models.SaveRecord{}, false
	}
	return *rec, true
}

// Start launches the background worker.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.running {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true

	c.wg.Add(1)
	go c.run()

	logging.Info().
		Dur("coalesce_window", c.cfg.CoalesceWindow).
		Dur("min_interval", c.cfg.MinInterval).
		Msg("Save coordinator started")
	return nil
}

// Stop stops the worker and flushes any pending batch before returning.
func (c *Coordinator) Stop() error {
	c.lifecycleMu.Lock()
	if !c.running {
		c.lifecycleMu.Unlock()
		c.flush(context.Background())
		return nil
	}
	c.cancel()
	c.running = false
	c.lifecycleMu.Unlock()

	c.wg.Wait()
	c.flush(context.Background())
	logging.Info().Msg("Save coordinator stopped")
	return nil
}

// IsRunning reports whether the worker is active.
func (c *Coordinator) IsRunning() bool {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.running
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	ctx := c.ctx

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.signal:
		}

		if c.cfg.CoalesceWindow > 0 {
			timer := time.NewTimer(c.cfg.CoalesceWindow)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		c.flush(ctx)
	}
}

// flush drains the pending batch and writes it as one record.
func (c *Coordinator) flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	rec := models.SaveRecord{
		ID:          uuid.New().String(),
		Kind:        models.SaveKindAuto,
		Reasons:     make([]string, 0, len(batch)),
		RequestedAt: batch[0].at,
	}
	for _, r := range batch {
		rec.Reasons = append(rec.Reasons, r.reason)
		if r.kind == models.SaveKindEmergency {
			rec.Kind = models.SaveKindEmergency
		}
	}

	// Cancelling the worker must not abort a batch already drained.
	_, _ = c.write(context.WithoutCancel(ctx), rec)
}

// Capture takes a synchronous reload-scoped snapshot. It bypasses
// coalescing and pacing and returns the write error.
func (c *Coordinator) Capture(ctx context.Context, reason string) (models.SaveRecord, error) {
	metrics.SaveRequests.WithLabelValues(string(models.SaveKindReload)).Inc()
	rec := models.SaveRecord{
		ID:          uuid.New().String(),
		Kind:        models.SaveKindReload,
		Reasons:     []string{reason},
		RequestedAt: time.Now(),
	}
	return c.write(ctx, rec)
}

func (c *Coordinator) write(ctx context.Context, rec models.SaveRecord) (models.SaveRecord, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	if c.state != nil {
		payload, err := c.snapshotState(ctx)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("record_id", rec.ID).Msg("Host state unavailable, saving without payload")
		}
		rec.Payload = payload
	}

	start := time.Now()
	rec.WrittenAt = start.UTC()
	err := c.persister.Persist(ctx, rec)
	metrics.RecordSaveWrite(time.Since(start), err)

	event := messaging.SaveEvent{
		RecordID: rec.ID,
		Kind:     string(rec.Kind),
		Reasons:  rec.Reasons,
		Bytes:    len(rec.Payload),
	}
	if err != nil {
		event.Error = err.Error()
		logging.Ctx(ctx).Error().
			Err(err).
			Str("record_id", rec.ID).
			Str("kind", string(rec.Kind)).
			Strs("reasons", rec.Reasons).
			Msg("Save failed")
		c.emit(ctx, messaging.TopicSaveFailed, event)
		return rec, fmt.Errorf("persist %s save: %w", rec.Kind, err)
	}

	c.last.Store(&rec)
	logging.Ctx(ctx).Info().
		Str("record_id", rec.ID).
		Str("kind", string(rec.Kind)).
		Int("requests", len(rec.Reasons)).
		Int("bytes", len(rec.Payload)).
		Msg("Save written")
	c.emit(ctx, messaging.TopicSaveCompleted, event)
	return rec, nil
}

func (c *Coordinator) snapshotState(ctx context.Context) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, fmt.Errorf("state provider panicked: %v", r)
		}
	}()
	return c.state.SnapshotState(ctx)
}

func (c *Coordinator) emit(ctx context.Context, topic string, payload any) {
	if c.events != nil {
		c.events.Emit(ctx, topic, payload)
	}
}

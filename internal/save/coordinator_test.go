// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package save

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/messaging"
	"github.com/tomtom215/crashguard/internal/models"
	"github.com/tomtom215/crashguard/internal/store"
)

// fakePersister records every write and optionally fails.
type fakePersister struct {
	mu      sync.Mutex
	records []models.SaveRecord
	err     error
	written chan models.SaveRecord
}

func newFakePersister() *fakePersister {
	return &fakePersister{written: make(chan models.SaveRecord, 16)}
}

func (p *fakePersister) Persist(_ context.Context, rec models.SaveRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		p.written <- rec
		return p.err
	}
	p.records = append(p.records, rec)
	p.written <- rec
	return nil
}

func (p *fakePersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

type stateFunc func(ctx context.Context) ([]byte, error)

func (f stateFunc) SnapshotState(ctx context.Context) ([]byte, error) { return f(ctx) }

type topicRecorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *topicRecorder) Emit(_ context.Context, topic string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
}

func (r *topicRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.topics) == 0 {
		return ""
	}
	return r.topics[len(r.topics)-1]
}

func testConfig() Config {
	return Config{
		CoalesceWindow: 50 * time.Millisecond,
		MinInterval:    time.Millisecond,
		WriteTimeout:   time.Second,
		AutoInterval:   time.Hour,
	}
}

func waitForWrite(t *testing.T, p *fakePersister) models.SaveRecord {
	t.Helper()
	select {
	case rec := <-p.written:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return models.SaveRecord{}
	}
}

func TestRequestSaveCoalesces(t *testing.T) {
	p := newFakePersister()
	c := NewCoordinator(testConfig(), p, nil, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	for i := 0; i < 10; i++ {
		c.RequestSave("burst")
	}

	rec := waitForWrite(t, p)
	if len(rec.Reasons) != 10 {
		t.Errorf("batch carried %d reasons, want 10", len(rec.Reasons))
	}
	if rec.Kind != models.SaveKindEmergency {
		t.Errorf("kind = %s, want emergency", rec.Kind)
	}
	if rec.RequestedAt.After(rec.WrittenAt) {
		t.Error("requested time should not be after write time")
	}

	select {
	case extra := <-p.written:
		t.Errorf("unexpected second write: %+v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRequestSaveNeverBlocks(t *testing.T) {
	p := newFakePersister()
	c := NewCoordinator(testConfig(), p, nil, nil)
	// Not started: requests must still return immediately

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			c.RequestSave("no worker")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RequestSave blocked without a running worker")
	}
	if c.Pending() != 1000 {
		t.Errorf("pending = %d, want 1000", c.Pending())
	}

	// Stop flushes the pending batch
	_ = c.Stop()
	if p.count() != 1 || c.Pending() != 0 {
		t.Errorf("after Stop: writes=%d pending=%d, want 1 and 0", p.count(), c.Pending())
	}
}

func TestBatchKind(t *testing.T) {
	p := newFakePersister()
	c := NewCoordinator(testConfig(), p, nil, nil)

	c.RequestAutoSave("auto-save")
	_ = c.Stop()
	if rec := waitForWrite(t, p); rec.Kind != models.SaveKindAuto {
		t.Errorf("auto-only batch kind = %s, want auto", rec.Kind)
	}

	c.RequestAutoSave("auto-save")
	c.RequestSave("fault")
	_ = c.Stop()
	if rec := waitForWrite(t, p); rec.Kind != models.SaveKindEmergency {
		t.Errorf("mixed batch kind = %s, want emergency", rec.Kind)
	}
}

func TestSaveFailureIsNotReturned(t *testing.T) {
	p := newFakePersister()
	p.err = errors.New("disk full")
	events := &topicRecorder{}
	c := NewCoordinator(testConfig(), p, nil, events)

	c.RequestSave("fault")
	_ = c.Stop()
	waitForWrite(t, p)

	if events.last() != messaging.TopicSaveFailed {
		t.Errorf("last event = %q, want %s", events.last(), messaging.TopicSaveFailed)
	}
	if _, ok := c.LastRecord(); ok {
		t.Error("failed write must not become the last record")
	}
}

func TestCapture(t *testing.T) {
	t.Run("writes host state synchronously", func(t *testing.T) {
		p := newFakePersister()
		events := &topicRecorder{}
		state := stateFunc(func(context.Context) ([]byte, error) { return []byte(`{"tick":42}`), nil })
		c := NewCoordinator(testConfig(), p, state, events)

		rec, err := c.Capture(context.Background(), "reload")
		if err != nil {
			t.Fatalf("Capture: %v", err)
		}
		if rec.Kind != models.SaveKindReload || string(rec.Payload) != `{"tick":42}` {
			t.Errorf("record = %+v", rec)
		}
		if p.count() != 1 {
			t.Errorf("writes = %d, want 1", p.count())
		}
		if events.last() != messaging.TopicSaveCompleted {
			t.Errorf("last event = %q", events.last())
		}
		last, ok := c.LastRecord()
		if !ok || last.ID != rec.ID {
			t.Error("LastRecord should return the captured record")
		}
	})

	t.Run("returns persistence errors", func(t *testing.T) {
		p := newFakePersister()
		p.err = errors.New("read-only")
		c := NewCoordinator(testConfig(), p, nil, nil)
		if _, err := c.Capture(context.Background(), "reload"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("state provider failure still saves", func(t *testing.T) {
		p := newFakePersister()
		state := stateFunc(func(context.Context) ([]byte, error) { panic("host torn down") })
		c := NewCoordinator(testConfig(), p, state, nil)
		rec, err := c.Capture(context.Background(), "reload")
		if err != nil {
			t.Fatalf("Capture: %v", err)
		}
		if rec.Payload != nil {
			t.Error("payload should be empty when state is unavailable")
		}
	})
}

func TestCoordinatorWithBadgerStore(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.InMemory = true
	cfg.SyncWrites = false
	s, err := store.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	c := NewCoordinator(testConfig(), s, nil, nil)
	c.RequestSave("first")
	c.RequestSave("second")
	_ = c.Stop()

	rec, err := s.Latest(context.Background(), models.SaveKindEmergency)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(rec.Reasons) != 2 || rec.Reasons[0] != "first" {
		t.Errorf("stored reasons = %v", rec.Reasons)
	}
}

func TestAutoSaverTick(t *testing.T) {
	c := NewCoordinator(testConfig(), newFakePersister(), nil, nil)

	disabled := NewAutoSaver(c, features.New(map[string]bool{features.AutoSave: false}, nil))
	disabled.tick()
	if c.Pending() != 0 {
		t.Error("disabled auto_save must not request a save")
	}

	enabled := NewAutoSaver(c, features.New(nil, nil))
	enabled.tick()
	if c.Pending() != 1 {
		t.Errorf("pending = %d, want 1", c.Pending())
	}

	if err := enabled.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !enabled.IsRunning() {
		t.Error("expected running")
	}
	_ = enabled.Stop()
	if enabled.IsRunning() {
		t.Error("expected stopped")
	}
}

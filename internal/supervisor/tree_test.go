// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// countingService runs until canceled after failing a configured number of
// times.
type countingService struct {
	name     string
	starts   atomic.Int32
	failures atomic.Int32
	failFor  int32
	err      error
}

func (s *countingService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	if s.err != nil {
		return s.err
	}
	if s.failures.Add(1) <= s.failFor {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitForStarts(svc *countingService, n int32) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.starts.Load() >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestSupervisorTreeConstruction(t *testing.T) {
	t.Run("applies default values for zero config", func(t *testing.T) {
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}
		if tree.Config() != DefaultTreeConfig() {
			t.Errorf("config = %+v, want defaults %+v", tree.Config(), DefaultTreeConfig())
		}
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		tree, _ := NewSupervisorTree(nil, TreeConfig{FailureThreshold: 2, ShutdownTimeout: time.Second})
		if tree.Config().FailureThreshold != 2 || tree.Config().ShutdownTimeout != time.Second {
			t.Errorf("config = %+v", tree.Config())
		}
	})
}

func TestSupervisorTreeLayers(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	core := &countingService{name: "mailbox"}
	monitor := &countingService{name: "sampler"}
	api := &countingService{name: "http-server"}
	tree.AddCoreService(core)
	tree.AddMonitorService(monitor)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*countingService{core, monitor, api} {
		if !waitForStarts(svc, 1) {
			t.Errorf("%s was not started", svc.name)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("tree did not shut down in time")
	}
}

func TestSupervisorTreeFailureIsolation(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	flaky := &countingService{name: "sampler", failFor: 2}
	stable := &countingService{name: "save-coordinator"}
	tree.AddMonitorService(flaky)
	tree.AddCoreService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tree.Serve(ctx)

	if !waitForStarts(flaky, 3) {
		t.Errorf("flaky service started %d times, want at least 3", flaky.starts.Load())
	}
	if stable.starts.Load() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.starts.Load())
	}
}

func TestSupervisorTreeDoNotRestart(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	done := &countingService{name: "mailbox", err: suture.ErrDoNotRestart}
	tree.AddCoreService(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tree.Serve(ctx)

	waitForStarts(done, 1)
	time.Sleep(100 * time.Millisecond)
	if done.starts.Load() != 1 {
		t.Errorf("starts = %d, want exactly 1", done.starts.Load())
	}
}

func TestDefaultTreeConfig(t *testing.T) {
	config := DefaultTreeConfig()

	if config.FailureThreshold != 5.0 {
		t.Errorf("expected FailureThreshold 5.0, got %f", config.FailureThreshold)
	}
	if config.FailureDecay != 30.0 {
		t.Errorf("expected FailureDecay 30.0, got %f", config.FailureDecay)
	}
	if config.FailureBackoff != 15*time.Second {
		t.Errorf("expected FailureBackoff 15s, got %v", config.FailureBackoff)
	}
	if config.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected ShutdownTimeout 10s, got %v", config.ShutdownTimeout)
	}
}

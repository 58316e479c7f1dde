// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tomtom215/crashguard/internal/models"
)

func resolves(result bool) models.CrashHandlerFunc {
	return func(context.Context, models.FaultContext) bool { return result }
}

func TestRegisterHandler(t *testing.T) {
	t.Run("rejects invalid input", func(t *testing.T) {
		r := New()
		if err := r.RegisterHandler("", resolves(true)); !errors.Is(err, ErrEmptyClientID) {
			t.Errorf("expected ErrEmptyClientID, got %v", err)
		}
		if err := r.RegisterHandler("modA", nil); !errors.Is(err, ErrNilHandler) {
			t.Errorf("expected ErrNilHandler, got %v", err)
		}
		if err := r.RegisterLayer("modA", nil); !errors.Is(err, ErrNilLayer) {
			t.Errorf("expected ErrNilLayer, got %v", err)
		}
	})

	t.Run("re-registration replaces the previous entry", func(t *testing.T) {
		r := New()
		first := resolves(false)
		second := resolves(true)

		if err := r.RegisterHandler("modA", first); err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := r.RegisterHandler("modA", second); err != nil {
			t.Fatalf("re-register: %v", err)
		}

		entries := r.Handlers()
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(entries))
		}
		e, ok := r.LookupHandler("modA")
		if !ok {
			t.Fatal("expected modA to be registered")
		}
		if !e.Handler.AttemptResolve(context.Background(), models.FaultContext{}) {
			t.Error("lookup should return the most recent handler")
		}
	})

	t.Run("replacement moves to the end of the order", func(t *testing.T) {
		r := New()
		_ = r.RegisterHandler("modA", resolves(false))
		_ = r.RegisterHandler("modB", resolves(false))
		_ = r.RegisterHandler("modA", resolves(true))

		entries := r.Handlers()
		if entries[0].ClientID != "modB" || entries[1].ClientID != "modA" {
			t.Errorf("order = [%s %s], want [modB modA]", entries[0].ClientID, entries[1].ClientID)
		}
	})
}

func TestUnregister(t *testing.T) {
	t.Run("absent client is a no-op", func(t *testing.T) {
		r := New()
		r.Unregister("ghost")
		r.UnregisterHandler("ghost")
		r.UnregisterLayer("ghost")
		if len(r.Clients()) != 0 {
			t.Error("expected no clients")
		}
	})

	t.Run("removes both kinds of entry", func(t *testing.T) {
		r := New()
		_ = r.RegisterHandler("modA", resolves(true))
		_ = r.RegisterLayer("modA", &models.LayerFuncs{})
		r.Unregister("modA")

		if _, ok := r.LookupHandler("modA"); ok {
			t.Error("handler should be gone")
		}
		if _, ok := r.LookupLayer("modA"); ok {
			t.Error("layer should be gone")
		}
	})
}

func TestLayerDefaults(t *testing.T) {
	r := New()
	_ = r.RegisterLayer("bare", bareLayer{})
	high := models.LevelHigh
	_ = r.RegisterLayer("full", &models.LayerFuncs{Level: &high, DisabledFeatureNames: []string{"hot_reload"}})

	bare, _ := r.LookupLayer("bare")
	if bare.Level() != models.LevelMedium {
		t.Errorf("default level = %v, want MEDIUM", bare.Level())
	}
	if got := bare.DisabledFeatures(); got == nil || len(got) != 0 {
		t.Errorf("default disabled features = %v, want empty set", got)
	}

	full, _ := r.LookupLayer("full")
	if full.Level() != models.LevelHigh {
		t.Errorf("level = %v, want HIGH", full.Level())
	}
	if got := full.DisabledFeatures(); len(got) != 1 || got[0] != "hot_reload" {
		t.Errorf("disabled features = %v, want [hot_reload]", got)
	}
}

// bareLayer implements only the required capabilities.
type bareLayer struct{}

func (bareLayer) CanReload(context.Context) bool { return true }
func (bareLayer) OnReload(context.Context) error { return nil }

func TestClientsOrder(t *testing.T) {
	r := New()
	_ = r.RegisterLayer("modB", &models.LayerFuncs{})
	_ = r.RegisterHandler("modA", resolves(true))
	_ = r.RegisterHandler("modB", resolves(true))

	clients := r.Clients()
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}
	if clients[0].ClientID != "modB" || !clients[0].HasHandler || !clients[0].HasLayer {
		t.Errorf("first client = %+v, want modB with both entries", clients[0])
	}
	if clients[1].ClientID != "modA" {
		t.Errorf("second client = %s, want modA", clients[1].ClientID)
	}
}

func TestFreeze(t *testing.T) {
	t.Run("mutations are queued until thaw", func(t *testing.T) {
		r := New()
		_ = r.RegisterHandler("modA", resolves(true))

		r.Freeze()
		_ = r.RegisterHandler("modB", resolves(true))
		r.Unregister("modA")

		if _, ok := r.LookupHandler("modB"); ok {
			t.Error("modB should not be visible while frozen")
		}
		if _, ok := r.LookupHandler("modA"); !ok {
			t.Error("modA should still be visible while frozen")
		}

		r.Thaw()
		if _, ok := r.LookupHandler("modB"); !ok {
			t.Error("modB should be registered after thaw")
		}
		if _, ok := r.LookupHandler("modA"); ok {
			t.Error("modA should be removed after thaw")
		}
	})

	t.Run("change callbacks fire once per applied batch", func(t *testing.T) {
		r := New()
		var calls atomic.Int32
		r.OnChange(func() { calls.Add(1) })

		_ = r.RegisterHandler("modA", resolves(true))
		if calls.Load() != 1 {
			t.Fatalf("calls = %d, want 1", calls.Load())
		}

		r.Freeze()
		_ = r.RegisterHandler("modB", resolves(true))
		_ = r.RegisterHandler("modC", resolves(true))
		if calls.Load() != 1 {
			t.Errorf("callbacks should not fire while frozen, got %d", calls.Load())
		}
		r.Thaw()
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("callback may read the registry", func(t *testing.T) {
		r := New()
		seen := 0
		r.OnChange(func() { seen = len(r.Handlers()) })
		_ = r.RegisterHandler("modA", resolves(true))
		if seen != 1 {
			t.Errorf("callback saw %d handlers, want 1", seen)
		}
	})
}

func TestConcurrentRegistration(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.RegisterHandler(fmt.Sprintf("mod%d", i%10), resolves(true))
			_ = r.Handlers()
		}(i)
	}
	wg.Wait()

	if got := len(r.Handlers()); got != 10 {
		t.Errorf("expected 10 unique clients, got %d", got)
	}
}

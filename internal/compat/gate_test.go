// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package compat

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/models"
	"github.com/tomtom215/crashguard/internal/registry"
)

func level(l models.CompatibilityLevel) *models.CompatibilityLevel { return &l }

func consenting(consent bool) *models.LayerFuncs {
	return &models.LayerFuncs{CanReloadFunc: func(context.Context) bool { return consent }}
}

func newGate(cfg Config) (*Gate, *registry.Registry, *features.Flags) {
	reg := registry.New()
	flags := features.New(nil, nil)
	return New(cfg, reg, flags), reg, flags
}

func TestCheck(t *testing.T) {
	t.Run("no layers allows at HIGH", func(t *testing.T) {
		g, _, _ := newGate(Config{})
		d := g.Check(context.Background())
		if !d.Allowed || d.MinLevel != models.LevelHigh {
			t.Errorf("decision = %+v", d)
		}
		if d.DisabledFeatures == nil {
			t.Error("disabled features should be an empty set, not nil")
		}
	})

	t.Run("any refusal vetoes", func(t *testing.T) {
		g, reg, _ := newGate(Config{})
		_ = reg.RegisterLayer("modA", consenting(true))
		_ = reg.RegisterLayer("modB", consenting(false))
		_ = reg.RegisterLayer("modC", consenting(false))

		d := g.Check(context.Background())
		if d.Allowed {
			t.Fatal("expected veto")
		}
		if !reflect.DeepEqual(d.Refusals, []string{"modB", "modC"}) {
			t.Errorf("refusals = %v, want [modB modC]", d.Refusals)
		}
	})

	t.Run("panicking layer refuses", func(t *testing.T) {
		g, reg, _ := newGate(Config{})
		_ = reg.RegisterLayer("modA", &models.LayerFuncs{CanReloadFunc: func(context.Context) bool {
			panic("layer bug")
		}})
		d := g.Check(context.Background())
		if d.Allowed || len(d.Refusals) != 1 {
			t.Errorf("decision = %+v, want refusal from modA", d)
		}
	})

	t.Run("aggregates levels and features", func(t *testing.T) {
		g, reg, _ := newGate(Config{})
		_ = reg.RegisterLayer("modA", &models.LayerFuncs{Level: level(models.LevelHigh), DisabledFeatureNames: []string{"shaders", "hot_reload"}})
		_ = reg.RegisterLayer("modB", &models.LayerFuncs{Level: level(models.LevelLow), DisabledFeatureNames: []string{"shaders"}})
		_ = reg.RegisterLayer("modC", &models.LayerFuncs{})

		d := g.Check(context.Background())
		if d.MinLevel != models.LevelLow {
			t.Errorf("min level = %v, want LOW", d.MinLevel)
		}
		if !reflect.DeepEqual(d.DisabledFeatures, []string{"hot_reload", "shaders"}) {
			t.Errorf("disabled = %v", d.DisabledFeatures)
		}
		if d.PerClient["modC"] != models.LevelMedium {
			t.Errorf("modC level = %v, want default MEDIUM", d.PerClient["modC"])
		}
	})
}

func TestAggregate(t *testing.T) {
	g, reg, flags := newGate(Config{})
	_ = reg.RegisterLayer("modA", &models.LayerFuncs{Level: level(models.LevelMedium), DisabledFeatureNames: []string{features.HotReload}})

	if got := g.Aggregate(context.Background()); got != models.LevelMedium {
		t.Errorf("Aggregate = %v, want MEDIUM", got)
	}
	if flags.IsEnabled(features.HotReload) {
		t.Error("hot_reload should be disabled after aggregation")
	}

	reg.UnregisterLayer("modA")
	if got := g.Aggregate(context.Background()); got != models.LevelHigh {
		t.Errorf("Aggregate with no layers = %v, want HIGH", got)
	}
	if !flags.IsEnabled(features.HotReload) {
		t.Error("hot_reload should be re-enabled once modA is gone")
	}
}

func TestAggregateConcurrentChanges(t *testing.T) {
	g, reg, flags := newGate(Config{})
	reg.OnChange(func() { g.Aggregate(context.Background()) })

	if got := g.MinLevel(); got != models.LevelHigh {
		t.Fatalf("MinLevel before aggregation = %v, want HIGH", got)
	}

	_ = reg.RegisterLayer("anchor", &models.LayerFuncs{Level: level(models.LevelMedium)})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("mod%d", i)
			for j := 0; j < 20; j++ {
				_ = reg.RegisterLayer(id, &models.LayerFuncs{
					Level:                level(models.LevelLow),
					DisabledFeatureNames: []string{features.HotReload},
				})
				reg.UnregisterLayer(id)
			}
		}(i)
	}
	wg.Wait()

	// Only the anchor remains, so the last publication must match it.
	if got := g.MinLevel(); got != models.LevelMedium {
		t.Errorf("MinLevel = %v, want MEDIUM", got)
	}
	if !flags.IsEnabled(features.HotReload) {
		t.Errorf("hot_reload disabled by %v after every layer that disabled it left", flags.DisabledBy(features.HotReload))
	}
}

func TestHasKnownIssues(t *testing.T) {
	g, reg, _ := newGate(Config{KnownIssues: map[string]string{"oldmod": "corrupts saves on reload"}})
	_ = reg.RegisterLayer("broken", &models.LayerFuncs{Level: level(models.LevelIncompatible)})
	_ = reg.RegisterLayer("fine", &models.LayerFuncs{})

	tests := []struct {
		clientID string
		want     bool
	}{
		{"oldmod", true},
		{"broken", true},
		{"fine", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.clientID, func(t *testing.T) {
			if got := g.HasKnownIssues(tt.clientID); got != tt.want {
				t.Errorf("HasKnownIssues(%s) = %v, want %v", tt.clientID, got, tt.want)
			}
		})
	}
}

func TestDetectedConflicts(t *testing.T) {
	t.Run("empty registry has no conflicts", func(t *testing.T) {
		g, _, _ := newGate(Config{KnownIssues: map[string]string{"oldmod": "x"}})
		if got := g.DetectedConflicts(); len(got) != 0 {
			t.Errorf("conflicts = %v, want none", got)
		}
	})

	t.Run("groups follow registration order", func(t *testing.T) {
		g, reg, _ := newGate(Config{
			KnownIssues:      map[string]string{"oldmod": "leaks memory"},
			SoftDependencies: map[string][]string{"addon": {"core"}, "extra": {"missing"}},
		})
		_ = reg.RegisterLayer("broken", &models.LayerFuncs{Level: level(models.LevelIncompatible)})
		_ = reg.RegisterLayer("addon", &models.LayerFuncs{})
		_ = reg.RegisterLayer("core", &models.LayerFuncs{})
		_ = reg.RegisterHandler("oldmod", models.CrashHandlerFunc(func(context.Context, models.FaultContext) bool { return false }))
		_ = reg.RegisterLayer("extra", &models.LayerFuncs{})

		want := []string{
			"oldmod: known issue: leaks memory",
			"broken: reports INCOMPATIBLE compatibility level",
			"addon: registered before soft dependency core",
			"extra: soft dependency missing is not registered",
		}
		if got := g.DetectedConflicts(); !reflect.DeepEqual(got, want) {
			t.Errorf("conflicts =\n%v\nwant\n%v", got, want)
		}
	})
}

func TestCheckClient(t *testing.T) {
	g, reg, _ := newGate(Config{KnownIssues: map[string]string{"modA": "flickers"}})
	_ = reg.RegisterLayer("modA", &models.LayerFuncs{Level: level(models.LevelLow), DisabledFeatureNames: []string{"shaders"}})

	report := g.CheckClient(context.Background(), "modA")
	if !report.Registered || !report.CanReload || report.Level != models.LevelLow {
		t.Errorf("report = %+v", report)
	}
	if report.KnownIssue != "flickers" {
		t.Errorf("known issue = %q", report.KnownIssue)
	}

	missing := g.CheckClient(context.Background(), "ghost")
	if missing.Registered || missing.Level != models.LevelMedium {
		t.Errorf("report for unregistered client = %+v", missing)
	}
}

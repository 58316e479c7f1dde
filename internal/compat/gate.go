// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package compat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/models"
	"github.com/tomtom215/crashguard/internal/registry"
)

// Config holds the static compatibility tables loaded from configuration.
type Config struct {
	// KnownIssues maps a client ID to a description of its known issue.
	KnownIssues map[string]string

	// SoftDependencies maps a client ID to the clients it should be
	// registered after.
	SoftDependencies map[string][]string
}

// Decision is the result of polling every registered layer.
type Decision struct {
	Allowed          bool                                 `json:"allowed"`
	Refusals         []string                             `json:"refusals,omitempty"`
	DisabledFeatures []string                             `json:"disabled_features"`
	MinLevel         models.CompatibilityLevel            `json:"min_level"`
	PerClient        map[string]models.CompatibilityLevel `json:"per_client"`
}

// ClientReport describes one client's compatibility state.
type ClientReport struct {
	ClientID         string                    `json:"client_id"`
	Registered       bool                      `json:"registered"`
	CanReload        bool                      `json:"can_reload"`
	Level            models.CompatibilityLevel `json:"level"`
	DisabledFeatures []string                  `json:"disabled_features"`
	KnownIssue       string                    `json:"known_issue,omitempty"`
}

// Gate polls compatibility layers and aggregates their declarations.
type Gate struct {
	cfg      Config
	registry *registry.Registry
	flags    *features.Flags

	// aggMu serialises Aggregate so the snapshot read and the flag and
	// level publication happen as one step.
	aggMu    sync.Mutex
	minLevel atomic.Int32
}

// New creates a gate. The config tables are read-only after construction.
func New(cfg Config, reg *registry.Registry, flags *features.Flags) *Gate {
	known := make(map[string]string, len(cfg.KnownIssues))
	for k, v := range cfg.KnownIssues {
		known[k] = v
	}
	deps := make(map[string][]string, len(cfg.SoftDependencies))
	for k, v := range cfg.SoftDependencies {
		deps[k] = append([]string(nil), v...)
	}
	g := &Gate{
		cfg:      Config{KnownIssues: known, SoftDependencies: deps},
		registry: reg,
		flags:    flags,
	}
	g.minLevel.Store(int32(models.LevelHigh))
	return g
}

// Check asks every layer, in registration order, whether it consents to a
// reload. Any refusal vetoes. A layer that panics refuses.
func (g *Gate) Check(ctx context.Context) Decision {
	d := Decision{
		MinLevel:  models.LevelHigh,
		PerClient: map[string]models.CompatibilityLevel{},
	}
	disabled := map[string]struct{}{}

	for _, entry := range g.registry.Layers() {
		if !canReload(ctx, entry) {
			d.Refusals = append(d.Refusals, entry.ClientID)
		}
		level := levelOf(entry)
		d.PerClient[entry.ClientID] = level
		if level < d.MinLevel {
			d.MinLevel = level
		}
		for _, name := range disabledOf(entry) {
			disabled[name] = struct{}{}
		}
	}

	d.Allowed = len(d.Refusals) == 0
	d.DisabledFeatures = sortedKeys(disabled)
	return d
}

// Aggregate pushes every layer's disabled features into the flag set and
// returns the minimum reported level. With no layers the minimum is HIGH.
//
// Concurrent calls are serialised and each reads the registry snapshot
// only once it holds the lock, so the last publication always reflects
// the newest registrations.
func (g *Gate) Aggregate(ctx context.Context) models.CompatibilityLevel {
	g.aggMu.Lock()
	defer g.aggMu.Unlock()

	byClient := map[string][]string{}
	lowest := models.LevelHigh
	for _, entry := range g.registry.Layers() {
		if names := disabledOf(entry); len(names) > 0 {
			byClient[entry.ClientID] = names
		}
		if level := levelOf(entry); level < lowest {
			lowest = level
		}
	}
	g.flags.SetClientDisabled(byClient)
	g.minLevel.Store(int32(lowest))

	logging.Ctx(ctx).Debug().
		Int("clients_disabling", len(byClient)).
		Str("min_level", lowest.String()).
		Msg("Aggregated compatibility layers")
	return lowest
}

// MinLevel returns the minimum level published by the latest Aggregate.
// HIGH before the first aggregation.
func (g *Gate) MinLevel() models.CompatibilityLevel {
	return models.CompatibilityLevel(g.minLevel.Load())
}

// CheckClient reports on a single client and logs the result.
func (g *Gate) CheckClient(ctx context.Context, clientID string) ClientReport {
	report := ClientReport{
		ClientID:         clientID,
		Level:            models.DefaultCompatibilityLevel,
		DisabledFeatures: []string{},
		KnownIssue:       g.cfg.KnownIssues[clientID],
	}
	if entry, ok := g.registry.LookupLayer(clientID); ok {
		report.Registered = true
		report.CanReload = canReload(ctx, entry)
		report.Level = levelOf(entry)
		report.DisabledFeatures = disabledOf(entry)
	}

	level := zerolog.InfoLevel
	if report.KnownIssue != "" || report.Level == models.LevelIncompatible {
		level = zerolog.WarnLevel
	}
	logging.Ctx(ctx).WithLevel(level).
		Str("client_id", clientID).
		Bool("registered", report.Registered).
		Bool("can_reload", report.CanReload).
		Str("level", report.Level.String()).
		Strs("disabled_features", report.DisabledFeatures).
		Str("known_issue", report.KnownIssue).
		Msg("Compatibility check")
	return report
}

// LevelOf returns the level a registered layer reports. A panicking
// report reads as INCOMPATIBLE.
func (g *Gate) LevelOf(clientID string) (models.CompatibilityLevel, bool) {
	entry, ok := g.registry.LookupLayer(clientID)
	if !ok {
		return 0, false
	}
	return levelOf(entry), true
}

// KnownIssue returns the configured known-issue description for clientID.
func (g *Gate) KnownIssue(clientID string) (string, bool) {
	desc, ok := g.cfg.KnownIssues[clientID]
	return desc, ok
}

// HasKnownIssues reports whether clientID is listed in the known-issues
// table or its registered layer reports INCOMPATIBLE.
func (g *Gate) HasKnownIssues(clientID string) bool {
	if _, ok := g.cfg.KnownIssues[clientID]; ok {
		return true
	}
	if entry, ok := g.registry.LookupLayer(clientID); ok {
		return levelOf(entry) == models.LevelIncompatible
	}
	return false
}

// DetectedConflicts lists problems among registered clients: known issues,
// then INCOMPATIBLE layers, then soft-dependency load-order violations.
// Each group is in registration order.
func (g *Gate) DetectedConflicts() []string {
	clients := g.registry.Clients()
	seqByID := make(map[string]uint64, len(clients))
	for _, c := range clients {
		seqByID[c.ClientID] = c.Seq
	}

	conflicts := []string{}
	for _, c := range clients {
		if desc, ok := g.cfg.KnownIssues[c.ClientID]; ok {
			conflicts = append(conflicts, fmt.Sprintf("%s: known issue: %s", c.ClientID, desc))
		}
	}
	for _, c := range clients {
		if entry, ok := g.registry.LookupLayer(c.ClientID); ok && levelOf(entry) == models.LevelIncompatible {
			conflicts = append(conflicts, fmt.Sprintf("%s: reports %s compatibility level", c.ClientID, models.LevelIncompatible))
		}
	}
	for _, c := range clients {
		for _, dep := range g.cfg.SoftDependencies[c.ClientID] {
			depSeq, present := seqByID[dep]
			switch {
			case !present:
				conflicts = append(conflicts, fmt.Sprintf("%s: soft dependency %s is not registered", c.ClientID, dep))
			case depSeq > c.Seq:
				conflicts = append(conflicts, fmt.Sprintf("%s: registered before soft dependency %s", c.ClientID, dep))
			}
		}
	}
	return conflicts
}

func canReload(ctx context.Context, entry registry.LayerEntry) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Str("client_id", entry.ClientID).
				Str("panic", fmt.Sprint(r)).
				Msg("Compatibility layer panicked in CanReload, treating as refusal")
			ok = false
		}
	}()
	return entry.Layer.CanReload(ctx)
}

// levelOf treats a panicking level report as INCOMPATIBLE.
func levelOf(entry registry.LayerEntry) (level models.CompatibilityLevel) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("client_id", entry.ClientID).Str("panic", fmt.Sprint(r)).Msg("Compatibility layer panicked reporting its level")
			level = models.LevelIncompatible
		}
	}()
	return entry.Level()
}

// disabledOf returns the layer's disabled features, deduplicated. A
// panicking report disables nothing.
func disabledOf(entry registry.LayerEntry) (names []string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("client_id", entry.ClientID).Str("panic", fmt.Sprint(r)).Msg("Compatibility layer panicked reporting disabled features")
			names = []string{}
		}
	}()
	seen := map[string]struct{}{}
	for _, name := range entry.DisabledFeatures() {
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

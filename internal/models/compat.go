// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package models

import (
	"context"
	"fmt"
	"strings"
)

// CompatibilityLevel is a client's self-reported confidence that it
// survives a hot-reload. Higher values are more compatible.
type CompatibilityLevel int

const (
	LevelIncompatible CompatibilityLevel = iota
	LevelLow
	LevelMedium
	LevelHigh
)

// DefaultCompatibilityLevel is applied to layers that do not report a level.
const DefaultCompatibilityLevel = LevelMedium

// String returns the upper-case level name.
func (l CompatibilityLevel) String() string {
	switch l {
	case LevelHigh:
		return "HIGH"
	case LevelMedium:
		return "MEDIUM"
	case LevelLow:
		return "LOW"
	case LevelIncompatible:
		return "INCOMPATIBLE"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// MarshalText encodes the level by name.
func (l CompatibilityLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ParseCompatibilityLevel parses a level name, case-insensitively.
func ParseCompatibilityLevel(s string) (CompatibilityLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return LevelHigh, nil
	case "MEDIUM":
		return LevelMedium, nil
	case "LOW":
		return LevelLow, nil
	case "INCOMPATIBLE":
		return LevelIncompatible, nil
	default:
		return LevelIncompatible, fmt.Errorf("unknown compatibility level %q", s)
	}
}

// CompatibilityLayer is the required capability set of a client taking part
// in hot-reload.
type CompatibilityLayer interface {
	// CanReload reports whether the client consents to a reload right now.
	CanReload(ctx context.Context) bool

	// OnReload runs inside the reload transaction, after the snapshot.
	OnReload(ctx context.Context) error
}

// Initializer is an optional capability, called once on registration.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// LevelReporter is an optional capability. Layers without it are
// DefaultCompatibilityLevel.
type LevelReporter interface {
	CompatibilityLevel() CompatibilityLevel
}

// FeatureDisabler is an optional capability. Layers without it disable nothing.
type FeatureDisabler interface {
	DisabledFeatures() []string
}

// LayerFuncs builds a CompatibilityLayer out of closures. Nil fields fall
// back to the registry defaults: consent, a no-op hook, MEDIUM, nothing
// disabled.
type LayerFuncs struct {
	InitializeFunc       func(ctx context.Context) error
	CanReloadFunc        func(ctx context.Context) bool
	OnReloadFunc         func(ctx context.Context) error
	Level                *CompatibilityLevel
	DisabledFeatureNames []string
}

// Initialize calls InitializeFunc when set.
func (f *LayerFuncs) Initialize(ctx context.Context) error {
	if f.InitializeFunc == nil {
		return nil
	}
	return f.InitializeFunc(ctx)
}

// CanReload calls CanReloadFunc when set, otherwise consents.
func (f *LayerFuncs) CanReload(ctx context.Context) bool {
	if f.CanReloadFunc == nil {
		return true
	}
	return f.CanReloadFunc(ctx)
}

// OnReload calls OnReloadFunc when set.
func (f *LayerFuncs) OnReload(ctx context.Context) error {
	if f.OnReloadFunc == nil {
		return nil
	}
	return f.OnReloadFunc(ctx)
}

// CompatibilityLevel returns Level or the default.
func (f *LayerFuncs) CompatibilityLevel() CompatibilityLevel {
	if f.Level == nil {
		return DefaultCompatibilityLevel
	}
	return *f.Level
}

// DisabledFeatures returns DisabledFeatureNames.
func (f *LayerFuncs) DisabledFeatures() []string {
	return f.DisabledFeatureNames
}

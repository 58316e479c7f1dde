// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

// Package sampler periodically reads host performance counters and memory
// usage into a PerformanceSnapshot. Only the latest snapshot is kept.
// Ticks are skipped while a reload has the sampler frozen or when the
// performance_monitor feature is disabled.
package sampler

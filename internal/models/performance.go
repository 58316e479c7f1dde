// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package models

import "time"

// PerformanceSnapshot is one immutable sample of host performance.
type PerformanceSnapshot struct {
	AverageFPS         float64   `json:"average_fps"`
	MemoryUsed         uint64    `json:"memory_used"`
	MemoryTotal        uint64    `json:"memory_total"`
	MemoryUsagePercent float64   `json:"memory_usage_percent"`
	TickRate           int       `json:"tick_rate"`
	EntityCount        int       `json:"entity_count"`
	ChunkCount         int       `json:"chunk_count"`
	CapturedAt         time.Time `json:"captured_at"`
}

// MemoryPercent derives the usage percentage. Zero total yields zero.
func MemoryPercent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

// IsZero reports whether no sample has been captured yet.
func (s PerformanceSnapshot) IsZero() bool {
	return s.CapturedAt.IsZero()
}

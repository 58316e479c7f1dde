// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package messaging

import (
	"context"
	"time"
)

// Lifecycle event topics.
const (
	TopicFaultUnhandled  = "fault.unhandled"
	TopicSafeModeEntered = "safe_mode.entered"
	TopicSafeModeReset   = "safe_mode.reset"
	TopicReloadCompleted = "reload.completed"
	TopicReloadVetoed    = "reload.vetoed"
	TopicSaveFailed      = "save.failed"
	TopicSaveCompleted   = "save.completed"
)

// Topics returns every lifecycle topic.
func Topics() []string {
	return []string{
		TopicFaultUnhandled,
		TopicSafeModeEntered,
		TopicSafeModeReset,
		TopicReloadCompleted,
		TopicReloadVetoed,
		TopicSaveFailed,
		TopicSaveCompleted,
	}
}

// Emitter publishes lifecycle events without reporting failures to the caller.
type Emitter interface {
	Emit(ctx context.Context, topic string, payload any)
}

// FaultEvent is published on fault.unhandled.
type FaultEvent struct {
	FaultID        string    `json:"fault_id"`
	Location       string    `json:"location"`
	OriginClientID string    `json:"origin_client_id,omitempty"`
	Message        string    `json:"message"`
	Panicked       bool      `json:"panicked"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// SafeModeEvent is published on safe_mode.entered and safe_mode.reset.
type SafeModeEvent struct {
	Active  bool      `json:"active"`
	Reason  string    `json:"reason,omitempty"`
	FaultID string    `json:"fault_id,omitempty"`
	At      time.Time `json:"at"`
}

// ReloadEvent is published on reload.completed and reload.vetoed.
type ReloadEvent struct {
	ReloadID         string   `json:"reload_id"`
	Vetoes           []string `json:"vetoes,omitempty"`
	Invoked          []string `json:"invoked,omitempty"`
	FailedClients    []string `json:"failed_clients,omitempty"`
	DisabledFeatures []string `json:"disabled_features,omitempty"`
	MinLevel         string   `json:"min_level,omitempty"`
	DurationMS       int64    `json:"duration_ms"`
}

// SaveEvent is published on save.completed and save.failed.
type SaveEvent struct {
	RecordID string   `json:"record_id"`
	Kind     string   `json:"kind"`
	Reasons  []string `json:"reasons"`
	Error    string   `json:"error,omitempty"`
	Bytes    int      `json:"bytes"`
}

// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package models

import (
	"context"
	"time"
)

// FaultContext describes one fault captured by the crash interceptor.
// It is created once at fault time and handed to handlers by value.
type FaultContext struct {
	ID             string    `json:"id"`
	Location       string    `json:"location"`
	OriginClientID string    `json:"origin_client_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"` // carries the monotonic reading
	Cause          error     `json:"-"`
	Message        string    `json:"message"`
	Stack          string    `json:"stack,omitempty"`
	Panicked       bool      `json:"panicked"`
}

// CrashHandler attempts to resolve a fault. Returning true stops dispatch.
type CrashHandler interface {
	AttemptResolve(ctx context.Context, fault FaultContext) bool
}

// CrashHandlerFunc adapts a plain function to CrashHandler.
type CrashHandlerFunc func(ctx context.Context, fault FaultContext) bool

// AttemptResolve calls f(ctx, fault).
func (f CrashHandlerFunc) AttemptResolve(ctx context.Context, fault FaultContext) bool {
	return f(ctx, fault)
}

// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package models

import "time"

// APIResponse wraps every HTTP status endpoint response.
//
// Status is "success" with Data set, or "error" with Error set:
//
//	{
//	  "status": "error",
//	  "error": {"code": "RELOAD_VETOED", "message": "reload vetoed by modA"},
//	  "metadata": {"timestamp": "2026-10-14T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata is attached to every response.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	DurationMS    int64     `json:"duration_ms,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SaveRequest is the body of POST /api/v1/save.
type SaveRequest struct {
	Reason string `json:"reason" validate:"required,max=256"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Version     string          `json:"version"`
	Features    map[string]bool `json:"features"`
	SafeMode    bool            `json:"safe_mode"`
	SafeReason  string          `json:"safe_mode_reason,omitempty"`
	ReloadState string          `json:"reload_state"`
	MinLevel    string          `json:"min_level"`
	Clients     []ClientStatus  `json:"clients"`
	PendingSave int             `json:"pending_saves"`
}

// ClientStatus summarises one registered client.
type ClientStatus struct {
	ClientID     string `json:"client_id"`
	CrashHandler bool   `json:"crash_handler"`
	CompatLayer  bool   `json:"compat_layer"`
	Level        string `json:"level,omitempty"`
	KnownIssue   string `json:"known_issue,omitempty"`
}

// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package models

import "time"

// SaveKind classifies a persisted save record.
type SaveKind string

const (
	// SaveKindEmergency is a coalesced batch containing at least one
	// emergency request.
	SaveKindEmergency SaveKind = "emergency"

	// SaveKindAuto is a coalesced batch of auto-save requests only.
	SaveKindAuto SaveKind = "auto"

	// SaveKindReload is the synchronous snapshot taken inside a reload.
	SaveKindReload SaveKind = "reload"
)

// SaveRecord is one durable write issued by the save coordinator.
type SaveRecord struct {
	ID          string    `json:"id"`
	Kind        SaveKind  `json:"kind"`
	Reasons     []string  `json:"reasons"`
	RequestedAt time.Time `json:"requested_at"` // earliest request in the batch
	WrittenAt   time.Time `json:"written_at"`
	Payload     []byte    `json:"payload,omitempty"`
}

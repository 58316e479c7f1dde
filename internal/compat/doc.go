// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

// Package compat implements the compatibility gate: it polls registered
// compatibility layers before a reload, aggregates their disabled features
// into the feature flag set, and reports known issues and load-order
// conflicts from the static configuration tables.
package compat

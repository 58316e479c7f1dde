// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package reload runs hot-reload transactions.

A transaction moves through

	IDLE -> GATE_CHECK -> (VETOED | FREEZING) -> SNAPSHOTTING ->
	INVOKING_HOOKS -> REINITIALIZING -> RESUMED -> IDLE

Only one transaction runs at a time; a second request gets
ErrReloadInProgress. Any refusing compatibility layer vetoes the reload
before anything is frozen. FREEZING holds registry mutations, skips sampler
ticks and pauses guarded host work, bounded by Config.FreezeTimeout.

Hooks run once each in registration order on a context marked with
host.WithinTransaction. A failing or panicking hook is recorded in the
Summary and the remaining hooks still run.
*/
package reload

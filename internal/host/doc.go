// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package host is the supervisor's view of the host engine.

Gate admits guarded host work and lets the reload orchestrator pause it for
the critical section of a reload:

	if err := gate.Enter(ctx); err != nil {
		return err
	}
	defer gate.Leave()

Counters is an Introspector the host updates as it runs; the performance
sampler reads it on every tick. Hosts that can rebuild state after reload
hooks implement Reinitializer.
*/
package host

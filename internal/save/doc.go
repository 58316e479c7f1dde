// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package save coordinates emergency, automatic and reload-scoped saves.

RequestSave appends a reason to the pending batch and signals the worker;
it never blocks and never returns an error. The worker waits the coalesce
window after the first request of a batch, waits for the write limiter,
and writes the whole batch as one SaveRecord. A batch containing any
emergency request is stored as an emergency record.

	coord := save.NewCoordinator(save.DefaultConfig(), store, host, bus)
	_ = coord.Start(ctx)
	coord.RequestSave("unhandled fault at tick")

Failed writes are logged, counted and published on save.failed. Stop
flushes whatever is still pending.

Capture is the synchronous path used inside a reload transaction. It is not
coalesced or paced and returns the write error to the caller.
*/
package save

// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package interceptor catches faults in host callbacks and dispatches them to
registered crash handlers.

Dispatch order is registration order. The first handler returning true
resolves the fault and later handlers are not called. A handler that panics
is recovered, logged and treated as not resolving; repeated panics open that
client's circuit breaker and its handler is skipped until the breaker lets a
trial attempt through.

When no handler resolves a fault the interceptor escalates: it requests
exactly one emergency save, publishes fault.unhandled and, if the safe_mode
feature is enabled, latches safe mode.

With crash_prevention disabled, Intercept only logs and Guard lets panics
propagate.

Handlers run synchronously on the faulting goroutine and no timeout is
enforced on them.
*/
package interceptor

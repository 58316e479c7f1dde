// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package services provides suture.Service wrappers for crashguard components.

  - LifecycleService: Start/Stop components (sampler, save coordinator,
    auto-save, store compactor)
  - MailboxService: the inbound message loop; a closed mailbox is not
    restarted
  - HTTPServerService: the sidecar status server with graceful shutdown

Wrappers return ctx.Err() on cancellation so suture records a clean stop.
*/
package services

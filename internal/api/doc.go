// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package api is the crashguard entry point: the Supervisor facade hosts embed
and the HTTP status server the sidecar binary exposes.

# Embedding

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sup, err := api.New(cfg, api.Options{State: world})
	if err != nil {
		return err
	}
	defer sup.Close()

	errCh := sup.ServeBackground(ctx)

	_ = sup.RegisterCrashHandler("minimap", handler)
	err = sup.Guard(ctx, "entity.tick", "minimap", func(ctx context.Context) error {
		return tickEntities(ctx)
	})

Clients that must not block use the mailbox instead of direct calls:

	_ = sup.Mailbox().Send(messaging.RequestEmergencySave{Reason: "player quit"})

# Components

New wires, in dependency order:

  - registry, feature flags and the compatibility gate
  - the lifecycle event bus and the save store (BadgerDB unless
    Options.Persister is set)
  - the save coordinator and auto-saver
  - the crash interceptor and the performance sampler
  - the reload orchestrator and the inbound mailbox
  - the suture tree that runs every long-lived loop

Registry changes re-aggregate compatibility layers, so IsFeatureEnabled and
MinCompatibilityLevel reflect a registration as soon as it returns, except
during a reload, when registrations queue until the transaction resumes.

# HTTP

When server.enabled is set, the API layer of the tree serves NewRouter. See
router.go for the routes. Mutating routes are rate limited per IP.
*/
package api

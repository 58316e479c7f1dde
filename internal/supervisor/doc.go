// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package supervisor runs crashguard's long-lived loops under a suture v4
supervisor tree.

	crashguard
	├── core-layer
	│   ├── mailbox
	│   ├── save-coordinator
	│   └── store-compactor
	├── monitor-layer
	│   ├── performance-sampler
	│   └── auto-save
	└── api-layer
	    └── http-server (sidecar mode only)

Each layer restarts independently with exponential backoff. Supervisor
events are logged through sutureslog on the slog bridge of the logging
package:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddCoreService(services.NewMailboxService(mailbox))
	errCh := tree.ServeBackground(ctx)

Service wrappers live in the services subpackage.
*/
package supervisor

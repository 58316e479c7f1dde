// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package main runs crashguard as a standalone process.

Hosts normally embed the supervisor through internal/api. The binary is the
same supervisor without a host attached: host counters stay at zero until
something updates them, and the HTTP status surface is the main way to
observe it.

# Supervisor Tree

	crashguard
	├── core-layer
	│   ├── mailbox
	│   ├── emergency save coordinator
	│   └── save store compactor (embedded store only)
	├── monitor-layer
	│   ├── performance sampler
	│   └── auto-save ticker
	└── api-layer
	    └── HTTP server (server.enabled)

# Configuration

Configuration is loaded by internal/config (highest priority wins):
  - Environment variables (CRASHGUARD_*)
  - Config file (CONFIG_PATH, crashguard.yaml, /etc/crashguard/config.yaml)
  - Built-in defaults

When a config file is in use it is watched. Changes to logging.level are
applied without a restart; every other setting needs one.

# Example Usage

	export CRASHGUARD_HTTP_ENABLED=true
	export CRASHGUARD_SAVE_PATH=/var/lib/crashguard/saves
	./crashguard

# Signal Handling

SIGINT and SIGTERM cancel the tree. Services stop within
supervisor.shutdown_timeout, pending emergency saves are flushed and the
save store is closed before the process exits.
*/
package main

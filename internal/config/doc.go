// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package config loads crashguard configuration with koanf v2.

Sources, lowest to highest priority:

 1. Built-in defaults (every feature enabled, embedded mode)
 2. A YAML file from CONFIG_PATH or crashguard.yaml, /etc/crashguard/config.yaml
 3. CRASHGUARD_* environment variables

Example file:

	features:
	  hot_reload: true
	  auto_save: false
	safe_mode:
	  high_risk_features: [hot_reload]
	load_order:
	  soft_dependencies:
	    minimap: [worldedit]
	compatibility:
	  known_issues:
	    optifine: "replaces the chunk renderer"
	reload:
	  freeze_timeout: 5s
	save:
	  path: /data/crashguard/saves
	  coalesce_window: 250ms

Client identifiers used as map keys must not contain dots, since koanf uses
"." as its path delimiter.

Load validates struct tags through the validation package and then the
cross-field rules in config_validate.go.
*/
package config

// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package models defines the data structures shared across crashguard.

Client contracts:

  - CrashHandler / CrashHandlerFunc: resolves a FaultContext or declines it
  - CompatibilityLayer: consents to reloads and runs a reload hook
  - Initializer, LevelReporter, FeatureDisabler: optional layer capabilities
  - LayerFuncs: function-field adapter implementing all of the above

Records:

  - FaultContext: one intercepted fault
  - PerformanceSnapshot: one sampler reading
  - SaveRecord: one persisted emergency, auto or reload save

HTTP shapes (APIResponse, StatusResponse, SaveRequest) live in
api_responses.go.

Models carry no behaviour beyond small helpers; the packages that own each
concern enforce the invariants.
*/
package models

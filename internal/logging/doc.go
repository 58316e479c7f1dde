// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

// Package logging provides centralized zerolog-based logging for Crashguard.
//
// Every component logs through the global logger configured here, so crash
// interception, reload transactions, sampler ticks and save batches all land
// in one structured stream.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("client_id", id).Msg("Crash handler registered")
//	logging.Err(err).Msg("Emergency save failed")
//	logging.Ctx(ctx).Warn().Msg("Reload vetoed")
//
// # Adapters
//
//   - SlogHandler bridges slog to zerolog for sutureslog (supervisor events).
//   - WatermillAdapter bridges watermill.LoggerAdapter to zerolog (event bus).
//
// # Best Practices
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
package logging

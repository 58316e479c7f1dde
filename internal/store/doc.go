// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package store persists save records in BadgerDB.

Records are JSON encoded and keyed by kind prefix and write time:

	emergency:<unix-nanos>:<id>
	auto:<unix-nanos>:<id>
	reload:<unix-nanos>:<id>

so iteration within a kind is oldest first. Compactor keeps the newest
Retain records of each kind and runs value log GC on a fixed interval.

Open with InMemory set for tests:

	s, err := store.Open(&store.Config{InMemory: true, CompactInterval: time.Minute, GCRatio: 0.5})
*/
package store

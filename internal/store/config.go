// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package store

import (
	"fmt"
	"time"
)

// Config configures the BadgerDB save store.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory. Used by tests and by hosts
	// that only want save events, not durable records.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Compression enables Snappy compression of records.
	Compression bool

	// Retain is the number of records kept per kind by the compactor.
	// Zero keeps everything.
	Retain int

	// CompactInterval is the time between compaction runs.
	CompactInterval time.Duration

	// GCRatio is the value log garbage collection discard ratio.
	GCRatio float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:            "/data/crashguard/saves",
		SyncWrites:      true,
		Compression:     true,
		Retain:          50,
		CompactInterval: 30 * time.Minute,
		GCRatio:         0.5,
	}
}

// ConfigError describes an invalid store setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("store config: %s: %s", e.Field, e.Message)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return &ConfigError{Field: "Path", Message: "required unless in-memory"}
	}
	if c.Retain < 0 {
		return &ConfigError{Field: "Retain", Message: "must not be negative"}
	}
	if c.CompactInterval < time.Second {
		return &ConfigError{Field: "CompactInterval", Message: "must be at least 1 second"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be between 0 and 1 (exclusive)"}
	}
	return nil
}

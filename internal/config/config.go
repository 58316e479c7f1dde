// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package config

import (
	"time"

	"github.com/tomtom215/crashguard/internal/features"
)

// Config holds all supervisor configuration.
//
// Loading order (koanf v2):
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment: CRASHGUARD_* variables through an explicit mapping
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Features      FeaturesConfig      `koanf:"features"`
	SafeMode      SafeModeConfig      `koanf:"safe_mode"`
	LoadOrder     LoadOrderConfig     `koanf:"load_order"`
	Compatibility CompatibilityConfig `koanf:"compatibility"`
	Interceptor   InterceptorConfig   `koanf:"interceptor"`
	Reload        ReloadConfig        `koanf:"reload"`
	Sampler       SamplerConfig       `koanf:"sampler"`
	Save          SaveConfig          `koanf:"save"`
	Messaging     MessagingConfig     `koanf:"messaging"`
	Supervisor    SupervisorConfig    `koanf:"supervisor"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// FeaturesConfig is the global feature policy. A false value disables the
// feature regardless of what compatibility layers declare.
type FeaturesConfig struct {
	CrashPrevention    bool `koanf:"crash_prevention"`
	HotReload          bool `koanf:"hot_reload"`
	PerformanceMonitor bool `koanf:"performance_monitor"`
	AutoSave           bool `koanf:"auto_save"`
	SafeMode           bool `koanf:"safe_mode"`
}

// Policy returns the toggles keyed by feature name.
func (f FeaturesConfig) Policy() map[string]bool {
	return map[string]bool{
		features.CrashPrevention:    f.CrashPrevention,
		features.HotReload:          f.HotReload,
		features.PerformanceMonitor: f.PerformanceMonitor,
		features.AutoSave:           f.AutoSave,
		features.SafeMode:           f.SafeMode,
	}
}

// SafeModeConfig lists the features suppressed while safe mode is active.
type SafeModeConfig struct {
	HighRiskFeatures []string `koanf:"high_risk_features" validate:"dive,feature"`
}

// LoadOrderConfig declares soft dependencies: a client should be
// registered after every client it lists.
type LoadOrderConfig struct {
	SoftDependencies map[string][]string `koanf:"soft_dependencies" validate:"dive,keys,clientid,endkeys"`
}

// CompatibilityConfig holds the static known-issues table.
type CompatibilityConfig struct {
	KnownIssues map[string]string `koanf:"known_issues" validate:"dive,keys,clientid,endkeys,required"`
}

// InterceptorConfig configures per-handler circuit breakers.
type InterceptorConfig struct {
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// ReloadConfig configures the reload orchestrator.
type ReloadConfig struct {
	// FreezeTimeout bounds the wait for in-flight host work to drain.
	FreezeTimeout time.Duration `koanf:"freeze_timeout" validate:"gt=0"`
}

// SamplerConfig configures the performance sampler.
type SamplerConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gte=100ms"`
}

// SaveConfig configures the save store and the save coordinator.
type SaveConfig struct {
	Path            string        `koanf:"path"`
	InMemory        bool          `koanf:"in_memory"`
	SyncWrites      bool          `koanf:"sync_writes"`
	Compression     bool          `koanf:"compression"`
	Retain          int           `koanf:"retain" validate:"gte=1"`
	CompactInterval time.Duration `koanf:"compact_interval" validate:"gt=0"`
	GCRatio         float64       `koanf:"gc_ratio" validate:"gt=0,lt=1"`
	CoalesceWindow  time.Duration `koanf:"coalesce_window" validate:"gte=0"`
	MinInterval     time.Duration `koanf:"min_interval" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	AutoInterval    time.Duration `koanf:"auto_interval" validate:"gt=0"`
}

// MessagingConfig sizes the inbound mailbox and the event bus.
type MessagingConfig struct {
	MailboxBuffer int   `koanf:"mailbox_buffer" validate:"gte=1"`
	EventBuffer   int64 `koanf:"event_buffer" validate:"gte=0"`
}

// SupervisorConfig mirrors supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// ServerConfig configures the sidecar HTTP status server.
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Addr    string        `koanf:"addr" validate:"omitempty,hostname_port"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RateLimit is the per-IP requests per minute allowed on mutating
	// routes (reload, save, safe mode reset). Zero disables limiting.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	// Empty allows none.
	CORSOrigins []string `koanf:"cors_origins" validate:"dive,required"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

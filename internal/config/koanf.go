// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/crashguard/internal/features"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"crashguard.yaml",
	"crashguard.yml",
	"/etc/crashguard/config.yaml",
	"/etc/crashguard/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix is the prefix of every mapped environment variable.
const EnvPrefix = "CRASHGUARD_"

// defaultConfig returns the built-in defaults. Every feature is on.
func defaultConfig() *Config {
	return &Config{
		Features: FeaturesConfig{
			CrashPrevention:    true,
			HotReload:          true,
			PerformanceMonitor: true,
			AutoSave:           true,
			SafeMode:           true,
		},
		SafeMode: SafeModeConfig{
			HighRiskFeatures: append([]string(nil), features.DefaultHighRisk...),
		},
		Interceptor: InterceptorConfig{
			BreakerFailures: 3,
			BreakerTimeout:  30 * time.Second,
		},
		Reload: ReloadConfig{
			FreezeTimeout: 5 * time.Second,
		},
		Sampler: SamplerConfig{
			Interval: 5 * time.Second,
		},
		Save: SaveConfig{
			Path:            "/data/crashguard/saves",
			InMemory:        false,
			SyncWrites:      true,
			Compression:     true,
			Retain:          50,
			CompactInterval: 30 * time.Minute,
			GCRatio:         0.5,
			CoalesceWindow:  250 * time.Millisecond,
			MinInterval:     time.Second,
			WriteTimeout:    5 * time.Second,
			AutoInterval:    5 * time.Minute,
		},
		Messaging: MessagingConfig{
			MailboxBuffer: 256,
			EventBuffer:   64,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Server: ServerConfig{
			Enabled:   false, // embedded mode by default
			Addr:      "127.0.0.1:8787",
			Timeout:   30 * time.Second,
			RateLimit: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Default returns the built-in defaults without reading any source.
func Default() *Config {
	return defaultConfig()
}

// Load loads configuration with layered sources:
//  1. Defaults
//  2. Config file (optional)
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// CRASHGUARD_RELOAD_FREEZE_TIMEOUT -> reload.freeze_timeout
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFile returns the config file Load reads, or "" when none exists.
func ConfigFile() string {
	return findConfigFile()
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated environment values.
var sliceConfigPaths = []string{
	"safe_mode.high_risk_features",
	"server.cors_origins",
}

// processSliceFields converts comma-separated strings into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased variable names, prefix included, to koanf
// paths. Unmapped variables are ignored.
var envMappings = map[string]string{
	"crashguard_crash_prevention":    "features.crash_prevention",
	"crashguard_hot_reload":          "features.hot_reload",
	"crashguard_performance_monitor": "features.performance_monitor",
	"crashguard_auto_save":           "features.auto_save",
	"crashguard_safe_mode":           "features.safe_mode",

	"crashguard_high_risk_features": "safe_mode.high_risk_features",

	"crashguard_breaker_failures": "interceptor.breaker_failures",
	"crashguard_breaker_timeout":  "interceptor.breaker_timeout",

	"crashguard_freeze_timeout":  "reload.freeze_timeout",
	"crashguard_sample_interval": "sampler.interval",

	"crashguard_save_path":             "save.path",
	"crashguard_save_in_memory":        "save.in_memory",
	"crashguard_save_sync_writes":      "save.sync_writes",
	"crashguard_save_compression":      "save.compression",
	"crashguard_save_retain":           "save.retain",
	"crashguard_save_compact_interval": "save.compact_interval",
	"crashguard_save_gc_ratio":         "save.gc_ratio",
	"crashguard_save_coalesce_window":  "save.coalesce_window",
	"crashguard_save_min_interval":     "save.min_interval",
	"crashguard_save_write_timeout":    "save.write_timeout",
	"crashguard_auto_save_interval":    "save.auto_interval",

	"crashguard_mailbox_buffer": "messaging.mailbox_buffer",
	"crashguard_event_buffer":   "messaging.event_buffer",

	"crashguard_failure_threshold": "supervisor.failure_threshold",
	"crashguard_failure_decay":     "supervisor.failure_decay",
	"crashguard_failure_backoff":   "supervisor.failure_backoff",
	"crashguard_shutdown_timeout":  "supervisor.shutdown_timeout",

	"crashguard_http_enabled":      "server.enabled",
	"crashguard_http_addr":         "server.addr",
	"crashguard_http_timeout":      "server.timeout",
	"crashguard_http_rate_limit":   "server.rate_limit",
	"crashguard_http_cors_origins": "server.cors_origins",

	"crashguard_log_level":  "logging.level",
	"crashguard_log_format": "logging.format",
	"crashguard_log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Returning "" skips the variable.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes.
// The caller reloads and swaps configuration under its own lock.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}

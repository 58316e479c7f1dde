// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer

	Init(Config{Level: "debug", Format: "json", Timestamp: true, Output: &buf})
	defer Init(DefaultConfig())

	Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, `"level":"info"`) {
		t.Errorf("expected output to contain level, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCtxAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer Init(DefaultConfig())

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	ctx = ContextWithClientID(ctx, "modA")
	Ctx(ctx).Info().Msg("with context")

	output := buf.String()
	if !strings.Contains(output, `"correlation_id":"abc12345"`) {
		t.Errorf("missing correlation_id: %s", output)
	}
	if !strings.Contains(output, `"client_id":"modA"`) {
		t.Errorf("missing client_id: %s", output)
	}
}

func TestEnsureCorrelationID(t *testing.T) {
	t.Run("keeps existing id", func(t *testing.T) {
		ctx := ContextWithCorrelationID(context.Background(), "fixed")
		if got := CorrelationIDFromContext(EnsureCorrelationID(ctx)); got != "fixed" {
			t.Errorf("expected fixed, got %q", got)
		}
	})

	t.Run("generates when missing", func(t *testing.T) {
		got := CorrelationIDFromContext(EnsureCorrelationID(context.Background()))
		if len(got) != 8 {
			t.Errorf("expected 8 character id, got %q", got)
		}
	})
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer Init(DefaultConfig())

	logger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))
	logger.WithGroup("supervisor").Warn("service restarted", "service", "sampler", "attempt", 3)

	output := buf.String()
	if !strings.Contains(output, `"level":"warn"`) {
		t.Errorf("expected warn level, got: %s", output)
	}
	if !strings.Contains(output, `"supervisor.service":"sampler"`) {
		t.Errorf("expected grouped key, got: %s", output)
	}
	if !strings.Contains(output, `"supervisor.attempt":3`) {
		t.Errorf("expected grouped int, got: %s", output)
	}
}

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer Init(DefaultConfig())

	var adapter watermill.LoggerAdapter = NewWatermillAdapterWithLogger(NewTestLogger(&buf))
	adapter = adapter.With(watermill.LogFields{"topic": "fault.unhandled"})
	adapter.Error("publish failed", errors.New("closed"), watermill.LogFields{"attempt": 1})

	output := buf.String()
	for _, want := range []string{`"topic":"fault.unhandled"`, `"error":"closed"`, `"attempt":1`, "publish failed"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
}

func TestInitStampsService(t *testing.T) {
	var buf bytes.Buffer
	defer Init(DefaultConfig())

	Init(Config{Level: "info", Output: &buf})
	Info().Msg("default service")
	if !strings.Contains(buf.String(), `"service":"crashguard"`) {
		t.Errorf("missing default service: %s", buf.String())
	}

	buf.Reset()
	Init(Config{Level: "info", Service: "game-host", Output: &buf})
	samplerLog := WithComponent("sampler")
	samplerLog.Info().Msg("named service")
	for _, want := range []string{`"service":"game-host"`, `"component":"sampler"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %s in output: %s", want, buf.String())
		}
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	defer Init(DefaultConfig())

	Init(Config{Level: "info", Output: &buf})
	Debug().Msg("hidden")
	SetLevelString("debug")
	Debug().Msg("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("debug line written at info level: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug line missing after SetLevelString: %s", buf.String())
	}
}

func TestSlogHandlerAttrsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	defer Init(DefaultConfig())
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	h := NewSlogHandlerWithLogger(NewTestLogger(&buf))
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled while the global level is warn")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled while the global level is warn")
	}

	logger := slog.New(h).With("tree", "crashguard").WithGroup("event").With("layer", "core")
	logger.Error("service failed", "err", errors.New("boom"), slog.Group("backoff", "seconds", 15))

	output := buf.String()
	for _, want := range []string{
		`"tree":"crashguard"`,
		`"event.layer":"core"`,
		`"event.err":"boom"`,
		`"event.backoff.seconds":15`,
		`"level":"error"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
}

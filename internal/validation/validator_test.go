// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package validation

import (
	"strings"
	"testing"
	"time"
)

type inner struct {
	FreezeTimeout time.Duration `koanf:"freeze_timeout" validate:"gt=0"`
}

type sample struct {
	ClientID string   `json:"client_id" validate:"clientid"`
	Feature  string   `json:"feature" validate:"omitempty,feature"`
	Level    string   `koanf:"level" validate:"oneof=trace debug info warn error"`
	Reason   string   `json:"reason" validate:"max=8"`
	Reload   inner    `koanf:"reload"`
	Risky    []string `koanf:"high_risk" validate:"dive,feature"`
}

func valid() sample {
	return sample{
		ClientID: "modA",
		Level:    "info",
		Reload:   inner{FreezeTimeout: time.Second},
		Risky:    []string{"hot_reload"},
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	s := valid()
	if err := ValidateStruct(&s); err != nil {
		t.Fatalf("valid struct rejected: %v", err)
	}
	if err := Validate(&s); err != nil {
		t.Fatalf("Validate returned %v for a valid struct", err)
	}

	tests := []struct {
		name      string
		mutate    func(*sample)
		wantField string
		wantTag   string
	}{
		{"empty client id", func(s *sample) { s.ClientID = "" }, "client_id", "clientid"},
		{"client id with space", func(s *sample) { s.ClientID = "mod A" }, "client_id", "clientid"},
		{"client id too long", func(s *sample) { s.ClientID = strings.Repeat("x", maxClientIDLength+1) }, "client_id", "clientid"},
		{"unknown feature", func(s *sample) { s.Feature = "flight" }, "feature", "feature"},
		{"bad level", func(s *sample) { s.Level = "loud" }, "level", "oneof"},
		{"long reason", func(s *sample) { s.Reason = "far too long" }, "reason", "max"},
		{"nested zero duration", func(s *sample) { s.Reload.FreezeTimeout = 0 }, "reload.freeze_timeout", "gt"},
		{"unknown high risk", func(s *sample) { s.Risky = []string{"warp"} }, "high_risk[0]", "feature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			verr := ValidateStruct(&s)
			if verr == nil {
				t.Fatal("expected a validation error")
			}
			found := false
			for _, e := range verr.Errors() {
				if e.Field() == tt.wantField && e.Tag() == tt.wantTag {
					found = true
				}
			}
			if !found {
				t.Errorf("want %s/%s, got %v", tt.wantField, tt.wantTag, verr)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	s := valid()
	s.Level = "loud"
	s.Reason = "far too long"

	verr := ValidateStruct(&s)
	if verr == nil {
		t.Fatal("expected errors")
	}
	msg := verr.Error()
	for _, want := range []string{
		"level must be one of: trace debug info warn error",
		"reason must be at most 8 characters",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

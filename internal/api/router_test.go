// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/crashguard/internal/features"
	"github.com/tomtom215/crashguard/internal/middleware"
	"github.com/tomtom215/crashguard/internal/models"
)

type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata models.Metadata `json:"metadata"`
	Error    *models.APIError
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestSupervisor(t, nil)
	_ = s.RegisterCrashHandler("modA", resolves(true))
	router := NewRouter(s)

	rec, env := do(t, router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("healthz = %d %+v", rec.Code, env)
	}
	if rec.Header().Get(middleware.HeaderCorrelationID) == "" {
		t.Error("responses should carry a correlation id")
	}
	if env.Metadata.CorrelationID != rec.Header().Get(middleware.HeaderCorrelationID) {
		t.Error("metadata correlation id should match the header")
	}

	rec, env = do(t, router, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var status models.StatusResponse
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Version != APIVersion || status.ReloadState != "IDLE" || status.MinLevel != "HIGH" {
		t.Errorf("status = %+v", status)
	}
	if !status.Features[features.CrashPrevention] {
		t.Error("crash_prevention should be reported enabled")
	}
	if len(status.Clients) != 1 || status.Clients[0].ClientID != "modA" {
		t.Errorf("clients = %+v", status.Clients)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("API responses should carry security headers")
	}
}

type brokenLevel struct{ models.LayerFuncs }

func (*brokenLevel) CompatibilityLevel() models.CompatibilityLevel { panic("level bug") }

func TestStatusWithPanickingLayer(t *testing.T) {
	s := newTestSupervisor(t, nil)
	if err := s.RegisterCompatibilityLayer(context.Background(), "modA", &brokenLevel{}); err != nil {
		t.Fatalf("register layer: %v", err)
	}
	router := NewRouter(s)

	rec, env := do(t, router, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, body %s", rec.Code, rec.Body.String())
	}
	var status models.StatusResponse
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(status.Clients) != 1 || status.Clients[0].Level != "INCOMPATIBLE" {
		t.Errorf("clients = %+v, want modA at INCOMPATIBLE", status.Clients)
	}
	if status.MinLevel != "INCOMPATIBLE" {
		t.Errorf("min level = %s, want INCOMPATIBLE", status.MinLevel)
	}
}

func TestPerformanceAndConflicts(t *testing.T) {
	s := newTestSupervisor(t, nil)
	router := NewRouter(s)

	rec, env := do(t, router, http.MethodGet, "/api/v1/performance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("performance code = %d", rec.Code)
	}
	var snap models.PerformanceSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !snap.IsZero() {
		t.Errorf("snapshot before the first sample should be zero, got %+v", snap)
	}

	_, env = do(t, router, http.MethodGet, "/api/v1/conflicts", "")
	if string(env.Data) != `{"conflicts":[]}` {
		t.Errorf("conflicts = %s, want an empty list", env.Data)
	}

	rec, env = do(t, router, http.MethodGet, "/api/v1/clients/modZ/compatibility", "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"registered":false`) {
		t.Errorf("client report = %d %s", rec.Code, env.Data)
	}
}

func TestReloadEndpoint(t *testing.T) {
	s := newTestSupervisor(t, nil)
	router := NewRouter(s)

	rec, env := do(t, router, http.MethodPost, "/api/v1/reload", "")
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("reload = %d %+v", rec.Code, env)
	}

	_ = s.RegisterCompatibilityLayer(context.Background(), "modA", &models.LayerFuncs{
		CanReloadFunc: func(context.Context) bool { return false },
	})
	rec, env = do(t, router, http.MethodPost, "/api/v1/reload", "")
	if rec.Code != http.StatusConflict || env.Error == nil || env.Error.Code != ErrCodeReloadVetoed {
		t.Fatalf("vetoed reload = %d %+v", rec.Code, env.Error)
	}

	s.UnregisterCompatibilityLayer("modA")
	s.flags.EnterSafeMode("test")
	rec, env = do(t, router, http.MethodPost, "/api/v1/reload", "")
	if rec.Code != http.StatusConflict || env.Error == nil || env.Error.Code != ErrCodeReloadDisabled {
		t.Fatalf("disabled reload = %d %+v", rec.Code, env.Error)
	}

	rec, env = do(t, router, http.MethodPost, "/api/v1/safe-mode/reset", "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"reset":true`) {
		t.Errorf("safe mode reset = %d %s", rec.Code, env.Data)
	}
	if s.IsSafeMode() {
		t.Error("safe mode should be cleared")
	}
}

func TestSaveEndpoint(t *testing.T) {
	s := newTestSupervisor(t, nil)
	router := NewRouter(s)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"valid", `{"reason":"operator"}`, http.StatusAccepted, ""},
		{"missing reason", `{}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"empty body", "", http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown field", `{"reason":"x","force":true}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"not json", `reason=x`, http.StatusBadRequest, ErrCodeBadRequest},
		{"reason too long", `{"reason":"` + strings.Repeat("x", 300) + `"}`, http.StatusBadRequest, ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, router, http.MethodPost, "/api/v1/save", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr == "" {
				return
			}
			if env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantErr)
			}
		})
	}

	if s.PendingSaves() != 1 {
		t.Errorf("pending saves = %d, want 1", s.PendingSaves())
	}
}

func TestMutationRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = 2
	s := newTestSupervisor(t, cfg)
	router := NewRouter(s)

	for i := 0; i < 2; i++ {
		if rec, _ := do(t, router, http.MethodPost, "/api/v1/safe-mode/reset", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d code = %d", i, rec.Code)
		}
	}
	rec, env := do(t, router, http.MethodPost, "/api/v1/safe-mode/reset", "")
	if rec.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("third request = %d %+v", rec.Code, env.Error)
	}

	if rec, _ := do(t, router, http.MethodGet, "/api/v1/status", ""); rec.Code != http.StatusOK {
		t.Errorf("read routes are not limited, got %d", rec.Code)
	}
}

func TestNotFoundAndMetrics(t *testing.T) {
	s := newTestSupervisor(t, nil)
	router := NewRouter(s)

	rec, env := do(t, router, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound || env.Error == nil {
		t.Errorf("unknown route = %d %+v", rec.Code, env.Error)
	}

	rec, _ = do(t, router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "crashguard_") {
		t.Errorf("metrics = %d", rec.Code)
	}
}

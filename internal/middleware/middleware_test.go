// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/metrics"
)

func TestCorrelationID(t *testing.T) {
	var seen string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.CorrelationIDFromContext(r.Context())
	}))

	tests := []struct {
		name    string
		headers map[string]string
		want    string // empty means generated
	}{
		{"generated", nil, ""},
		{"correlation header", map[string]string{HeaderCorrelationID: "abc-123"}, "abc-123"},
		{"request id header", map[string]string{HeaderRequestID: "req-9"}, "req-9"},
		{"correlation wins", map[string]string{HeaderCorrelationID: "c1", HeaderRequestID: "r1"}, "c1"},
		{"control characters rejected", map[string]string{HeaderCorrelationID: "bad\x01id"}, ""},
		{"too long rejected", map[string]string{HeaderCorrelationID: strings.Repeat("x", maxCorrelationIDLength+1)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if seen == "" {
				t.Fatal("context should carry a correlation id")
			}
			if tt.want != "" && seen != tt.want {
				t.Errorf("correlation id = %q, want %q", seen, tt.want)
			}
			if tt.want == "" && seen == tt.headers[HeaderCorrelationID] {
				t.Errorf("invalid id %q should have been replaced", seen)
			}
			if got := rec.Header().Get(HeaderCorrelationID); got != seen {
				t.Errorf("response header = %q, want %q", got, seen)
			}
		})
	}
}

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/clients/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/clients/{id}", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/"+id, nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	if got := testutil.ToFloat64(counter); got != before+2 {
		t.Errorf("requests for pattern = %v, want %v", got, before+2)
	}
}

func TestPrometheusMetricsUnmatched(t *testing.T) {
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "200")
	before := testutil.ToFloat64(counter)

	handler := PrometheusMetrics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("unmatched requests = %v, want %v", got, before+1)
	}
}

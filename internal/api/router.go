// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/crashguard/internal/middleware"
)

// rateLimitWindow is the window of server.rate_limit.
const rateLimitWindow = time.Minute

// NewRouter builds the status server routes for s.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/v1/status
//	GET  /api/v1/performance
//	GET  /api/v1/conflicts
//	GET  /api/v1/clients/{clientID}/compatibility
//	POST /api/v1/reload
//	POST /api/v1/save
//	POST /api/v1/safe-mode/reset
func NewRouter(s *Supervisor) http.Handler {
	h := &handler{sup: s}
	r := chi.NewRouter()

	r.Use(middleware.CorrelationID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.HeaderCorrelationID},
		ExposedHeaders: []string{middleware.HeaderCorrelationID},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(securityHeaders)

		r.Get("/status", h.Status)
		r.Get("/performance", h.Performance)
		r.Get("/conflicts", h.Conflicts)
		r.Get("/clients/{clientID}/compatibility", h.ClientCompatibility)

		r.Group(func(r chi.Router) {
			r.Use(mutationRateLimit(s.cfg.Server.RateLimit))
			r.Post("/reload", h.Reload)
			r.Post("/save", h.Save)
			r.Post("/safe-mode/reset", h.ResetSafeMode)
		})
	})

	return r
}

// mutationRateLimit limits mutating routes per client IP. Zero disables it.
func mutationRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		perMinute,
		rateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded", nil)
		}),
	)
}

// securityHeaders marks API responses as non-embeddable JSON.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

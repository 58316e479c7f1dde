// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package middleware provides HTTP middleware for the status server.

  - CorrelationID: reuses or generates a correlation ID and stores it on the
    request context so every log line of the request carries it
  - PrometheusMetrics: request count, latency and in-flight gauge labelled by
    chi route pattern

Both are plain func(http.Handler) http.Handler values for chi's r.Use:

	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware

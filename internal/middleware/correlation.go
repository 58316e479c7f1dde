// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package middleware

import (
	"net/http"
	"strings"

	"github.com/tomtom215/crashguard/internal/logging"
)

// Correlation ID headers, in lookup order.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
)

// maxCorrelationIDLength caps caller-supplied IDs before they reach logs.
const maxCorrelationIDLength = 64

// CorrelationID attaches a correlation ID to the request context and echoes
// it in the response. A caller-supplied ID is reused when it is printable
// and short; otherwise a new one is generated. Reloads and saves triggered
// by the request log under the same ID.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := incomingID(r)
		if id == "" {
			id = logging.GenerateCorrelationID()
		}
		w.Header().Set(HeaderCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithCorrelationID(r.Context(), id)))
	})
}

func incomingID(r *http.Request) string {
	for _, header := range []string{HeaderCorrelationID, HeaderRequestID} {
		if id := strings.TrimSpace(r.Header.Get(header)); validID(id) {
			return id
		}
	}
	return ""
}

func validID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}
	for _, c := range id {
		if c <= 0x20 || c == 0x7F {
			return false
		}
	}
	return true
}

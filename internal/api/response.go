// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/models"
	"github.com/tomtom215/crashguard/internal/validation"
)

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeReloadVetoed       = "RELOAD_VETOED"
	ErrCodeReloadDisabled     = "RELOAD_DISABLED"
	ErrCodeFreezeTimeout      = "FREEZE_TIMEOUT"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 16 << 10

// sanitizeLogValue escapes control characters so request data cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// respondJSON sends a JSON response. Status responses are never cached.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *models.APIResponse) {
	response.Metadata.Timestamp = time.Now()
	response.Metadata.CorrelationID = logging.CorrelationIDFromContext(r.Context())

	data, err := json.Marshal(response)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondSuccess sends a success envelope around data.
func respondSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, r, status, &models.APIResponse{Status: "success", Data: data})
}

// respondError sends an error envelope. err is logged, never returned to
// the caller verbatim unless it is also the message.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Warn().
			Str("code", sanitizeLogValue(code)).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}
	respondErrorDetails(w, r, status, code, message, nil)
}

func respondErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	respondJSON(w, r, status, &models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// decodeAndValidate reads a JSON body into v and validates it. An empty
// body leaves v at its zero value before validation. On failure the error
// response has been written and false is returned.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large", err)
		return false
	}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "request body is not valid JSON", err)
			return false
		}
	}

	if verr := validation.ValidateStruct(v); verr != nil {
		details := make(map[string]interface{}, len(verr.Errors()))
		for _, fe := range verr.Errors() {
			details[fe.Field()] = fe.Error()
		}
		respondErrorDetails(w, r, http.StatusBadRequest, ErrCodeValidationFailed, verr.Error(), details)
		return false
	}
	return true
}

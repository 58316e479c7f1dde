// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/models"
	"github.com/tomtom215/crashguard/internal/reload"
)

type handler struct {
	sup *Supervisor
}

// Health always answers while the process is up; safe mode is reported,
// not treated as unhealthy.
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   APIVersion,
		"safe_mode": h.sup.IsSafeMode(),
	})
}

func (h *handler) Status(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, h.sup.Status())
}

// Performance returns the latest snapshot. Before the first sample every
// field is zero.
func (h *handler) Performance(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, h.sup.PerformanceMetrics())
}

func (h *handler) Conflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.sup.DetectedConflicts()
	if conflicts == nil {
		conflicts = []string{}
	}
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"conflicts": conflicts,
	})
}

func (h *handler) ClientCompatibility(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(chi.URLParam(r, "clientID"))
	if clientID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "client id is required", nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, h.sup.CompatibilityReport(r.Context(), clientID))
}

// Reload runs a hot reload and maps its refusals to 409 and 503 responses.
func (h *handler) Reload(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sup.Reload(r.Context())
	if err == nil {
		respondSuccess(w, r, http.StatusOK, summary)
		return
	}

	var veto *reload.VetoError
	switch {
	case errors.As(err, &veto):
		respondErrorDetails(w, r, http.StatusConflict, ErrCodeReloadVetoed, err.Error(), map[string]interface{}{
			"clients": veto.Clients,
		})
	case errors.Is(err, reload.ErrReloadInProgress):
		respondError(w, r, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	case errors.Is(err, reload.ErrHotReloadDisabled):
		respondError(w, r, http.StatusConflict, ErrCodeReloadDisabled, err.Error(), nil)
	case errors.Is(err, reload.ErrFreezeTimeout):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeFreezeTimeout, reload.ErrFreezeTimeout.Error(), err)
	default:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "reload failed", err)
	}
}

// Save queues an emergency save and returns immediately.
func (h *handler) Save(w http.ResponseWriter, r *http.Request) {
	var req models.SaveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.sup.RequestEmergencySave(req.Reason)
	logging.Ctx(r.Context()).Info().Str("reason", sanitizeLogValue(req.Reason)).Msg("Emergency save requested over HTTP")
	respondSuccess(w, r, http.StatusAccepted, map[string]interface{}{
		"queued":  true,
		"pending": h.sup.PendingSaves(),
	})
}

func (h *handler) ResetSafeMode(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"reset":     h.sup.ResetSafeMode(r.Context()),
		"safe_mode": h.sup.IsSafeMode(),
	})
}

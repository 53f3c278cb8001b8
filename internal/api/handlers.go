// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/gatewarden/gatewarden/internal/database"
	"github.com/gatewarden/gatewarden/internal/engine"
	"github.com/gatewarden/gatewarden/internal/events"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/models"
	"github.com/gatewarden/gatewarden/internal/reconciler"
	"github.com/gatewarden/gatewarden/internal/validation"
)

// Handler holds the HTTP handlers.
type Handler struct {
	engine  *engine.Engine
	sweeper *reconciler.Sweeper
	db      *database.DB
}

// NewHandler wires the handlers to the engine, the sweep and the store.
func NewHandler(eng *engine.Engine, sweeper *reconciler.Sweeper, db *database.DB) *Handler {
	return &Handler{engine: eng, sweeper: sweeper, db: db}
}

// attemptRequest is the ingestion payload for one login attempt.
type attemptRequest struct {
	SourceIP      string `json:"source_ip" validate:"required,ip_address"`
	TargetAccount string `json:"target_account" validate:"omitempty,max=255"`
	UserAgent     string `json:"user_agent" validate:"omitempty,max=1024"`
	SessionID     string `json:"session_id" validate:"omitempty,max=255"`
	Success       bool   `json:"success"`
}

// blockRequest applies an admin IP block.
type blockRequest struct {
	IP              string `json:"ip" validate:"required,ip_address"`
	DurationMinutes *int   `json:"duration_minutes" validate:"omitempty,min=1"`
	Reason          string `json:"reason" validate:"required,max=512"`
}

// lockRequest applies an admin account lock.
type lockRequest struct {
	Account         string `json:"account" validate:"required,max=255"`
	DurationMinutes *int   `json:"duration_minutes" validate:"omitempty,min=1"`
	Reason          string `json:"reason" validate:"required,max=512"`
}

// RecordAttempt ingests one login attempt and returns the analysis.
func (h *Handler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.engine.RecordLoginAttempt(r.Context(), events.Attempt{
		SourceIP:      req.SourceIP,
		TargetAccount: req.TargetAccount,
		UserAgent:     req.UserAgent,
		SessionID:     req.SessionID,
		Success:       req.Success,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "attempt_failed", "could not process attempt")
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(result))
}

// ListPatterns returns attack patterns, newest first. Supports
// ?attack_type=, ?active=true, ?limit= and ?offset=.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	filter := database.PatternFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      queryInt(r, "limit", 100),
		Offset:     queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("attack_type"); raw != "" {
		attackType := models.AttackType(raw)
		filter.AttackType = &attackType
	}

	patterns, err := h.engine.ListPatterns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query_failed", "could not list patterns")
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	}))
}

// ListBlocked returns every identifier currently inside a block window.
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	blocked, err := h.engine.ListBlocked(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query_failed", "could not list blocked identifiers")
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
		"blocked": blocked,
		"count":   len(blocked),
	}))
}

// Stats aggregates activity over ?from= and ?to= (RFC 3339, defaulting to
// the last 24 hours).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "from must be RFC 3339")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "to must be RFC 3339")
			return
		}
		to = parsed
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "invalid_range", "from must precede to")
		return
	}

	stats, err := h.engine.Stats(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query_failed", "could not compute stats")
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(stats))
}

// BlockIP applies an admin IP block.
func (h *Handler) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.engine.BlockIP(r.Context(), req.IP, minutes(req.DurationMinutes), req.Reason); err != nil {
		writeError(w, http.StatusInternalServerError, "block_failed", "could not block ip")
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"ip": req.IP, "state": "blocked"}))
}

// UnblockIP lifts blocks on the IP in the path.
func (h *Handler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")

	if err := h.engine.UnblockIP(r.Context(), ip); err != nil {
		writeError(w, http.StatusInternalServerError, "unblock_failed", "could not unblock ip")
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"ip": ip, "state": "unblocked"}))
}

// LockAccount applies an admin account lock.
func (h *Handler) LockAccount(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.engine.LockAccount(r.Context(), req.Account, minutes(req.DurationMinutes), req.Reason); err != nil {
		writeError(w, http.StatusInternalServerError, "lock_failed", "could not lock account")
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"account": req.Account, "state": "locked"}))
}

// UnlockAccount lifts locks on the account in the path.
func (h *Handler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	if err := h.engine.UnlockAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "unlock_failed", "could not unlock account")
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"account": account, "state": "unlocked"}))
}

// RunSweep triggers one reconciliation pass and reports what it did.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	report := h.sweeper.Run(r.Context())

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]int64{
		"expired_blocks": report.ExpiredBlocks,
		"purged_events":  report.PurgedEvents,
	}))
}

// Health reports liveness, including store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, models.NewSuccessResponse(map[string]string{"status": status}))
}

// HealthLive reports process liveness. It never touches dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]bool{"alive": true}))
}

// HealthReady reports readiness to serve traffic, which requires a
// reachable database.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable,
				models.NewErrorResponse("not_ready", "database unreachable", nil))
			return
		}
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]bool{"ready": true}))
}

// decodeAndValidate parses the JSON body into dst and validates it,
// writing the error response itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return false
	}

	if verr := validation.ValidateStruct(dst); verr != nil {
		writeJSON(w, http.StatusBadRequest,
			models.NewErrorResponse("validation_failed", verr.Error(), verr.Details()))
		return false
	}

	return true
}

// minutes converts an optional minute count to a duration; nil stays nil,
// which the engine treats as indefinite.
func minutes(m *int) *time.Duration {
	if m == nil {
		return nil
	}
	d := time.Duration(*m) * time.Minute
	return &d
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// writeJSON writes the envelope with the given status.
func writeJSON(w http.ResponseWriter, status int, response models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.Error().Err(err).Msg("encode response failed")
	}
}

// writeError writes a simple error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.NewErrorResponse(code, message, nil))
}

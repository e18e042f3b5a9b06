// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package api

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/coursetrace/coursetrace/internal/dispatch"
	"github.com/coursetrace/coursetrace/internal/event"
	"github.com/coursetrace/coursetrace/internal/logging"
	"github.com/coursetrace/coursetrace/internal/tenant"
)

// maxEventBody caps ingestion payloads. Events are small; anything larger
// is a producer bug.
const maxEventBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// bearerAuth requires the configured static token on every request. An
// empty configured token disables the check.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleIngest accepts one event and feeds it through the pipeline.
// 202 means the event was admitted and either enqueued or, for priority
// kinds, already committed. Events the pipeline drops by policy (rejected
// at admission, no tenant) still return 202: the producer has nothing to
// correct or retry.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	e, err := event.NewSerializer().Unmarshal(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "decode event: "+err.Error())
		return
	}

	if err := s.dispatcher.Process(r.Context(), e, dispatch.Options{}); err != nil {
		logging.Error().Err(err).Str("event_id", e.EventID).Msg("event processing failed")
		writeError(w, http.StatusServiceUnavailable, "event not accepted, retry later")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "event_id": e.EventID})
}

// handleQueues reports the tracked depth of every category queue.
func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"queues": s.depth.Depths()})
}

// handleProgress synthesizes a progress snapshot for one user on one
// resource within a tenant. 204 when no events exist: no data is not
// zero progress.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tenant")
	db, ok := s.registry.Lookup(tag)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown tenant")
		return
	}

	userID, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "user must be a numeric id")
		return
	}
	resourceID, err := strconv.ParseInt(r.URL.Query().Get("resource"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "resource must be a numeric id")
		return
	}

	snap, err := s.aggregator.For(r.Context(), &tenant.Tenant{Tag: tag, DB: db}, userID, resourceID)
	if err != nil {
		logging.Error().Err(err).Str("tenant", tag).Int64("resource", resourceID).Msg("progress computation failed")
		writeError(w, http.StatusInternalServerError, "progress computation failed")
		return
	}
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleHealthz reports liveness and the registered tenant set.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"tenants": s.registry.Tags(),
	})
}

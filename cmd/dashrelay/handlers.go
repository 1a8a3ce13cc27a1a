package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	dashrelay "github.com/rld-labs/dashrelay"
	"github.com/rld-labs/dashrelay/upstream"
)

type handlers struct {
	relay *dashrelay.Relay
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeUpstreamError translates the error taxonomy to an HTTP response.
// A non-taxonomy error is an unexpected internal failure: the caller
// gets a generic message, the detail stays in the server logs.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		writeError(w, uerr.HTTPStatus(), uerr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// records serves GET /api/airtable/records.
func (h *handlers) records(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, verrs := h.relay.ValidateRecordsQuery(
		q.Get("baseId"),
		q.Get("tableId"),
		q.Get("maxRecords"),
		q.Get("filterByFormula"),
	)
	if len(verrs) > 0 {
		writeError(w, http.StatusBadRequest, "Validation error: "+strings.Join(verrs, "; "))
		return
	}

	resp, err := h.relay.Records(r.Context(), params)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// chat serves POST /api/chat.
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	var req upstream.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := h.relay.Chat(r.Context(), req)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// health serves GET /health. Unhealthy reports 503 so load balancers
// rotate the instance out; degraded still serves traffic.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := h.relay.Health(r.Context())
	code := http.StatusOK
	if status.Status == dashrelay.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// cacheStats serves GET /api/cache.
func (h *handlers) cacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.relay.CacheStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_entries":    stats.TotalEntries,
		"total_size_bytes": stats.TotalSizeBytes,
		"cache_keys":       stats.Keys,
		"cache_enabled":    true,
		"timestamp":        time.Now().Format(time.RFC3339),
	})
}

// cacheClear serves DELETE /api/cache.
func (h *handlers) cacheClear(w http.ResponseWriter, _ *http.Request) {
	h.relay.CacheClear()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "cache cleared",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

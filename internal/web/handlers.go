package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rowforge/rowforge/internal/engine"
)

// maxAuditLimit caps how many audit events a single listing returns.
const maxAuditLimit = 500

// decodeRequest decodes a JSON request body into dst, writing a 400 on
// failure. A type mismatch names the offending field so callers sending
// e.g. a numeric filter value learn what to change.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid request body: field %q must be of type %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value))
		return false
	}

	writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// tableParams extracts the schema and table path parameters.
func tableParams(r *http.Request) (schema, table string, ok bool) {
	schema = chi.URLParam(r, "schema")
	table = chi.URLParam(r, "table")
	return schema, table, schema != "" && table != ""
}

// handleQuery runs a filtered query against an allowlisted table.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	schema, table, ok := tableParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing schema or table")
		return
	}

	var req struct {
		Filters []engine.Filter `json:"filters"`
		Limit   int             `json:"limit"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	result, err := s.service.Query(r.Context(), schema, table, req.Filters, req.Limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, result)
}

// handleGet fetches a single row by its full primary key.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	schema, table, ok := tableParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing schema or table")
		return
	}

	var req struct {
		PK map[string]interface{} `json:"pk"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	if len(req.PK) == 0 {
		writeError(w, http.StatusBadRequest, "pk is required")
		return
	}

	row, err := s.service.GetByPK(r.Context(), schema, table, req.PK)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, map[string]interface{}{"row": row})
}

// handleValidate dry-runs a patch: same validation as update, no writes.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	schema, table, ok := tableParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing schema or table")
		return
	}

	var req struct {
		PK  map[string]interface{} `json:"pk"`
		Set map[string]interface{} `json:"set"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	normalized, err := s.service.ValidatePatch(r.Context(), schema, table, req.PK, req.Set)
	if err != nil {
		// Validation outcomes are the point of this endpoint: report them
		// in the response body with ok=false rather than an error status,
		// except access denial which stays a 403.
		if engine.IsKind(err, engine.KindAccessDenied) || engine.KindOf(err) == "" {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, map[string]interface{}{
			"ok":    false,
			"kind":  string(engine.KindOf(err)),
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, map[string]interface{}{
		"ok":            true,
		"normalizedSet": normalized,
	})
}

// handleUpdate applies a patch to a single row identified by its primary key.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	schema, table, ok := tableParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing schema or table")
		return
	}

	var req struct {
		PK     map[string]interface{} `json:"pk"`
		Set    map[string]interface{} `json:"set"`
		Reason string                 `json:"reason"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	if len(req.PK) == 0 {
		writeError(w, http.StatusBadRequest, "pk is required")
		return
	}

	result, err := s.service.Update(r.Context(), schema, table, req.PK, req.Set, req.Reason)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, result)
}

// handleMetadata describes an allowlisted table: live columns, primary key
// and the diff policy for editing UIs.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	schema, table, ok := tableParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing schema or table")
		return
	}

	meta, err := s.service.GetMetadata(r.Context(), schema, table)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, meta)
}

// handleAudit lists recent audit events, newest first.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.opts.Audit == nil {
		writeError(w, http.StatusNotFound, "auditing is disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxAuditLimit {
			n = maxAuditLimit
		}
		limit = n
	}

	events, err := s.opts.Audit.Recent(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleClearCache invalidates the cached table metadata so the next
// request re-reads the live catalog.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if s.opts.ClearCache == nil {
		writeError(w, http.StatusNotFound, "cache invalidation is disabled")
		return
	}

	s.opts.ClearCache()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"cleared"}`))
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

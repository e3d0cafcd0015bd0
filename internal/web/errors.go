package web

// errors.go maps engine error kinds onto HTTP statuses and a stable JSON
// error shape. Validation failures surface their full detail (they name
// offending identifiers, which callers need); execution failures are
// logged server-side and returned without the wrapped driver error.

import (
	"encoding/json"
	"net/http"

	"github.com/rowforge/rowforge/internal/engine"
	"github.com/rowforge/rowforge/internal/logging"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusForKind maps an engine error kind to an HTTP status code.
func statusForKind(k engine.Kind) int {
	switch k {
	case engine.KindAccessDenied:
		return http.StatusForbidden
	case engine.KindInvalidColumns, engine.KindPKMismatch,
		engine.KindProtectedColumn, engine.KindInvalidOperator:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the error with request context and writes the JSON
// error response appropriate for its kind.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := engine.KindOf(err)
	status := statusForKind(kind)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"kind", string(kind),
		"error", err.Error(),
	)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Driver errors can leak connection details; return a generic
		// message and rely on the request_id for correlation.
		msg = "operation failed"
	}

	writeErrorJSON(w, status, msg, string(kind))
}

// writeError writes a JSON error response without an engine kind.
func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorJSON(w, status, message, "")
}

func writeErrorJSON(w http.ResponseWriter, status int, message, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Kind:  kind,
	})
}

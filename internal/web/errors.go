package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/dqgate/internal/apperr"
	"github.com/JonMunkholm/dqgate/internal/logging"
)

// respondError writes err as an apperr.ErrorResponse and logs the technical
// error with the request id. A zero statusCode uses the mapped status.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	msg := apperr.WriteHTTP(w, err, statusCode)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", msg.Status,
		"error", err.Error(),
		"code", msg.Code,
	)
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

package apperr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// WriteHTTP writes err's user message as JSON. A zero status uses the
// status err maps to. ErrBusy adds a Retry-After hint.
func WriteHTTP(w http.ResponseWriter, err error, status int) UserMessage {
	msg := MapError(err)
	if status == 0 {
		status = msg.Status
	}
	if errors.Is(err, ErrBusy) {
		w.Header().Set("Retry-After", "5")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("json encode error", "error", err)
	}
	msg.Status = status
	return msg
}

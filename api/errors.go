package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethcf/blobkit-proxy/log"
)

// Error is a structured API error: a stable numeric Code, the HTTP status
// it maps to, and the underlying Err. Code ranges follow the donor
// convention: 40001-49999 are the client's fault, 50001-59999 are the
// server's fault. Never reuse a retired code.
type Error struct {
	Code       int
	HTTPstatus int
	Err        error
	Details    string
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Details)
	}
	return e.Err.Error()
}

// WithErr returns a copy of e with the wrapped error's message appended as
// Details, useful when an internal error should be surfaced (without
// losing the stable Code/HTTPstatus) but not replace the taxonomy message.
func (e Error) WithErr(err error) Error {
	e.Details = err.Error()
	return e
}

// Withf returns a copy of e with Details set from a formatted string.
func (e Error) Withf(format string, args ...any) Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// responseBody is the wire shape of an error response: {error, message,
// details?} per §6.
type responseBody struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Write serializes e to w as a JSON error body with the mapped HTTP
// status.
func (e Error) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPstatus)
	body := responseBody{Error: e.Code, Message: e.Err.Error(), Details: e.Details}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnw("failed to write error response", "error", err)
	}
}

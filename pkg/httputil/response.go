// Package httputil provides the JSON replies, request parameter helpers and
// middleware shared by the introspection API.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteOK replies 200 with v.
func WriteOK(w http.ResponseWriter, v any) error {
	return WriteJSON(w, http.StatusOK, v)
}

// WriteError replies status with err as the message.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error(), Status: status})
}

// WriteErrorf replies status with a formatted message.
func WriteErrorf(w http.ResponseWriter, status int, format string, args ...any) {
	WriteJSON(w, status, ErrorResponse{Error: fmt.Sprintf(format, args...), Status: status})
}

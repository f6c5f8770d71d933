package httputil

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// PathVar returns the route variable key, or an error when it is empty.
func PathVar(r *http.Request, key string) (string, error) {
	if v := mux.Vars(r)[key]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing path parameter: %s", key)
}

// RequirePathVar is PathVar that replies 400 itself on failure.
func RequirePathVar(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := PathVar(r, key)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return "", false
	}
	return v, true
}

// QueryValue returns the query parameter key, or fallback when absent or empty.
func QueryValue(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

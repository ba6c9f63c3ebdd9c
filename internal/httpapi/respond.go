// ABOUTME: JSON response helpers and error-to-status mapping
// ABOUTME: Sentinel errors from the store and services map to stable HTTP codes

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vthuan-dev/bufforder-sub002/internal/identity"
	"github.com/vthuan-dev/bufforder-sub002/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps sentinel errors to HTTP statuses. Anything
// unrecognized is a 500 with a generic body; the real error goes to the log,
// not the wire.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrAlreadyAssigned):
		writeError(w, http.StatusConflict, "session already assigned")
	case errors.Is(err, store.ErrDuplicateSession):
		writeError(w, http.StatusConflict, "customer already has an active session")
	case errors.Is(err, store.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, "username already taken")
	case errors.Is(err, store.ErrSessionClosed):
		writeError(w, http.StatusGone, "session is closed")
	case errors.Is(err, identity.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

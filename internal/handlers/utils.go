package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/boardtrack/apiserver/internal/services"
	"github.com/boardtrack/apiserver/internal/store"
	"github.com/boardtrack/apiserver/types"
	"github.com/go-chi/chi/v5"
)

type contextKey string

const contextSessionKey contextKey = "session"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func sessionFromContext(ctx context.Context) (types.Session, error) {
	sess, ok := ctx.Value(contextSessionKey).(types.Session)
	if !ok || sess.UserID < 1 {
		return types.Session{}, errors.New("missing session")
	}
	return sess, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError maps service and store errors onto HTTP statuses.
// Unrecognized errors become a 500 with the fallback message so storage
// details never leak to clients.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrAuthenticationFailed):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, store.ErrDuplicateOrderNumber),
		errors.Is(err, store.ErrDuplicateBarcode),
		errors.Is(err, store.ErrDuplicateUsername),
		errors.Is(err, store.ErrDuplicateDepartment),
		errors.Is(err, store.ErrReferentialIntegrity):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrDepartmentRequired),
		errors.Is(err, services.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

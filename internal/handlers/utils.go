package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/foodshare/apiserver/internal/services"
	"github.com/foodshare/apiserver/types"
	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

type contextKey string

const contextPrincipalKey contextKey = "principal"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func withPrincipal(ctx context.Context, principal types.Principal) context.Context {
	return context.WithValue(ctx, contextPrincipalKey, principal)
}

// PrincipalFromContext returns the identity attached by RequireAuth.
func PrincipalFromContext(ctx context.Context) (types.Principal, error) {
	principal, ok := ctx.Value(contextPrincipalKey).(types.Principal)
	if !ok || principal.ID == "" {
		return types.Principal{}, errors.New("missing principal")
	}
	return principal, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service errors onto HTTP statuses. Unexpected
// errors are logged and reported as an opaque 500.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error, fallback string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, services.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, "email already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrConflict):
		writeError(w, http.StatusConflict, "post was modified concurrently")
	case errors.Is(err, services.ErrPhotosDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		log.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

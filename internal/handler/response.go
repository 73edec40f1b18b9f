package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/aiagenz/billing/internal/contextkeys"
	"github.com/aiagenz/billing/internal/domain"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Warn().Err(err).Msg("failed to encode JSON response")
		}
	}
}

// Error writes an error JSON response, using AppError status codes when available.
func Error(w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			log.Error().Err(err).Str("kind", string(appErr.Kind)).Msg("request failed")
		}
		JSON(w, appErr.Code, map[string]string{"error": appErr.Message})
		return
	}
	log.Error().Err(err).Msg("unhandled error")
	JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}

// userID returns the authenticated caller set by the auth middleware.
func userID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextkeys.UserID).(string)
	return id, ok && id != ""
}

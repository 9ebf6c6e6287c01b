package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hongminglow/coverage-api/internal/validation"
)

// ErrorBody is the shape of every non-2xx response.
type ErrorBody struct {
	Code   int                     `json:"code"`
	Detail string                  `json:"detail"`
	Errors []validation.FieldError `json:"errors,omitempty"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("respond: encode payload failed")
	}
}

// Error writes an error body with a human-readable detail.
func Error(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, ErrorBody{Code: status, Detail: detail})
}

// Unauthorized writes a 401 with the bearer challenge header.
func Unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	Error(w, http.StatusUnauthorized, detail)
}

// ValidationError writes a 422 listing the rejected fields.
func ValidationError(w http.ResponseWriter, fields []validation.FieldError) {
	JSON(w, http.StatusUnprocessableEntity, ErrorBody{
		Code:   http.StatusUnprocessableEntity,
		Detail: "validation failed",
		Errors: fields,
	})
}

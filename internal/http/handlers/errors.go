package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/hongminglow/coverage-api/internal/auth"
	"github.com/hongminglow/coverage-api/internal/http/respond"
	"github.com/hongminglow/coverage-api/internal/users"
	"github.com/hongminglow/coverage-api/internal/validation"
)

const maxBodyBytes = 1 << 20

// decode parses and validates the JSON body into dst. On failure it writes
// the response and returns false.
func decode(w http.ResponseWriter, r *http.Request, v *validation.Validator, dst any) bool {
	err := v.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), dst)
	if err == nil {
		return true
	}
	writeDecodeError(w, r, err)
	return false
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		respond.ValidationError(w, verr.Fields)
	case errors.Is(err, validation.ErrMalformed):
		respond.Error(w, http.StatusBadRequest, "Invalid JSON payload")
	default:
		internalError(w, r, err, "decode request")
	}
}

// writeServiceError maps errors shared by several user operations.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		respond.Error(w, http.StatusBadRequest, "Email already registered")
	case errors.Is(err, users.ErrInvalidCredentials):
		respond.Unauthorized(w, "Incorrect email or password")
	case errors.Is(err, auth.ErrEmptyPassword):
		respond.ValidationError(w, []validation.FieldError{{Field: "/password", Message: "password cannot be empty"}})
	case errors.Is(err, auth.ErrPasswordTooLong):
		respond.ValidationError(w, []validation.FieldError{{Field: "/password", Message: "password must be at most 72 bytes"}})
	default:
		internalError(w, r, err, operation)
	}
}

func internalError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	hlog.FromRequest(r).Error().Err(err).Str("operation", operation).Msg("request failed")
	respond.Error(w, http.StatusInternalServerError, "Internal server error")
}

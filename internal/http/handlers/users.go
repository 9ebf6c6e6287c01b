package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/hongminglow/coverage-api/internal/http/respond"
	"github.com/hongminglow/coverage-api/internal/middleware"
	"github.com/hongminglow/coverage-api/internal/models"
	"github.com/hongminglow/coverage-api/internal/models/dto"
	"github.com/hongminglow/coverage-api/internal/users"
	"github.com/hongminglow/coverage-api/internal/validation"
)

// ProfileService is the subset of users.Service the profile routes need.
type ProfileService interface {
	middleware.TokenValidator
	Me(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, email string, req dto.UpdateRequest) (models.User, error)
}

// UserHandler serves the token-protected profile routes.
type UserHandler struct {
	profiles  ProfileService
	validator *validation.Validator
}

// NewUserHandler constructs the handler.
func NewUserHandler(profiles ProfileService, validator *validation.Validator) *UserHandler {
	return &UserHandler{profiles: profiles, validator: validator}
}

// Register attaches the /users routes behind bearer authentication.
func (h *UserHandler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.RequireBearer(h.profiles))
		r.Get("/", h.handleList)
		r.Get("/me", h.handleMe)
		r.Put("/me", h.handleUpdate)
	})
}

func (h *UserHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	email, _ := middleware.EmailFromContext(r.Context())
	user, err := h.profiles.Me(r.Context(), email)
	if err != nil {
		// A valid token whose account is gone is treated as bad credentials.
		if errors.Is(err, users.ErrUserNotFound) {
			respond.Unauthorized(w, "Could not validate credentials")
			return
		}
		writeServiceError(w, r, err, "get current user")
		return
	}
	respond.JSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.profiles.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "list users")
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	email, _ := middleware.EmailFromContext(r.Context())
	user, err := h.profiles.Update(r.Context(), email, req)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			respond.Error(w, http.StatusNotFound, "User not found")
			return
		}
		writeServiceError(w, r, err, "update user")
		return
	}
	hlog.FromRequest(r).Info().Int64("user_id", user.ID).Bool("password_changed", req.Password != nil).Msg("user updated")
	respond.JSON(w, http.StatusOK, user)
}

package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/hongminglow/coverage-api/internal/http/respond"
	"github.com/hongminglow/coverage-api/internal/metrics"
	"github.com/hongminglow/coverage-api/internal/models"
	"github.com/hongminglow/coverage-api/internal/models/dto"
	"github.com/hongminglow/coverage-api/internal/users"
	"github.com/hongminglow/coverage-api/internal/validation"
)

// AccountService is the subset of users.Service the auth routes need.
type AccountService interface {
	Register(ctx context.Context, req dto.RegisterRequest) (models.User, error)
	Login(ctx context.Context, email, password string) (dto.TokenResponse, error)
}

// Recorder counts authentication outcomes.
type Recorder interface {
	RecordLogin(outcome string)
	RecordRegistration(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(string)        {}
func (nopRecorder) RecordRegistration(string) {}

// AuthHandler owns the register and login endpoints.
type AuthHandler struct {
	accounts  AccountService
	validator *validation.Validator
	recorder  Recorder
}

// NewAuthHandler constructs the handler. recorder may be nil.
func NewAuthHandler(accounts AccountService, validator *validation.Validator, recorder Recorder) *AuthHandler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &AuthHandler{accounts: accounts, validator: validator, recorder: recorder}
}

// Register attaches auth routes to the router.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decode(w, r, h.validator, &req) {
		h.recorder.RecordRegistration(metrics.OutcomeInvalid)
		return
	}

	created, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			h.recorder.RecordRegistration(metrics.OutcomeConflict)
		} else {
			h.recorder.RecordRegistration(metrics.OutcomeError)
		}
		writeServiceError(w, r, err, "register user")
		return
	}

	h.recorder.RecordRegistration(metrics.OutcomeSuccess)
	hlog.FromRequest(r).Info().Int64("user_id", created.ID).Msg("user registered")
	respond.JSON(w, http.StatusCreated, created)
}

// handleLogin accepts a JSON body or an OAuth2 password form
// (username and password fields).
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if mediaType := formMediaType(r); mediaType != "" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := parseForm(r, mediaType); err != nil {
			h.recorder.RecordLogin(metrics.OutcomeInvalid)
			respond.Error(w, http.StatusBadRequest, "Invalid form payload")
			return
		}
		doc := map[string]any{
			"email":    r.PostForm.Get("username"),
			"password": r.PostForm.Get("password"),
		}
		if err := h.validator.DecodeValue(doc, &req); err != nil {
			h.recorder.RecordLogin(metrics.OutcomeInvalid)
			writeDecodeError(w, r, err)
			return
		}
	} else if !decode(w, r, h.validator, &req) {
		h.recorder.RecordLogin(metrics.OutcomeInvalid)
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.recorder.RecordLogin(metrics.OutcomeRejected)
		} else {
			h.recorder.RecordLogin(metrics.OutcomeError)
		}
		writeServiceError(w, r, err, "login")
		return
	}

	h.recorder.RecordLogin(metrics.OutcomeSuccess)
	respond.JSON(w, http.StatusOK, token)
}

const (
	urlencodedForm = "application/x-www-form-urlencoded"
	multipartForm  = "multipart/form-data"
)

// formMediaType returns the request's form media type, or "" for anything else.
func formMediaType(r *http.Request) string {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	switch mediaType {
	case urlencodedForm, multipartForm:
		return mediaType
	default:
		return ""
	}
}

func parseForm(r *http.Request, mediaType string) error {
	if mediaType == multipartForm {
		return r.ParseMultipartForm(maxBodyBytes)
	}
	return r.ParseForm()
}

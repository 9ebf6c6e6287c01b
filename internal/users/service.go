// Package users implements registration, login and self-service profile
// operations on top of a storage.UserStore.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/hongminglow/coverage-api/internal/auth"
	"github.com/hongminglow/coverage-api/internal/models"
	"github.com/hongminglow/coverage-api/internal/models/dto"
	"github.com/hongminglow/coverage-api/internal/storage"
)

var (
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrUserNotFound is returned when a token's email no longer has a record.
	ErrUserNotFound = errors.New("user not found")
)

// TokenType is reported alongside every issued access token.
const TokenType = "bearer"

// Service composes the credential store, password hasher and token issuer.
type Service struct {
	store     storage.UserStore
	hasher    auth.PasswordHasher
	tokens    *auth.TokenManager
	now       func() time.Time
	dummyHash string
}

// NewService wires a Service. It hashes a throwaway password up front so
// logins for unknown emails cost the same as real ones.
func NewService(store storage.UserStore, hasher auth.PasswordHasher, tokens *auth.TokenManager) (*Service, error) {
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, oops.Code("USER_SERVICE_INIT_FAILED").With("operation", "hash dummy password").Wrap(err)
	}
	return &Service{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// WithClock returns a copy of the service that stamps records using now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. The password is hashed before it reaches the store.
func (s *Service) Register(ctx context.Context, req dto.RegisterRequest) (models.User, error) {
	email := NormalizeEmail(req.Email)

	_, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return models.User{}, oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(ErrEmailTaken)
	case !errors.Is(err, storage.ErrNotFound):
		return models.User{}, oops.Code("USER_REGISTER_FAILED").With("operation", "check email").Wrap(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return models.User{}, err
	}

	now := s.now().UTC()
	user, err := s.store.CreateUser(ctx, models.User{
		FullName:      strings.TrimSpace(req.FullName),
		Email:         email,
		PasswordHash:  hash,
		IncomeProfile: req.IncomeProfile,
		Coverage:      req.Coverage,
		County:        req.County,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return models.User{}, oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(ErrEmailTaken)
		}
		return models.User{}, oops.Code("USER_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}
	return user, nil
}

// Login verifies the password and issues an access token.
// Unknown emails and wrong passwords yield the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (dto.TokenResponse, error) {
	email = NormalizeEmail(email)

	user, lookupErr := s.store.FindByEmail(ctx, email)
	exists := lookupErr == nil
	if lookupErr != nil && !errors.Is(lookupErr, storage.ErrNotFound) {
		return dto.TokenResponse{}, oops.Code("USER_LOGIN_FAILED").With("operation", "get user by email").Wrap(lookupErr)
	}

	target := s.dummyHash
	if exists {
		target = user.PasswordHash
	}

	// Verify runs whether or not the user exists.
	ok, err := s.hasher.Verify(password, target)
	if err != nil && exists {
		return dto.TokenResponse{}, oops.Code("USER_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(err)
	}
	if !exists || !ok {
		return dto.TokenResponse{}, oops.Code("USER_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	token, _, err := s.tokens.Generate(user.Email)
	if err != nil {
		return dto.TokenResponse{}, oops.Code("USER_LOGIN_FAILED").With("operation", "generate token").Wrap(err)
	}
	return dto.TokenResponse{
		AccessToken: token,
		TokenType:   TokenType,
		ExpiresIn:   int64(s.tokens.TTL() / time.Second),
	}, nil
}

// Authenticate resolves a bearer token to the email it was issued for.
func (s *Service) Authenticate(token string) (string, error) {
	return s.tokens.Validate(token)
}

// Me returns the record for the authenticated email.
func (s *Service) Me(ctx context.Context, email string) (models.User, error) {
	user, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(ErrUserNotFound)
		}
		return models.User{}, oops.Code("USER_LOOKUP_FAILED").With("operation", "get user by email").Wrap(err)
	}
	return user, nil
}

// List returns every user ordered by ID.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").Wrap(err)
	}
	return users, nil
}

// Update applies the non-nil fields of req to the authenticated user's record.
// A supplied password is rehashed; updated_at is always refreshed.
func (s *Service) Update(ctx context.Context, email string, req dto.UpdateRequest) (models.User, error) {
	user, err := s.Me(ctx, email)
	if err != nil {
		return models.User{}, err
	}

	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.IncomeProfile != nil {
		user.IncomeProfile = *req.IncomeProfile
	}
	if req.Coverage != nil {
		user.Coverage = *req.Coverage
	}
	if req.County != nil {
		user.County = req.County
	}
	if req.Password != nil {
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return models.User{}, err
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now().UTC()

	updated, err := s.store.UpdateUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, oops.Code("USER_NOT_FOUND").With("id", user.ID).Wrap(ErrUserNotFound)
		}
		return models.User{}, oops.Code("USER_UPDATE_FAILED").With("id", user.ID).Wrap(err)
	}
	return updated, nil
}

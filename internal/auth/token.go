package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Claims is the payload of an access token. The subject is the user's email.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenManager issues and validates signed JWTs for authenticated users.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a manager with the provided secret, issuer, and lifetime.
func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token secret is required")
	}
	if ttl <= 0 {
		return nil, oops.Code("AUTH_CONFIG_INVALID").With("ttl", ttl.String()).Errorf("token ttl must be positive")
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of the manager that reads time from now.
func (t *TokenManager) WithClock(now func() time.Time) *TokenManager {
	cp := *t
	cp.now = now
	return &cp
}

// TTL returns the lifetime given to issued tokens.
func (t *TokenManager) TTL() time.Duration {
	return t.ttl
}

// Generate issues a signed JWT for email and returns it with its expiry.
// Claim times have whole-second precision, so the issue time is truncated
// to keep exp exactly ttl after iat.
func (t *TokenManager) Generate(email string) (string, time.Time, error) {
	now := t.now().Truncate(time.Second)
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   email,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, expiresAt, nil
}

// Validate checks signature, issuer and expiry and returns the token's email.
// Every failure is reported as ErrInvalidToken.
func (t *TokenManager) Validate(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "expired"
		}
		return "", oops.Code("AUTH_INVALID_TOKEN").With("reason", reason).Wrap(errors.Join(ErrInvalidToken, err))
	}
	if !token.Valid || claims.Subject == "" {
		return "", oops.Code("AUTH_INVALID_TOKEN").With("reason", "no subject").Wrap(ErrInvalidToken)
	}
	return claims.Subject, nil
}

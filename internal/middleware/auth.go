package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/hongminglow/coverage-api/internal/http/respond"
)

type contextKey string

const emailKey contextKey = "auth.email"

// TokenValidator resolves a bearer token to the email it was issued for.
type TokenValidator interface {
	Authenticate(token string) (string, error)
}

// RequireBearer rejects requests without a valid "Authorization: Bearer" token
// and stores the token's email in the request context.
func RequireBearer(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				respond.Unauthorized(w, "Not authenticated")
				return
			}
			email, err := tokens.Authenticate(raw)
			if err != nil {
				hlog.FromRequest(r).Debug().Err(err).Msg("bearer token rejected")
				respond.Unauthorized(w, "Could not validate credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), email)))
		})
	}
}

// WithEmail returns a context carrying the authenticated email.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

// EmailFromContext returns the email stored by RequireBearer.
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(emailKey).(string)
	return email, ok && email != ""
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

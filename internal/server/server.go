package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hongminglow/coverage-api/internal/auth"
	"github.com/hongminglow/coverage-api/internal/config"
	"github.com/hongminglow/coverage-api/internal/http/handlers"
	"github.com/hongminglow/coverage-api/internal/metrics"
	"github.com/hongminglow/coverage-api/internal/middleware"
	"github.com/hongminglow/coverage-api/internal/storage"
	"github.com/hongminglow/coverage-api/internal/users"
	"github.com/hongminglow/coverage-api/internal/validation"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner  *http.Server
	router chi.Router
}

// New wires up middleware and routes and returns a ready server.
// It fails when the token or hasher settings are unusable.
func New(cfg config.Config, store storage.UserStore, logger zerolog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return nil, err
	}
	hasher, err := auth.NewPasswordHasher(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	service, err := users.NewService(store, hasher, tokens)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	validator := validation.New()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(m.Middleware)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	handlers.NewHealthHandler(time.Now()).Register(r)
	handlers.NewAuthHandler(service, validator, m).Register(r)
	handlers.NewUserHandler(service, validator).Register(r)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer, router: r}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

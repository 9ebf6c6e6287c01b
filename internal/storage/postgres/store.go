package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/hongminglow/coverage-api/internal/models"
	"github.com/hongminglow/coverage-api/internal/storage"
)

// Ensure Store satisfies the storage.UserStore interface at compile time.
var _ storage.UserStore = (*Store)(nil)

// pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store provides Postgres-backed persistence for users.
type Store struct {
	pool pool
}

const userColumns = `id, full_name, email, password_hash, income_profile, coverage, county, created_at, updated_at`

// NewUserStore connects to databaseURL, waits for the server to answer, and
// applies pending migrations.
func NewUserStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(databaseURL); err != nil {
		p.Close()
		return nil, err
	}

	return newStore(p), nil
}

func newStore(p pool) *Store {
	return &Store{pool: p}
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (full_name, email, password_hash, income_profile, coverage, county, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, query,
		user.FullName,
		user.Email,
		user.PasswordHash,
		user.IncomeProfile,
		user.Coverage,
		user.County,
		user.CreatedAt,
		user.UpdatedAt,
	)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return models.User{}, oops.Code("STORE_DUPLICATE_EMAIL").
				With("email", user.Email).
				Wrap(storage.ErrAlreadyExists)
		}
		return models.User{}, oops.Code("STORE_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return created, nil
}

// FindByID fetches a user by primary key.
func (s *Store) FindByID(ctx context.Context, id int64) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, lookupError(err, "id", id)
	}
	return user, nil
}

// FindByEmail fetches a user by email address, ignoring case.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, lookupError(err, "email", email)
	}
	return user, nil
}

// ListUsers returns every user ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, oops.Code("STORE_LIST_FAILED").With("operation", "list users").Wrap(err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("STORE_LIST_FAILED").With("operation", "scan user row").Wrap(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_LIST_FAILED").With("operation", "iterate users").Wrap(err)
	}
	return users, nil
}

// UpdateUser writes the mutable profile fields and updated_at.
func (s *Store) UpdateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		UPDATE users SET
			full_name = $2,
			password_hash = $3,
			income_profile = $4,
			coverage = $5,
			county = $6,
			updated_at = $7
		WHERE id = $1
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, query,
		user.ID,
		user.FullName,
		user.PasswordHash,
		user.IncomeProfile,
		user.Coverage,
		user.County,
		user.UpdatedAt,
	)
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, oops.Code("STORE_USER_NOT_FOUND").
				With("id", user.ID).
				Wrap(storage.ErrNotFound)
		}
		return models.User{}, oops.Code("STORE_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID).
			Wrap(err)
	}
	return updated, nil
}

func lookupError(err error, key string, value any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("STORE_USER_NOT_FOUND").With(key, value).Wrap(storage.ErrNotFound)
	}
	return oops.Code("STORE_LOOKUP_FAILED").
		With("operation", "get user by "+key).
		With(key, value).
		Wrap(err)
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.IncomeProfile,
		&user.Coverage,
		&user.County,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

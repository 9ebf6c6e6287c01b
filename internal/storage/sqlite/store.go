// Package sqlite implements storage.UserStore on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hongminglow/coverage-api/internal/models"
	"github.com/hongminglow/coverage-api/internal/storage"
)

var _ storage.UserStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	full_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	income_profile REAL NOT NULL DEFAULT 0,
	coverage TEXT NOT NULL DEFAULT '',
	county TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

const userColumns = `id, full_name, email, password_hash, income_profile, coverage, county, created_at, updated_at`

// Store persists users in SQLite through database/sql.
type Store struct {
	db *sql.DB
}

// NewUserStore opens the database at path (":memory:" for a private
// in-memory database) and creates the schema.
func NewUserStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	// One connection: writers are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the users table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() {
	_ = s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (full_name, email, password_hash, income_profile, coverage, county, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + userColumns

	row := s.db.QueryRowContext(ctx, query,
		user.FullName,
		user.Email,
		user.PasswordHash,
		user.IncomeProfile,
		user.Coverage,
		nullString(user.County),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, oops.Code("STORE_DUPLICATE_EMAIL").
				With("email", user.Email).
				Wrap(storage.ErrAlreadyExists)
		}
		return models.User{}, oops.Code("STORE_CREATE_FAILED").With("operation", "insert user").Wrap(err)
	}
	return created, nil
}

// FindByID fetches a user by primary key.
func (s *Store) FindByID(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, lookupError(err, "id", id)
	}
	return user, nil
}

// FindByEmail fetches a user by email, ignoring case.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, lookupError(err, "email", email)
	}
	return user, nil
}

// ListUsers returns every user ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
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
			full_name = ?,
			password_hash = ?,
			income_profile = ?,
			coverage = ?,
			county = ?,
			updated_at = ?
		WHERE id = ?
		RETURNING ` + userColumns

	row := s.db.QueryRowContext(ctx, query,
		user.FullName,
		user.PasswordHash,
		user.IncomeProfile,
		user.Coverage,
		nullString(user.County),
		formatTime(user.UpdatedAt),
		user.ID,
	)
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, oops.Code("STORE_USER_NOT_FOUND").With("id", user.ID).Wrap(storage.ErrNotFound)
		}
		return models.User{}, oops.Code("STORE_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID).
			Wrap(err)
	}
	return updated, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (models.User, error) {
	var (
		user             models.User
		county           sql.NullString
		created, updated string
	)
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.IncomeProfile,
		&user.Coverage,
		&county,
		&created,
		&updated,
	)
	if err != nil {
		return models.User{}, err
	}
	if county.Valid {
		user.County = &county.String
	}
	if user.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return models.User{}, err
	}
	if user.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func lookupError(err error, key string, value any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return oops.Code("STORE_USER_NOT_FOUND").With(key, value).Wrap(storage.ErrNotFound)
	}
	return oops.Code("STORE_LOOKUP_FAILED").
		With("operation", "get user by "+key).
		With(key, value).
		Wrap(err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Package memory provides an in-process UserStore for tests and local runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hongminglow/coverage-api/internal/models"
	"github.com/hongminglow/coverage-api/internal/storage"
)

var _ storage.UserStore = (*Store)(nil)

// Store keeps users in maps guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]models.User
	byEmail map[string]int64
}

// NewUserStore returns an empty Store.
func NewUserStore() *Store {
	return &Store{
		byID:    make(map[int64]models.User),
		byEmail: make(map[string]int64),
	}
}

func emailKey(email string) string {
	return strings.ToLower(email)
}

// CreateUser assigns the next ID and stores the user.
func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(user.Email)
	if _, ok := s.byEmail[key]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}
	s.nextID++
	user.ID = s.nextID
	s.byID[user.ID] = user
	s.byEmail[key] = user.ID
	return user, nil
}

// FindByID fetches a user by ID.
func (s *Store) FindByID(_ context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return user, nil
}

// FindByEmail fetches a user by email, ignoring case.
func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return s.byID[id], nil
}

// ListUsers returns every user ordered by ID.
func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateUser replaces the mutable fields of an existing user.
// Email and CreatedAt are kept from the stored record.
func (s *Store) UpdateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[user.ID]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	current.FullName = user.FullName
	current.PasswordHash = user.PasswordHash
	current.IncomeProfile = user.IncomeProfile
	current.Coverage = user.Coverage
	current.County = user.County
	current.UpdatedAt = user.UpdatedAt
	s.byID[user.ID] = current
	return current, nil
}

// Delete removes a user. No HTTP route deletes users; tests use it to
// simulate a record disappearing between authentication and update.
func (s *Store) Delete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byID[id]; ok {
		delete(s.byEmail, emailKey(u.Email))
		delete(s.byID, id)
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// Package storagetest holds behaviour checks shared by every UserStore implementation.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/coverage-api/internal/models"
	"github.com/hongminglow/coverage-api/internal/storage"
)

// Run exercises a UserStore. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.UserStore) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sample := func(email string) models.User {
		county := "Fulton"
		return models.User{
			FullName:      "Ada",
			Email:         email,
			PasswordHash:  "$2a$10$hash",
			IncomeProfile: 42000,
			Coverage:      "bronze",
			County:        &county,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	t.Run("create assigns increasing ids", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateUser(ctx, sample("a@example.com"))
		require.NoError(t, err)
		b, err := s.CreateUser(ctx, sample("b@example.com"))
		require.NoError(t, err)

		assert.Positive(t, a.ID)
		assert.Greater(t, b.ID, a.ID)
		assert.Equal(t, "Fulton", *a.County)
		assert.True(t, a.CreatedAt.Equal(now))
	})

	t.Run("duplicate email is rejected and first record kept", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.CreateUser(ctx, sample("dupe@example.com"))
		require.NoError(t, err)

		other := sample("DUPE@example.com")
		other.FullName = "Impostor"
		_, err = s.CreateUser(ctx, other)
		require.ErrorIs(t, err, storage.ErrAlreadyExists)

		got, err := s.FindByEmail(ctx, "dupe@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "Ada", got.FullName)
	})

	t.Run("find by id and email", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateUser(ctx, sample("find@example.com"))
		require.NoError(t, err)

		byID, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "find@example.com", byID.Email)
		assert.Equal(t, "$2a$10$hash", byID.PasswordHash)

		byEmail, err := s.FindByEmail(ctx, "Find@Example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		_, err = s.FindByID(ctx, created.ID+100)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list is ordered by id and empty when no users", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		users, err := s.ListUsers(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)

		for _, email := range []string{"c@example.com", "a@example.com", "b@example.com"} {
			_, err := s.CreateUser(ctx, sample(email))
			require.NoError(t, err)
		}
		users, err = s.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "c@example.com", users[0].Email)
		assert.Less(t, users[0].ID, users[1].ID)
		assert.Less(t, users[1].ID, users[2].ID)
	})

	t.Run("update keeps email and created_at", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateUser(ctx, sample("update@example.com"))
		require.NoError(t, err)

		later := now.Add(time.Hour)
		change := created
		change.FullName = "Ada Lovelace"
		change.Email = "other@example.com"
		change.IncomeProfile = 50000
		change.Coverage = "gold"
		change.County = nil
		change.CreatedAt = later
		change.UpdatedAt = later

		updated, err := s.UpdateUser(ctx, change)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", updated.FullName)
		assert.Equal(t, "update@example.com", updated.Email)
		assert.InDelta(t, 50000, updated.IncomeProfile, 0.001)
		assert.Nil(t, updated.County)
		assert.True(t, updated.CreatedAt.Equal(now))
		assert.True(t, updated.UpdatedAt.Equal(later))

		reread, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "gold", reread.Coverage)
	})

	t.Run("update of missing user", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpdateUser(context.Background(), models.User{ID: 42, UpdatedAt: now})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("concurrent registration of one email admits one", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.CreateUser(ctx, sample("race@example.com"))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		ok := 0
		for err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, storage.ErrAlreadyExists)
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

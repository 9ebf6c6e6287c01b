package users_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/coverage-api/internal/auth"
	"github.com/hongminglow/coverage-api/internal/models"
	"github.com/hongminglow/coverage-api/internal/models/dto"
	"github.com/hongminglow/coverage-api/internal/storage"
	"github.com/hongminglow/coverage-api/internal/storage/memory"
	"github.com/hongminglow/coverage-api/internal/users"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc    *users.Service
	store  *memory.Store
	tokens *auth.TokenManager
	clock  *clock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

func newFixtureWithStore(t *testing.T, wrap func(storage.UserStore) storage.UserStore) fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	hasher, err := auth.NewPasswordHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenManager("test-secret", "coverage-api", 30*time.Minute)
	require.NoError(t, err)
	tokens = tokens.WithClock(clk.Now)

	mem := memory.NewUserStore()
	var store storage.UserStore = mem
	if wrap != nil {
		store = wrap(mem)
	}
	svc, err := users.NewService(store, hasher, tokens)
	require.NoError(t, err)

	return fixture{svc: svc.WithClock(clk.Now), store: mem, tokens: tokens, clock: clk}
}

func adaRequest() dto.RegisterRequest {
	county := "Fulton"
	return dto.RegisterRequest{
		FullName:      "Ada",
		Email:         "ada@example.com",
		Password:      "s3cret",
		IncomeProfile: 42000,
		Coverage:      "bronze",
		County:        &county,
	}
}

func ptr[T any](v T) *T { return &v }

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	assert.Positive(t, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.Equal(t, f.clock.Now(), user.CreatedAt)
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	require.NotNil(t, user.County)
	assert.Equal(t, "Fulton", *user.County)
}

func TestRegister_NormalizesEmail(t *testing.T) {
	f := newFixture(t)
	req := adaRequest()
	req.Email = "  Ada@Example.COM "

	user, err := f.svc.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = f.svc.Login(context.Background(), "ADA@example.com", "s3cret")
	assert.NoError(t, err)
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	again := adaRequest()
	again.FullName = "Someone Else"
	again.Password = "different"
	_, err = f.svc.Register(ctx, again)
	require.ErrorIs(t, err, users.ErrEmailTaken)

	stored, err := f.store.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", stored.FullName)
	assert.Equal(t, first.PasswordHash, stored.PasswordHash)
}

// raceStore hides existing users from the pre-check so the store's own
// uniqueness constraint decides.
type raceStore struct {
	storage.UserStore
}

func (raceStore) FindByEmail(context.Context, string) (models.User, error) {
	return models.User{}, storage.ErrNotFound
}

func TestRegister_StoreConflictMapsToEmailTaken(t *testing.T) {
	f := newFixtureWithStore(t, func(s storage.UserStore) storage.UserStore { return raceStore{s} })
	ctx := context.Background()

	_, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, adaRequest())
	assert.ErrorIs(t, err, users.ErrEmailTaken)
}

func TestRegister_PasswordPolicy(t *testing.T) {
	f := newFixture(t)

	req := adaRequest()
	req.Password = string(make([]byte, auth.MaxPasswordBytes+1))
	_, err := f.svc.Register(context.Background(), req)
	assert.ErrorIs(t, err, auth.ErrPasswordTooLong)

	list, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

type failingStore struct {
	storage.UserStore
	err error
}

func (s failingStore) FindByEmail(context.Context, string) (models.User, error) {
	return models.User{}, s.err
}

func (s failingStore) ListUsers(context.Context) ([]models.User, error) {
	return nil, s.err
}

func TestStoreFailuresAreNotMisclassified(t *testing.T) {
	boom := errors.New("database unavailable")
	f := newFixtureWithStore(t, func(s storage.UserStore) storage.UserStore { return failingStore{s, boom} })
	ctx := context.Background()

	_, err := f.svc.Register(ctx, adaRequest())
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, users.ErrEmailTaken)

	_, err = f.svc.Login(ctx, "ada@example.com", "s3cret")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, users.ErrInvalidCredentials)

	_, err = f.svc.Me(ctx, "ada@example.com")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, users.ErrUserNotFound)

	_, err = f.svc.List(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	resp, err := f.svc.Login(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64(1800), resp.ExpiresIn)

	email, err := f.svc.Authenticate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", email)
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: "ada@example.com", password: "wrong"},
		{name: "unknown email", email: "ghost@example.com", password: "s3cret"},
		{name: "empty password", email: "ada@example.com", password: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, users.ErrInvalidCredentials)
		})
	}
}

func TestToken_ExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	resp, err := f.svc.Login(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)

	f.clock.Advance(30*time.Minute - time.Second)
	_, err = f.svc.Authenticate(resp.AccessToken)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.svc.Authenticate(resp.AccessToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	me, err := f.svc.Me(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, me.ID)

	f.store.Delete(created.ID)
	_, err = f.svc.Me(ctx, "ada@example.com")
	assert.ErrorIs(t, err, users.ErrUserNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		req := adaRequest()
		req.Email = email
		_, err := f.svc.Register(ctx, req)
		require.NoError(t, err)
	}

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a@example.com", list[0].Email)
	assert.Equal(t, "b@example.com", list[1].Email)
}

func TestUpdate_WithoutPasswordKeepsHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	updated, err := f.svc.Update(ctx, "ada@example.com", dto.UpdateRequest{
		FullName: ptr("Ada Lovelace"),
		Coverage: ptr("gold"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", updated.FullName)
	assert.Equal(t, "gold", updated.Coverage)
	assert.InDelta(t, 42000, updated.IncomeProfile, 0.001)
	assert.Equal(t, "Fulton", *updated.County)
	assert.Equal(t, created.PasswordHash, updated.PasswordHash)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	_, err = f.svc.Login(ctx, "ada@example.com", "s3cret")
	assert.NoError(t, err)
}

func TestUpdate_WithPasswordRehashes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, "ada@example.com", dto.UpdateRequest{Password: ptr("n3w-pass")})
	require.NoError(t, err)
	assert.NotEqual(t, created.PasswordHash, updated.PasswordHash)

	_, err = f.svc.Login(ctx, "ada@example.com", "s3cret")
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "ada@example.com", "n3w-pass")
	assert.NoError(t, err)
}

func TestUpdate_EmptyPasswordRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "ada@example.com", dto.UpdateRequest{Password: ptr("")})
	assert.ErrorIs(t, err, auth.ErrEmptyPassword)
}

type vanishingStore struct {
	storage.UserStore
}

func (vanishingStore) UpdateUser(context.Context, models.User) (models.User, error) {
	return models.User{}, storage.ErrNotFound
}

func TestUpdate_VanishedRecord(t *testing.T) {
	f := newFixtureWithStore(t, func(s storage.UserStore) storage.UserStore { return vanishingStore{s} })
	ctx := context.Background()
	_, err := f.svc.Register(ctx, adaRequest())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "ada@example.com", dto.UpdateRequest{Coverage: ptr("gold")})
	assert.ErrorIs(t, err, users.ErrUserNotFound)
}

func TestUpdate_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), "ghost@example.com", dto.UpdateRequest{})
	assert.ErrorIs(t, err, users.ErrUserNotFound)
}

func TestRegister_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Register(ctx, adaRequest())
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, users.ErrEmailTaken)
	}
	assert.Equal(t, 1, ok)
}

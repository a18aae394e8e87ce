package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/model"
	"github.com/vistaflix/tvlink/internal/util"
	"github.com/vistaflix/tvlink/internal/xtream"
)

// memActivationRepo mirrors the store's concurrency contract: Consume is a
// single guarded check-and-set, so racing consumers see exactly one winner.
type memActivationRepo struct {
	mu    sync.Mutex
	codes map[string]*model.ActivationCode
	now   func() time.Time
}

func newMemActivationRepo() *memActivationRepo {
	return &memActivationRepo{
		codes: make(map[string]*model.ActivationCode),
		now:   time.Now,
	}
}

func (r *memActivationRepo) Create(_ context.Context, params model.CreateActivationCodeParams) (*model.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codes[params.Code]; exists {
		return nil, apperrors.DuplicateCode(params.Code)
	}
	ac := &model.ActivationCode{
		Code:               params.Code,
		Status:             model.ActivationStatusPending,
		PendingCredentials: params.PendingCredentials,
		ExpiresAt:          params.ExpiresAt,
		CreatedAt:          r.now(),
	}
	r.codes[params.Code] = ac
	copied := *ac
	return &copied, nil
}

func (r *memActivationRepo) FindLive(_ context.Context, code string) (*model.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ac, ok := r.codes[code]
	if !ok || ac.Status != model.ActivationStatusPending || !ac.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	copied := *ac
	return &copied, nil
}

func (r *memActivationRepo) FindValid(_ context.Context, code string) (*model.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ac, ok := r.codes[code]
	if !ok || !ac.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	copied := *ac
	return &copied, nil
}

func (r *memActivationRepo) Consume(_ context.Context, code, userID string) (*model.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ac, ok := r.codes[code]
	if !ok || ac.Status != model.ActivationStatusPending || !ac.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	consumedAt := r.now()
	ac.Status = model.ActivationStatusConsumed
	ac.UserID = &userID
	ac.ConsumedAt = &consumedAt
	copied := *ac
	return &copied, nil
}

func (r *memActivationRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for code, ac := range r.codes {
		if !ac.ExpiresAt.After(r.now()) {
			delete(r.codes, code)
			n++
		}
	}
	return n, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]*model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User)}
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) Create(_ context.Context, params model.CreateUserParams) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[params.Email]; exists {
		return nil, apperrors.AlreadyExists("User")
	}
	r.seq++
	u := &model.User{
		ID:           fmt.Sprintf("user-%d", r.seq),
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    time.Now(),
	}
	r.users[params.Email] = u
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) UpdateLastLogin(_ context.Context, id string) error { return nil }

func (r *memUserRepo) UpdateXtreamCredentials(_ context.Context, id, url, encryptedCredentials string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			u.XtreamURL = &url
			u.XtreamCredentials = &encryptedCredentials
			return nil
		}
	}
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error { return nil }

type memSessionRepo struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*model.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *memSessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tokenHash]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *memSessionRepo) Create(_ context.Context, params model.CreateSessionParams) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	s := &model.Session{
		ID:        fmt.Sprintf("session-%d", r.seq),
		TokenHash: params.TokenHash,
		UserID:    params.UserID,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: time.Now(),
	}
	r.sessions[params.TokenHash] = s
	copied := *s
	return &copied, nil
}

func (r *memSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, s := range r.sessions {
		if s.ID == id {
			delete(r.sessions, hash)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteByUserID(_ context.Context, userID string) error { return nil }

func (r *memSessionRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

func newTestActivationService(codeRepo *memActivationRepo, userRepo *memUserRepo) *ActivationService {
	accounts := NewAccountService(userRepo, newMemSessionRepo(), "test-secret")
	return NewActivationService(codeRepo, userRepo, accounts, nil, 30*time.Minute, "")
}

func TestGenerateActivationCode(t *testing.T) {
	t.Run("produces codes of the right shape", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			code := generateActivationCode()
			assert.Len(t, code, 6)
			for _, c := range code {
				assert.Contains(t, activationCodeChars, string(c))
			}
		}
	})

	t.Run("never uses ambiguous characters", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			code := generateActivationCode()
			for _, forbidden := range []string{"O", "I", "0", "1"} {
				assert.NotContains(t, code, forbidden)
			}
		}
	})

	t.Run("codes are distinct in practice", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 500; i++ {
			seen[generateActivationCode()] = true
		}
		// 500 draws from 32^6 keyspace should essentially never collide.
		assert.Greater(t, len(seen), 495)
	})
}

func TestCreateCode(t *testing.T) {
	t.Run("issues a pending code with the configured lifetime", func(t *testing.T) {
		repo := newMemActivationRepo()
		svc := newTestActivationService(repo, newMemUserRepo())

		before := time.Now()
		ac, err := svc.CreateCode(context.Background(), nil)
		require.NoError(t, err)

		assert.Len(t, ac.Code, 6)
		assert.Equal(t, model.ActivationStatusPending, ac.Status)
		assert.Nil(t, ac.UserID)
		assert.WithinDuration(t, before.Add(30*time.Minute), ac.ExpiresAt, 5*time.Second)
	})

	t.Run("retries on collision", func(t *testing.T) {
		repo := &collidingRepo{memActivationRepo: newMemActivationRepo(), collisions: 3}
		svc := newTestActivationService(repo.memActivationRepo, newMemUserRepo())
		svc.codeRepo = repo

		ac, err := svc.CreateCode(context.Background(), nil)
		require.NoError(t, err)
		assert.NotEmpty(t, ac.Code)
		assert.Equal(t, 0, repo.collisions)
	})

	t.Run("gives up after exhausting attempts", func(t *testing.T) {
		repo := &collidingRepo{memActivationRepo: newMemActivationRepo(), collisions: 100}
		svc := newTestActivationService(repo.memActivationRepo, newMemUserRepo())
		svc.codeRepo = repo

		_, err := svc.CreateCode(context.Background(), nil)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeGenerationExhausted, apperrors.GetCode(err))
	})
}

// contestedRepo hands the code to a rival in the window between the caller's
// read and its consume attempt, so the caller always loses the race.
type contestedRepo struct {
	*memActivationRepo
	rivalID string
}

func (r *contestedRepo) Consume(ctx context.Context, code, userID string) (*model.ActivationCode, error) {
	if _, err := r.memActivationRepo.Consume(ctx, code, r.rivalID); err != nil {
		return nil, err
	}
	return nil, nil
}

// stubProvider accepts every subscriber.
func stubProvider(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_info":{"auth":1,"status":"Active"}}`))
	}))
}

// collidingRepo fails Create with DuplicateCode a set number of times.
type collidingRepo struct {
	*memActivationRepo
	collisions int
}

func (r *collidingRepo) Create(ctx context.Context, params model.CreateActivationCodeParams) (*model.ActivationCode, error) {
	if r.collisions > 0 {
		r.collisions--
		return nil, apperrors.DuplicateCode(params.Code)
	}
	return r.memActivationRepo.Create(ctx, params)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown code is not found", func(t *testing.T) {
		svc := newTestActivationService(newMemActivationRepo(), newMemUserRepo())

		_, err := svc.Status(ctx, "ZZZZZZ")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotFoundOrExpired, apperrors.GetCode(err))
	})

	t.Run("pending code is valid but not activated", func(t *testing.T) {
		repo := newMemActivationRepo()
		svc := newTestActivationService(repo, newMemUserRepo())

		ac, err := svc.CreateCode(ctx, nil)
		require.NoError(t, err)

		status, err := svc.Status(ctx, ac.Code)
		require.NoError(t, err)
		assert.True(t, status.Valid)
		assert.False(t, status.IsActivated)
		assert.Nil(t, status.UserID)
	})

	t.Run("lookup is case and whitespace tolerant", func(t *testing.T) {
		repo := newMemActivationRepo()
		svc := newTestActivationService(repo, newMemUserRepo())

		ac, err := svc.CreateCode(ctx, nil)
		require.NoError(t, err)

		status, err := svc.Status(ctx, "  "+strings.ToLower(ac.Code)+" ")
		require.NoError(t, err)
		assert.True(t, status.Valid)
	})

	t.Run("consumed code reports activation and owner", func(t *testing.T) {
		repo := newMemActivationRepo()
		svc := newTestActivationService(repo, newMemUserRepo())

		ac, err := svc.CreateCode(ctx, nil)
		require.NoError(t, err)

		result, err := svc.Activate(ctx, ac.Code, "viewer@example.com", "hunter2hunter2")
		require.NoError(t, err)

		status, err := svc.Status(ctx, ac.Code)
		require.NoError(t, err)
		assert.True(t, status.Valid)
		assert.True(t, status.IsActivated)
		require.NotNil(t, status.UserID)
		assert.Equal(t, result.User.ID, *status.UserID)
	})

	t.Run("expired code is indistinguishable from unknown", func(t *testing.T) {
		repo := newMemActivationRepo()
		svc := newTestActivationService(repo, newMemUserRepo())

		ac, err := svc.CreateCode(ctx, nil)
		require.NoError(t, err)

		// Advance the repo clock past the 30 minute lifetime.
		repo.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

		_, err = svc.Status(ctx, ac.Code)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotFoundOrExpired, apperrors.GetCode(err))
	})
}

func TestActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("registers a new user and consumes the code", func(t *testing.T) {
		repo := newMemActivationRepo()
		users := newMemUserRepo()
		svc := newTestActivationService(repo, users)

		ac, err := svc.CreateCode(ctx, nil)
		require.NoError(t, err)

		result, err := svc.Activate(ctx, ac.Code, "new@example.com", "correct horse battery")
		require.NoError(t, err)

		assert.Equal(t, model.ActivationStatusConsumed, result.Code.Status)
		require.NotNil(t, result.Code.UserID)
		assert.Equal(t, result.User.ID, *result.Code.UserID)
		assert.NotNil(t, result.Code.ConsumedAt)
		assert.Equal(t, "new@example.com", result.User.Email)
	})

	t.Run("wrong password leaves the code pending for retry", func(t *testing.T) {
		repo := newMemActivationRepo()
		users := newMemUserRepo()
		svc := newTestActivationService(repo, users)

		hash, err := util.HashPassword("right-password")
		require.NoError(t, err)
		_, err = users.Create(ctx, model.CreateUserParams{Email: "existing@example.com", PasswordHash: hash})
		require.NoError(t, err)

		ac, err := svc.CreateCode(ctx, nil)
		require.NoError(t, err)

		_, err = svc.Activate(ctx, ac.Code, "existing@example.com", "wrong-password")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidCredentials, apperrors.GetCode(err))

		// The code survived the failed attempt and the right password works.
		result, err := svc.Activate(ctx, ac.Code, "existing@example.com", "right-password")
		require.NoError(t, err)
		assert.Equal(t, model.ActivationStatusConsumed, result.Code.Status)
	})

	t.Run("second consume is rejected as already consumed", func(t *testing.T) {
		repo := newMemActivationRepo()
		svc := newTestActivationService(repo, newMemUserRepo())

		ac, err := svc.CreateCode(ctx, nil)
		require.NoError(t, err)

		_, err = svc.Activate(ctx, ac.Code, "first@example.com", "password-one")
		require.NoError(t, err)

		_, err = svc.Activate(ctx, ac.Code, "second@example.com", "password-two")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeAlreadyConsumed, apperrors.GetCode(err))
	})

	t.Run("expired code cannot be consumed", func(t *testing.T) {
		repo := newMemActivationRepo()
		svc := newTestActivationService(repo, newMemUserRepo())

		ac, err := svc.CreateCode(ctx, nil)
		require.NoError(t, err)

		repo.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

		_, err = svc.Activate(ctx, ac.Code, "late@example.com", "too-late")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotFoundOrExpired, apperrors.GetCode(err))
	})

	t.Run("exactly one of many racing consumers wins", func(t *testing.T) {
		repo := newMemActivationRepo()
		users := newMemUserRepo()
		svc := newTestActivationService(repo, users)

		hash, err := util.HashPassword("shared-password")
		require.NoError(t, err)
		_, err = users.Create(ctx, model.CreateUserParams{Email: "racer@example.com", PasswordHash: hash})
		require.NoError(t, err)

		ac, err := svc.CreateCode(ctx, nil)
		require.NoError(t, err)

		const racers = 20
		var wg sync.WaitGroup
		errs := make([]error, racers)
		start := make(chan struct{})

		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = svc.Activate(ctx, ac.Code, "racer@example.com", "shared-password")
			}(i)
		}
		close(start)
		wg.Wait()

		var winners, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				winners++
			case apperrors.HasCode(err, apperrors.ErrCodeAlreadyConsumed):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, winners)
		assert.Equal(t, racers-1, conflicts)
	})

	t.Run("pending credentials transfer to the consuming account", func(t *testing.T) {
		provider := stubProvider(t)
		defer provider.Close()

		repo := newMemActivationRepo()
		users := newMemUserRepo()
		svc := newTestActivationService(repo, users)
		svc.provider = xtream.NewClient(nil, 0)

		ac, err := svc.CreateCode(ctx, &xtream.Credentials{URL: provider.URL, Username: "sub1", Password: "pw"})
		require.NoError(t, err)

		result, err := svc.Activate(ctx, ac.Code, "tv@example.com", "a-password")
		require.NoError(t, err)

		stored, err := users.FindByID(ctx, result.User.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.XtreamURL)
		assert.Equal(t, provider.URL, *stored.XtreamURL)
		assert.NotNil(t, stored.XtreamCredentials)
	})

	t.Run("race loser does not inherit pending credentials", func(t *testing.T) {
		provider := stubProvider(t)
		defer provider.Close()

		repo := newMemActivationRepo()
		users := newMemUserRepo()
		svc := newTestActivationService(repo, users)
		svc.provider = xtream.NewClient(nil, 0)

		ac, err := svc.CreateCode(ctx, &xtream.Credentials{URL: provider.URL, Username: "sub1", Password: "pw"})
		require.NoError(t, err)

		// A rival takes the code between this caller's read and its update.
		svc.codeRepo = &contestedRepo{memActivationRepo: repo, rivalID: "rival-user"}

		_, err = svc.Activate(ctx, ac.Code, "loser@example.com", "loser-password")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeAlreadyConsumed, apperrors.GetCode(err))

		loser, err := users.FindByEmail(ctx, "loser@example.com")
		require.NoError(t, err)
		require.NotNil(t, loser)
		assert.Nil(t, loser.XtreamCredentials)
		assert.Nil(t, loser.XtreamURL)
	})
}

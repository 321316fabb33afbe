package guard_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/guard"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/jwt"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/auth"
	"github.com/magabrotheeeer/asterscholar-auth/internal/storage/repository"
)

// memStore is an in-memory user store shared by the auth service and the guard.
type memStore struct {
	mu      sync.Mutex
	byUID   map[string]*models.User
	failGet error
}

func newMemStore() *memStore {
	return &memStore{byUID: map[string]*models.User{}}
}

func (s *memStore) RegisterUser(_ context.Context, user models.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byUID {
		if u.Email == user.Email {
			return "", repository.ErrUserExists
		}
	}
	user.UUID = uuid.NewString()
	s.byUID[user.UUID] = &user
	return user.UUID, nil
}

func (s *memStore) GetUser(_ context.Context, userUID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	u, ok := s.byUID[userUID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byUID {
		if u.Email == models.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *memStore) UpdateUser(context.Context, string, models.UserUpdate) (*models.User, error) {
	return nil, errors.New("not implemented")
}

func (s *memStore) SetUserActive(_ context.Context, userUID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byUID[userUID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (s *memStore) SetUserVerified(context.Context, string) error { return nil }

func (s *memStore) UpdatePassword(context.Context, string, string) error { return nil }

type nopNotifier struct{}

func (nopNotifier) SendVerification(context.Context, string, string) error  { return nil }
func (nopNotifier) SendPasswordReset(context.Context, string, string) error { return nil }

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type fixture struct {
	store *memStore
	maker *jwt.Maker
	svc   *auth.Service
	guard *guard.Guard
}

func newFixture() *fixture {
	store := newMemStore()
	maker := jwt.NewJWTMaker("guard_test_secret", time.Hour)
	return &fixture{
		store: store,
		maker: maker,
		svc:   auth.New(newNoopLogger(), store, maker, nopNotifier{}, config.JWTToken{VerifyTTL: time.Hour, ResetTTL: time.Hour}),
		guard: guard.New(maker, store),
	}
}

func requestWithToken(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthenticate_LoginRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, email := range []string{"a@x.com", "b@x.com", "Mixed.Case@X.com"} {
		user, err := f.svc.Register(ctx, email, "correct-horse-battery")
		require.NoError(t, err)

		token, err := f.svc.Login(ctx, email, "correct-horse-battery")
		require.NoError(t, err)

		got, err := f.guard.Authenticate(requestWithToken(token))
		require.NoError(t, err)
		assert.Equal(t, user.UUID, got.UUID)
	}
}

func TestAuthenticate_DeactivationRevokesTokens(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "a@x.com", "correct-horse-battery")
	require.NoError(t, err)
	first, err := f.svc.Login(ctx, "a@x.com", "correct-horse-battery")
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "a@x.com", "correct-horse-battery")
	require.NoError(t, err)

	require.NoError(t, f.svc.Deactivate(ctx, "a@x.com"))

	for _, token := range []string{first, second} {
		_, err = f.guard.Authenticate(requestWithToken(token))
		assert.ErrorIs(t, err, guard.ErrUnauthenticated)
	}

	require.NoError(t, f.svc.Activate(ctx, "a@x.com"))
	_, err = f.guard.Authenticate(requestWithToken(first))
	assert.NoError(t, err)
}

func TestAuthenticate_Rejections(t *testing.T) {
	f := newFixture()
	unknownUser, err := f.maker.Issue(uuid.NewString())
	require.NoError(t, err)
	verifyToken, err := f.maker.IssueFor(jwt.AudienceVerify, uuid.NewString(), time.Hour, jwt.CustomClaims{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "bearer without token", header: "Bearer "},
		{name: "garbage token", header: "Bearer not.a.token"},
		{name: "purpose token", header: "Bearer " + verifyToken},
		{name: "user no longer exists", header: "Bearer " + unknownUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			user, err := f.guard.Authenticate(req)
			assert.ErrorIs(t, err, guard.ErrUnauthenticated)
			assert.Nil(t, user)
		})
	}
}

func TestAuthenticate_SchemeIsCaseInsensitive(t *testing.T) {
	f := newFixture()
	user, err := f.svc.Register(context.Background(), "a@x.com", "correct-horse-battery")
	require.NoError(t, err)
	token, err := f.maker.Issue(user.UUID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer "+token)
	got, err := f.guard.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, user.UUID, got.UUID)
}

func TestAuthenticate_StoreFailureIsNotUnauthenticated(t *testing.T) {
	f := newFixture()
	token, err := f.maker.Issue(uuid.NewString())
	require.NoError(t, err)
	f.store.failGet = errors.New("connection refused")

	_, err = f.guard.Authenticate(requestWithToken(token))
	require.Error(t, err)
	assert.NotErrorIs(t, err, guard.ErrUnauthenticated)
}

func TestReject(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "unauthenticated", err: guard.ErrUnauthenticated, wantStatus: http.StatusUnauthorized, wantError: "unauthorized"},
		{name: "store down", err: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantError: "service unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", bytes.NewReader(nil))
			guard.Reject(rec, req, newNoopLogger(), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantError, body["error"])
			if tt.wantStatus == http.StatusUnauthorized {
				assert.True(t, strings.EqualFold(rec.Header().Get("WWW-Authenticate"), "Bearer"))
			}
		})
	}
}

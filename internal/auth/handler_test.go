package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kilnstock/kilnstock/internal/auth"
	"github.com/kilnstock/kilnstock/internal/policy"
	"github.com/kilnstock/kilnstock/internal/shared"
	_ "github.com/kilnstock/kilnstock/testing"
)

type stubRepo struct {
	users    map[string]*auth.User
	sessions map[string]uuid.UUID
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:    make(map[string]*auth.User),
		sessions: make(map[string]uuid.UUID),
	}
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) CreateUser(_ context.Context, user *auth.User) error {
	if _, ok := s.users[user.Username]; ok {
		return auth.ErrDuplicateUser
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return auth.ErrDuplicateUser
		}
	}
	s.users[user.Username] = user
	return nil
}

func (s *stubRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	for _, u := range s.users {
		if u.ID == id {
			u.PasswordHash = passwordHash
			return nil
		}
	}
	return shared.ErrNotFound
}

func (s *stubRepo) CreateSession(_ context.Context, id string, userID uuid.UUID, _ time.Time, _, _ string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func seedUser(t *testing.T, repo *stubRepo, username, email, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &auth.User{
		ID:                 uuid.New(),
		Username:           username,
		Email:              email,
		PasswordHash:       string(hashed),
		Role:               policy.RoleUser,
		AllowedTransaction: policy.AllowAll,
	}
	repo.users[username] = user
	return user
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(discardLogger(), auth.NewService(repo), sessionManager, csrfManager)
	return handler, sessionManager
}

// serveWithSession mimics the session middleware around a single handler call.
func serveWithSession(t *testing.T, sm *shared.SessionManager, req *http.Request, fn http.HandlerFunc) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	fn(res, req)
	require.NoError(t, sm.Commit(ctx, res, req, sess))
	return res, sess
}

func TestRegisterCreatesDefaultAccount(t *testing.T) {
	repo := newStubRepo()
	handler, sm := newAuthHandler(t, repo)

	body := strings.NewReader(`{"username":"alice","email":"alice@test.local","password":"secret1"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	res, _ := serveWithSession(t, sm, req, handler.HandleRegisterForTest)

	require.Equal(t, http.StatusCreated, res.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &got))
	require.Equal(t, "alice", got["username"])
	require.Equal(t, "user", got["role"])
	require.Equal(t, "all", got["allowed_transaction"])
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	repo := newStubRepo()
	handler, sm := newAuthHandler(t, repo)

	body := strings.NewReader(`{"username":"alice","email":"alice@test.local","password":"tiny"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	res, _ := serveWithSession(t, sm, req, handler.HandleRegisterForTest)

	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRegisterDuplicate(t *testing.T) {
	repo := newStubRepo()
	seedUser(t, repo, "alice", "alice@test.local", "secret1")
	handler, sm := newAuthHandler(t, repo)

	body := strings.NewReader(`{"username":"alice","email":"other@test.local","password":"secret1"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	res, _ := serveWithSession(t, sm, req, handler.HandleRegisterForTest)

	require.Equal(t, http.StatusConflict, res.Code)
}

func TestLoginSuccessBindsSession(t *testing.T) {
	repo := newStubRepo()
	user := seedUser(t, repo, "alice", "alice@test.local", "correctpass")
	handler, sm := newAuthHandler(t, repo)

	body := strings.NewReader(`{"email":"alice@test.local","password":"correctpass"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	res, sess := serveWithSession(t, sm, req, handler.HandleLoginForTest)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, user.ID.String(), sess.User())
	require.Contains(t, repo.sessions, sess.ID)

	var got map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &got))
	require.NotEmpty(t, got["csrf_token"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := newStubRepo()
	seedUser(t, repo, "alice", "alice@test.local", "correctpass")
	handler, sm := newAuthHandler(t, repo)

	body := strings.NewReader(`{"email":"alice@test.local","password":"wrongpass"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	res, sess := serveWithSession(t, sm, req, handler.HandleLoginForTest)

	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Empty(t, sess.User())
}

func TestPasswordReset(t *testing.T) {
	repo := newStubRepo()
	user := seedUser(t, repo, "alice", "alice@test.local", "correctpass")
	handler, sm := newAuthHandler(t, repo)

	body := strings.NewReader(`{"username":"alice","email":"alice@test.local","new_password":"freshpass"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/password-reset", body)
	res, _ := serveWithSession(t, sm, req, handler.HandlePasswordResetForTest)

	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("freshpass")))
}

func TestPasswordResetWrongEmail(t *testing.T) {
	repo := newStubRepo()
	seedUser(t, repo, "alice", "alice@test.local", "correctpass")
	handler, sm := newAuthHandler(t, repo)

	body := strings.NewReader(`{"username":"alice","email":"nobody@test.local","new_password":"freshpass"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/password-reset", body)
	res, _ := serveWithSession(t, sm, req, handler.HandlePasswordResetForTest)

	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := newStubRepo()
	seedUser(t, repo, "alice", "alice@test.local", "correctpass")
	handler, sm := newAuthHandler(t, repo)

	loginBody := strings.NewReader(`{"email":"alice@test.local","password":"correctpass"}`)
	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", loginBody)
	_, sess := serveWithSession(t, sm, loginReq, handler.HandleLoginForTest)
	require.Contains(t, repo.sessions, sess.ID)

	logoutReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logoutReq.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	res, _ := serveWithSession(t, sm, logoutReq, handler.HandleLogoutForTest)

	require.Equal(t, http.StatusOK, res.Code)
	require.NotContains(t, repo.sessions, sess.ID)
}

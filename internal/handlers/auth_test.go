package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-app/authserver/internal/password"
	"github.com/inkwell-app/authserver/internal/services"
	"github.com/inkwell-app/authserver/internal/store"
	"github.com/inkwell-app/authserver/internal/token"
	"github.com/inkwell-app/authserver/types"
)

type memoryUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (m *memoryUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return types.User{}, &store.ConstraintError{Code: store.CodeUniqueViolation, Constraint: "users_username_key"}
		}
		if existing.Email == user.Email {
			return types.User{}, &store.ConstraintError{Code: store.CodeUniqueViolation, Constraint: "users_email_key"}
		}
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memoryUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUserRepo) IncrementTokenVersion(_ context.Context, id int) (int, error) {
	user, ok := m.users[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	user.TokenVersion++
	m.users[id] = user
	return user.TokenVersion, nil
}

func testRouter(t *testing.T) (*chi.Mux, *memoryUserRepo) {
	t.Helper()
	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	repo := newMemoryUserRepo()
	authService := services.NewAuthService(repo, password.NewHasher(), codec, nil, nil, "", slog.Default())
	handler := NewAuthHandler(authService, repo, codec, CookieConfig{Name: "jid", MaxAge: time.Hour})

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, handler)
	})
	return router, repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) types.UserResponse {
	t.Helper()
	var resp types.UserResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "jid" {
			return cookie
		}
	}
	t.Fatalf("no jid cookie in response")
	return nil
}

func TestRegisterEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register",
		RegisterRequest{Username: "alice", Email: "a@x.com", Password: "pw123"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	if resp.AccessToken == "" || resp.User == nil {
		t.Fatalf("incomplete response: %s", rec.Body.String())
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "jid" {
			t.Fatalf("register must not set the refresh cookie")
		}
	}

	dup := doJSON(t, router, http.MethodPost, "/auth/register",
		RegisterRequest{Username: "alice2", Email: "a@x.com", Password: "pw123"})
	if dup.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status %d", dup.Code)
	}
	dupResp := decodeResponse(t, dup)
	if len(dupResp.Errors) != 1 || dupResp.Errors[0].Field != "email" {
		t.Fatalf("duplicate errors: %+v", dupResp.Errors)
	}

	missing := doJSON(t, router, http.MethodPost, "/auth/register",
		RegisterRequest{Username: "bob"})
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("missing fields status %d", missing.Code)
	}
}

func TestLoginSetsHTTPOnlyCookie(t *testing.T) {
	router, _ := testRouter(t)
	doJSON(t, router, http.MethodPost, "/auth/register",
		RegisterRequest{Username: "alice", Email: "a@x.com", Password: "pw123"})

	rec := doJSON(t, router, http.MethodPost, "/auth/login",
		LoginRequest{Username: "alice", Password: "pw123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	cookie := refreshCookie(t, rec)
	if !cookie.HttpOnly {
		t.Fatalf("refresh cookie must be HttpOnly")
	}
	if cookie.Value == "" {
		t.Fatalf("refresh cookie is empty")
	}
	if strings.Contains(rec.Body.String(), cookie.Value) {
		t.Fatalf("refresh token leaked into the response body")
	}

	bad := doJSON(t, router, http.MethodPost, "/auth/login",
		LoginRequest{Username: "alice", Password: "wrong"})
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status %d", bad.Code)
	}

	both := doJSON(t, router, http.MethodPost, "/auth/login",
		LoginRequest{Username: "alice", Email: "a@x.com", Password: "pw123"})
	if both.Code != http.StatusBadRequest {
		t.Fatalf("username+email status %d", both.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	doJSON(t, router, http.MethodPost, "/auth/register",
		RegisterRequest{Username: "alice", Email: "a@x.com", Password: "pw123"})
	login := doJSON(t, router, http.MethodPost, "/auth/login",
		LoginRequest{Username: "alice", Password: "pw123"})
	cookie := refreshCookie(t, login)

	rec := doJSON(t, router, http.MethodPost, "/auth/refresh", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.AccessToken == "" {
		t.Fatalf("refresh response lacks access token: %s", rec.Body.String())
	}
	rotated := refreshCookie(t, rec)
	if rotated.Value == "" {
		t.Fatalf("refresh must rotate the cookie")
	}
	if strings.Contains(rec.Body.String(), rotated.Value) {
		t.Fatalf("refresh token leaked into the response body")
	}

	missing := doJSON(t, router, http.MethodPost, "/auth/refresh", nil)
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("missing cookie status %d", missing.Code)
	}
	missingResp := decodeResponse(t, missing)
	if missingResp.Errors[0].Field != "refresh token" {
		t.Fatalf("missing cookie errors: %+v", missingResp.Errors)
	}
}

func TestLogoutClearsCookieAndRevokes(t *testing.T) {
	router, repo := testRouter(t)
	doJSON(t, router, http.MethodPost, "/auth/register",
		RegisterRequest{Username: "alice", Email: "a@x.com", Password: "pw123"})
	login := doJSON(t, router, http.MethodPost, "/auth/login",
		LoginRequest{Username: "alice", Password: "pw123"})
	cookie := refreshCookie(t, login)

	var userID int
	for id := range repo.users {
		userID = id
	}

	rec := doJSON(t, router, http.MethodPost, "/auth/logout", LogoutRequest{ID: userID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "true" {
		t.Fatalf("logout body %q, want true", rec.Body.String())
	}
	cleared := refreshCookie(t, rec)
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("logout must clear the cookie, got %+v", cleared)
	}

	// Every refresh token issued before the logout is now stale.
	stale := doJSON(t, router, http.MethodPost, "/auth/refresh", nil, cookie)
	if stale.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh status %d", stale.Code)
	}
	staleResp := decodeResponse(t, stale)
	if !strings.Contains(staleResp.Errors[0].Message, "outdated") {
		t.Fatalf("stale refresh errors: %+v", staleResp.Errors)
	}

	// Logout with no body is a local-session logout and still succeeds.
	local := doJSON(t, router, http.MethodPost, "/auth/logout", nil)
	if local.Code != http.StatusOK || strings.TrimSpace(local.Body.String()) != "true" {
		t.Fatalf("local logout: %d %q", local.Code, local.Body.String())
	}
}

func TestMeRequiresBearerToken(t *testing.T) {
	router, _ := testRouter(t)
	register := doJSON(t, router, http.MethodPost, "/auth/register",
		RegisterRequest{Username: "alice", Email: "a@x.com", Password: "pw123"})
	resp := decodeResponse(t, register)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "alice") {
		t.Fatalf("me body: %s", rec.Body.String())
	}

	anon := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	anonRec := httptest.NewRecorder()
	router.ServeHTTP(anonRec, anon)
	if anonRec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status %d", anonRec.Code)
	}

	forged := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	forged.Header.Set("Authorization", "Bearer not.a.token")
	forgedRec := httptest.NewRecorder()
	router.ServeHTTP(forgedRec, forged)
	if forgedRec.Code != http.StatusUnauthorized {
		t.Fatalf("forged status %d", forgedRec.Code)
	}
}

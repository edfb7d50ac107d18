package auth

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

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-app/memora/internal/shared"
	_ "github.com/memora-app/memora/testing"
)

type recordedFailures struct {
	reasons []string
}

func (r *recordedFailures) AuthFailure(reason string) {
	r.reasons = append(r.reasons, reason)
}

type stubVerifier struct {
	profile *GoogleProfile
	err     error
}

func (s *stubVerifier) Verify(ctx context.Context, idToken string) (*GoogleProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

type handlerFixture struct {
	router   chi.Router
	users    *mockUsers
	sessions *mockSessionRepo
	issuer   *Issuer
	failures *recordedFailures
}

func newHandlerFixture(t *testing.T, google GoogleVerifier) *handlerFixture {
	t.Helper()
	usersRepo := newMockUsers()
	sessionRepo := newMockSessionRepo()
	store, err := NewSessionStore(sessionRepo, "lookup-secret", time.Hour)
	require.NoError(t, err)
	issuer, err := NewIssuer("test-signing-secret", 15*time.Minute)
	require.NoError(t, err)

	failures := &recordedFailures{}
	service := NewService(usersRepo, store, issuer, &mockMailer{})
	handler := NewHandler(
		slogDiscard(),
		service,
		HandlerConfig{CookieSecure: false, RefreshTTL: time.Hour},
		RequireAuth(issuer, failures),
		google,
		failures,
	)

	router := chi.NewRouter()
	router.Route("/auth", handler.MountRoutes)
	return &handlerFixture{
		router:   router,
		users:    usersRepo,
		sessions: sessionRepo,
		issuer:   issuer,
		failures: failures,
	}
}

func (f *handlerFixture) do(t *testing.T, method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return body
}

func refreshCookie(res *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range res.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func TestHandlerSignup(t *testing.T) {
	f := newHandlerFixture(t, nil)

	res := f.do(t, http.MethodPost, "/auth/signup", `{"email":"new@memora.test","password":"hunter2hunter2"}`, nil)
	require.Equal(t, http.StatusCreated, res.Code)

	body := decodeBody(t, res)
	assert.NotEmpty(t, body["accessToken"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "new@memora.test", user["email"])
	assert.Equal(t, "free", user["tier"])

	cookie := refreshCookie(res)
	require.NotNil(t, cookie)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/auth/refresh", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int(time.Hour.Seconds()), cookie.MaxAge)
}

func TestHandlerSignupValidation(t *testing.T) {
	f := newHandlerFixture(t, nil)

	res := f.do(t, http.MethodPost, "/auth/signup", `{"email":"not-an-email","password":"hunter2hunter2"}`, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, http.MethodPost, "/auth/signup", `{"email":"new@memora.test","password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, http.MethodPost, "/auth/signup", `{"email":"new@memora.test","password":"hunter2hunter2","extra":true}`, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, http.MethodPost, "/auth/signup", `{broken`, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHandlerSignupDuplicate(t *testing.T) {
	f := newHandlerFixture(t, nil)
	seedPasswordUser(t, f.users, "taken@memora.test", "hunter2hunter2")

	res := f.do(t, http.MethodPost, "/auth/signup", `{"email":"taken@memora.test","password":"hunter2hunter2"}`, nil)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestHandlerSignupAdminCreated(t *testing.T) {
	f := newHandlerFixture(t, nil)

	res := f.do(t, http.MethodPost, "/auth/signup", `{"email":"staff@memora.test","password":"temp-pass-123","isAdminCreated":true}`, nil)
	require.Equal(t, http.StatusCreated, res.Code)

	body := decodeBody(t, res)
	assert.Nil(t, body["accessToken"])
	user := body["user"].(map[string]any)
	assert.Equal(t, true, user["requirePasswordChange"])
	assert.Nil(t, refreshCookie(res))
}

func TestHandlerLoginAndMe(t *testing.T) {
	f := newHandlerFixture(t, nil)
	seedPasswordUser(t, f.users, "user@memora.test", "hunter2hunter2")

	res := f.do(t, http.MethodPost, "/auth/login", `{"email":"user@memora.test","password":"hunter2hunter2"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := decodeBody(t, res)
	access := body["accessToken"].(string)
	require.NotEmpty(t, access)

	me := f.do(t, http.MethodGet, "/auth/me", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	})
	require.Equal(t, http.StatusOK, me.Code)
	meBody := decodeBody(t, me)
	assert.Equal(t, "user@memora.test", meBody["email"])
}

func TestHandlerLoginInvalidCredentials(t *testing.T) {
	f := newHandlerFixture(t, nil)
	seedPasswordUser(t, f.users, "user@memora.test", "hunter2hunter2")

	res := f.do(t, http.MethodPost, "/auth/login", `{"email":"user@memora.test","password":"wrong-password"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Nil(t, refreshCookie(res))
	assert.Contains(t, f.failures.reasons, "invalid_credentials")
}

func TestHandlerRefresh(t *testing.T) {
	f := newHandlerFixture(t, nil)
	seedPasswordUser(t, f.users, "user@memora.test", "hunter2hunter2")

	login := f.do(t, http.MethodPost, "/auth/login", `{"email":"user@memora.test","password":"hunter2hunter2"}`, nil)
	require.Equal(t, http.StatusOK, login.Code)
	cookie := refreshCookie(login)
	require.NotNil(t, cookie)

	res := f.do(t, http.MethodPost, "/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: cookie.Value})
	})
	require.Equal(t, http.StatusOK, res.Code)
	body := decodeBody(t, res)
	assert.NotEmpty(t, body["accessToken"])
}

func TestHandlerRefreshWithoutCookie(t *testing.T) {
	f := newHandlerFixture(t, nil)

	res := f.do(t, http.MethodPost, "/auth/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestHandlerRefreshBogusCookie(t *testing.T) {
	f := newHandlerFixture(t, nil)

	res := f.do(t, http.MethodPost, "/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "deadbeef"})
	})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestHandlerLogout(t *testing.T) {
	f := newHandlerFixture(t, nil)
	seedPasswordUser(t, f.users, "user@memora.test", "hunter2hunter2")

	login := f.do(t, http.MethodPost, "/auth/login", `{"email":"user@memora.test","password":"hunter2hunter2"}`, nil)
	require.Equal(t, http.StatusOK, login.Code)
	access := decodeBody(t, login)["accessToken"].(string)
	cookie := refreshCookie(login)
	require.NotNil(t, cookie)

	res := f.do(t, http.MethodPost, "/auth/logout", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: cookie.Value})
	})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, f.sessions.sessions)

	cleared := refreshCookie(res)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestHandlerAuthedRoutesRequireToken(t *testing.T) {
	f := newHandlerFixture(t, nil)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/auth/logout"},
		{http.MethodPost, "/auth/change-password"},
	} {
		res := f.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code, "%s %s", tc.method, tc.path)
	}

	res := f.do(t, http.MethodGet, "/auth/me", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer garbage")
	})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, f.failures.reasons, "invalid_token")
}

func TestHandlerChangePassword(t *testing.T) {
	f := newHandlerFixture(t, nil)
	u := seedPasswordUser(t, f.users, "user@memora.test", "old-password-1")

	access, err := f.issuer.Issue(u)
	require.NoError(t, err)
	withAuth := func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	}

	res := f.do(t, http.MethodPost, "/auth/change-password", `{"oldPassword":"wrong","newPassword":"new-password-1"}`, withAuth)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(t, http.MethodPost, "/auth/change-password", `{"oldPassword":"old-password-1","newPassword":"new-password-1"}`, withAuth)
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, VerifySecret(f.users.byID[u.ID].PasswordHash, "new-password-1"))
}

func TestHandlerGoogleLogin(t *testing.T) {
	verifier := &stubVerifier{profile: &GoogleProfile{GoogleID: "goog-1", Email: "fed@memora.test"}}
	f := newHandlerFixture(t, verifier)

	res := f.do(t, http.MethodPost, "/auth/google", `{"idToken":"opaque-token"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := decodeBody(t, res)
	assert.NotEmpty(t, body["accessToken"])
	require.NotNil(t, refreshCookie(res))

	verifier.err = shared.ErrUnauthorized
	res = f.do(t, http.MethodPost, "/auth/google", `{"idToken":"bad-token"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, f.failures.reasons, "invalid_google_token")
}

func TestHandlerGoogleRouteAbsentWithoutVerifier(t *testing.T) {
	f := newHandlerFixture(t, nil)

	res := f.do(t, http.MethodPost, "/auth/google", `{"idToken":"opaque-token"}`, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

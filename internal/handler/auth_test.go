package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/guildhub/internal/apperror"
	"github.com/sakif/guildhub/internal/auth"
	"github.com/sakif/guildhub/internal/flash"
	"github.com/sakif/guildhub/internal/metrics"
	"github.com/sakif/guildhub/internal/model"
	"github.com/sakif/guildhub/internal/service"
	"github.com/sakif/guildhub/internal/session"
)

// stubProvider is a canned identityProvider.
type stubProvider struct {
	user *auth.DiscordUser
	err  error
}

func (s *stubProvider) AuthURL(state string) string {
	return "https://discord.example/oauth2/authorize?state=" + url.QueryEscape(state)
}

func (s *stubProvider) Exchange(ctx context.Context, code string) (*auth.DiscordUser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

// memUserRepo is a minimal in-memory repository.UserRepository.
type memUserRepo struct {
	users  map[string]*model.User
	nextID int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (m *memUserRepo) Create(ctx context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.DiscordID == user.DiscordID {
			return apperror.Conflict("user", user.DiscordID)
		}
	}
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	m.nextID++
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memUserRepo) Update(ctx context.Context, user *model.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, apperror.NotFound("user", id)
}

func (m *memUserRepo) GetByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	for _, u := range m.users {
		if u.DiscordID == discordID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", discordID)
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if email != "" && u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *memUserRepo) List(ctx context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memUserRepo) SetAdmin(ctx context.Context, id string, admin bool) error {
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Admin = admin
	return nil
}

type authFixture struct {
	handler  *AuthHandler
	provider *stubProvider
	repo     *memUserRepo
	store    *session.MemoryStore
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.New(prometheus.NewRegistry())
	repo := newMemUserRepo()
	svc := service.NewAuthService(repo, auth.NewPasswordServiceForTest(4), m, logger)
	store := session.NewMemoryStore()
	manager := session.NewManager(store, time.Hour)
	provider := &stubProvider{}

	return &authFixture{
		handler:  NewAuthHandler(provider, svc, manager, m, logger),
		provider: provider,
		repo:     repo,
		store:    store,
	}
}

// callbackRequest builds a callback request carrying a matching state cookie.
func callbackRequest(code, state string) *http.Request {
	req := httptest.NewRequest(http.MethodGet,
		"/auth/discord/callback?code="+url.QueryEscape(code)+"&state="+url.QueryEscape(state), nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state})
	return req
}

func readFlash(t *testing.T, rr *httptest.ResponseRecorder) flash.Notice {
	t.Helper()

	for _, c := range rr.Result().Cookies() {
		if c.Name != flash.CookieName || c.MaxAge < 0 {
			continue
		}
		decoded, err := base64.RawURLEncoding.DecodeString(c.Value)
		require.NoError(t, err, "flash cookie should be base64")
		var notice flash.Notice
		require.NoError(t, json.Unmarshal(decoded, &notice), "flash cookie should be JSON")
		return notice
	}
	t.Fatal("no flash cookie on response")
	return flash.Notice{}
}

func sessionCookieValue(rr *httptest.ResponseRecorder) string {
	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge >= 0 {
			return c.Value
		}
	}
	return ""
}

func TestHandleLogin(t *testing.T) {
	fx := newAuthFixture(t)

	rr := httptest.NewRecorder()
	fx.handler.HandleLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/discord/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	var state string
	for _, c := range rr.Result().Cookies() {
		if c.Name == "oauth_state" {
			state = c.Value
			assert.True(t, c.HttpOnly, "state cookie must be HttpOnly")
			assert.Positive(t, c.MaxAge, "state cookie must be short-lived, not session-less")
		}
	}
	require.NotEmpty(t, state, "login must set a state cookie")

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state, loc.Query().Get("state"), "redirect state must match the cookie")
}

func TestHandleCallback_ProviderReportedError(t *testing.T) {
	fx := newAuthFixture(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/auth/discord/callback?error=access_denied&error_description=user+said+no", nil)
	fx.handler.HandleCallback(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/failure", loc.Path)
	assert.Equal(t, "access_denied", loc.Query().Get("message"))
	assert.Equal(t, "user said no", loc.Query().Get("error_description"))
}

func TestHandleCallback_StateValidation(t *testing.T) {
	tests := []struct {
		name    string
		request func() *http.Request
	}{
		{
			"no state cookie",
			func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=c&state=s", nil)
			},
		},
		{
			"mismatched state",
			func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=c&state=forged", nil)
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "genuine"})
				return req
			},
		},
		{
			"missing code",
			func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?state=s", nil)
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
				return req
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newAuthFixture(t)
			fx.provider.user = &auth.DiscordUser{ID: "1", Username: "thott"}

			rr := httptest.NewRecorder()
			fx.handler.HandleCallback(rr, tt.request())

			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, "/", rr.Header().Get("Location"))
			notice := readFlash(t, rr)
			assert.Equal(t, flash.KindAlert, notice.Kind)
			assert.Equal(t, msgNoAuthData, notice.Message)
			assert.Empty(t, fx.repo.users, "no user may be created on a rejected callback")
		})
	}
}

func TestHandleCallback_ExchangeFailures(t *testing.T) {
	t.Run("no identity in response", func(t *testing.T) {
		fx := newAuthFixture(t)
		fx.provider.err = auth.ErrNoIdentity

		rr := httptest.NewRecorder()
		fx.handler.HandleCallback(rr, callbackRequest("c", "s"))

		assert.Equal(t, msgNoAuthData, readFlash(t, rr).Message)
	})

	t.Run("provider unreachable", func(t *testing.T) {
		fx := newAuthFixture(t)
		fx.provider.err = errors.New("connection refused")

		rr := httptest.NewRecorder()
		fx.handler.HandleCallback(rr, callbackRequest("c", "s"))

		notice := readFlash(t, rr)
		assert.Equal(t, flash.KindAlert, notice.Kind)
		assert.Equal(t, msgSignInError, notice.Message)
		assert.NotContains(t, notice.Message, "connection refused", "provider detail must not leak")
	})
}

func TestHandleCallback_Success(t *testing.T) {
	fx := newAuthFixture(t)
	fx.provider.user = &auth.DiscordUser{
		ID:            "123456789012345678",
		Username:      "thott",
		Discriminator: "0",
		Email:         "thott@example.com",
	}

	rr := httptest.NewRecorder()
	fx.handler.HandleCallback(rr, callbackRequest("good-code", "st"))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	notice := readFlash(t, rr)
	assert.Equal(t, flash.KindNotice, notice.Kind)
	assert.Equal(t, msgSignedIn, notice.Message)

	// One user was reconciled and the session now carries their ID.
	require.Len(t, fx.repo.users, 1)
	sessID := sessionCookieValue(rr)
	require.NotEmpty(t, sessID, "sign-in must issue a session cookie")
	sess, err := fx.store.Get(context.Background(), sessID)
	require.NoError(t, err)
	user, err := fx.repo.GetByDiscordID(context.Background(), "123456789012345678")
	require.NoError(t, err)
	assert.Equal(t, user.ID, sess.UserID)

	// The single-use state cookie is expired alongside.
	var stateCleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == "oauth_state" && c.MaxAge < 0 {
			stateCleared = true
		}
	}
	assert.True(t, stateCleared, "state cookie must be cleared after use")
}

func TestHandleCallback_ConsumesReturnTo(t *testing.T) {
	fx := newAuthFixture(t)
	fx.provider.user = &auth.DiscordUser{ID: "99", Username: "thott"}

	// The guard parked the original destination before the OAuth round trip.
	parked := &session.Session{ID: "sess-1", ReturnTo: "/dashboard?tab=raids"}
	require.NoError(t, fx.store.Save(context.Background(), parked, time.Hour))

	req := callbackRequest("good-code", "st")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sess-1"})

	rr := httptest.NewRecorder()
	fx.handler.HandleCallback(rr, req)

	assert.Equal(t, "/dashboard?tab=raids", rr.Header().Get("Location"))

	// Exactly once: the stored path is gone after the redirect.
	sess, err := fx.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, sess.ReturnTo, "return-to must be consumed by the redirect")
	assert.NotEmpty(t, sess.UserID)

	// A second sign-in on the same session falls back to the landing page.
	rr2 := httptest.NewRecorder()
	req2 := callbackRequest("good-code", "st2")
	req2.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sess-1"})
	fx.handler.HandleCallback(rr2, req2)

	assert.Equal(t, "/", rr2.Header().Get("Location"))
}

func TestHandleFailure(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{
			"known code is humanized",
			"/auth/failure?message=invalid_credentials&error_description=whatever",
			"Discord authentication failed: Invalid credentials",
		},
		{
			"consent declined",
			"/auth/failure?message=access_denied",
			"Discord authentication failed: Access denied",
		},
		{
			"missing code falls back",
			"/auth/failure",
			"Discord authentication failed: Unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newAuthFixture(t)

			rr := httptest.NewRecorder()
			fx.handler.HandleFailure(rr, httptest.NewRequest(http.MethodGet, tt.target, nil))

			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, "/", rr.Header().Get("Location"))
			notice := readFlash(t, rr)
			assert.Equal(t, flash.KindAlert, notice.Kind)
			assert.Equal(t, tt.want, notice.Message)
		})
	}
}

func TestHandlePasswordLogin(t *testing.T) {
	fx := newAuthFixture(t)

	hash, err := auth.NewPasswordServiceForTest(4).Hash("hunter2!")
	require.NoError(t, err)
	fx.repo.users["local-1"] = &model.User{
		ID:           "local-1",
		DiscordID:    "42",
		Email:        "officer@example.com",
		PasswordHash: hash,
	}

	login := func(email, password string) *httptest.ResponseRecorder {
		form := url.Values{"email": {email}, "password": {password}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		fx.handler.HandlePasswordLogin(rr, req)
		return rr
	}

	t.Run("valid credentials", func(t *testing.T) {
		rr := login("officer@example.com", "hunter2!")

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		notice := readFlash(t, rr)
		assert.Equal(t, flash.KindNotice, notice.Kind)

		sessID := sessionCookieValue(rr)
		require.NotEmpty(t, sessID)
		sess, err := fx.store.Get(context.Background(), sessID)
		require.NoError(t, err)
		assert.Equal(t, "local-1", sess.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := login("officer@example.com", "wrong")

		notice := readFlash(t, rr)
		assert.Equal(t, flash.KindAlert, notice.Kind)
		assert.Equal(t, msgBadCredentials, notice.Message)
		assert.Empty(t, sessionCookieValue(rr), "failed login must not issue a session")
	})

	t.Run("unknown email gets the same message", func(t *testing.T) {
		rr := login("nobody@example.com", "hunter2!")

		assert.Equal(t, msgBadCredentials, readFlash(t, rr).Message)
	})
}

func TestHandleLogout(t *testing.T) {
	fx := newAuthFixture(t)

	sess := &session.Session{ID: "sess-1", UserID: "u1"}
	require.NoError(t, fx.store.Save(context.Background(), sess, time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sess-1"})
	rr := httptest.NewRecorder()
	fx.handler.HandleLogout(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Equal(t, msgSignedOut, readFlash(t, rr).Message)

	_, err := fx.store.Get(context.Background(), "sess-1")
	assert.ErrorIs(t, err, apperror.ErrNotFound, "session must be gone from the store")

	// Logging out again, now without any session, looks exactly the same.
	rr2 := httptest.NewRecorder()
	fx.handler.HandleLogout(rr2, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusSeeOther, rr2.Code)
	assert.Equal(t, "/", rr2.Header().Get("Location"))
	assert.Equal(t, msgSignedOut, readFlash(t, rr2).Message)
}

func TestHumanize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"invalid_credentials", "Invalid credentials"},
		{"access_denied", "Access denied"},
		{"csrf_detected", "Csrf detected"},
		{"timeout", "Timeout"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, humanize(tt.in), "humanize(%q)", tt.in)
	}
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podjdr/internal/identity"
	"github.com/podjdr/pkg/models"
)

const testCookie = "podjdr_session"

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenService("secret", time.Hour)
	in := &models.Session{Kind: models.KindBot, ID: 4, Name: "Bob", ImpersonatorID: 1, ImpersonatorName: "Root"}

	token, expiresAt, err := ts.Issue(in)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	out, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, out.IsImpersonating())
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	ts := NewTokenService("secret", time.Hour)
	other := NewTokenService("other", time.Hour)
	token, _, err := other.Issue(&models.Session{Kind: models.KindHuman, ID: 1, Name: "Alice"})
	require.NoError(t, err)

	_, err = ts.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ts.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenService("secret", time.Nanosecond)
	token, _, err = expired.Issue(&models.Session{Kind: models.KindHuman, ID: 1, Name: "Alice"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = ts.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type harness struct {
	e        *echo.Echo
	ts       *TokenService
	registry *identity.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ts := NewTokenService("secret", time.Hour)
	registry := identity.NewRegistry(identity.NewInMemoryStore())
	h := NewAuthHandlers(ts, registry, testCookie)

	e := echo.New()
	e.POST("/register", h.Register)
	e.POST("/login", h.Login)
	e.POST("/logout", h.Logout)
	authed := e.Group("", RequireAuth(ts, testCookie))
	authed.GET("/me", h.Me)
	authed.POST("/admin/stop-impersonating", h.StopImpersonating)
	admin := authed.Group("/admin", RequireAdmin(registry))
	admin.POST("/bots/:id/impersonate", h.Impersonate)
	admin.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	return &harness{e: e, ts: ts, registry: registry}
}

func (h *harness) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/register", `{"username":"Alice","password":"hunter22"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hunter22")

	rec = h.do(http.MethodPost, "/register", `{"username":"Alice","password":"hunter22"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/register", `{"username":"Bobby","password":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/login", `{"username":"Alice","password":"wrong-password"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/login", `{"username":"Alice","password":"hunter22"}`, "")
	resp := decodeSession(t, rec)
	assert.Equal(t, "Alice", resp.Session.Name)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)

	// the cookie alone authenticates
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	h.e.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"name":"Alice"`)
}

func TestRequireAuth(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/me", "", "garbage").Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Token abc")
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImpersonationRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root, err := h.registry.Store().CreateUser(ctx, "Root", "x", true)
	require.NoError(t, err)
	bob, err := h.registry.Store().CreateBot(ctx, "Bob", "")
	require.NoError(t, err)
	token, _, err := h.ts.Issue(&models.Session{Kind: models.KindHuman, ID: root.ID, Name: "Root", IsAdmin: true})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/admin/bots/99/impersonate", "", token).Code)

	resp := decodeSession(t, h.do(http.MethodPost, "/admin/bots/"+itoa(bob.ID)+"/impersonate", "", token))
	assert.Equal(t, models.KindBot, resp.Session.Kind)
	assert.Equal(t, root.ID, resp.Session.ImpersonatorID)
	assert.False(t, resp.Session.IsAdmin)

	// while acting as the bot the admin console is closed
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/admin/ping", "", resp.Token).Code)

	back := decodeSession(t, h.do(http.MethodPost, "/admin/stop-impersonating", "", resp.Token))
	assert.Equal(t, models.KindHuman, back.Session.Kind)
	assert.True(t, back.Session.IsAdmin)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/admin/stop-impersonating", "", back.Token).Code)
}

func TestRequireAdminReadsCurrentFlag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root, err := h.registry.Store().CreateUser(ctx, "Root", "x", true)
	require.NoError(t, err)
	token, _, err := h.ts.Issue(&models.Session{Kind: models.KindHuman, ID: root.ID, Name: "Root", IsAdmin: true})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodGet, "/admin/ping", "", token).Code)
	require.NoError(t, h.registry.Store().SetAdmin(ctx, root.ID, false))
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/admin/ping", "", token).Code)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

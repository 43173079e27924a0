package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/minierp-console/internal/console"
	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/session"
	"github.com/angelmondragon/minierp-console/pkg/config"
	"github.com/angelmondragon/minierp-console/pkg/enums"
	"github.com/angelmondragon/minierp-console/pkg/storage"
)

func newRegistry(t *testing.T) *console.Registry {
	t.Helper()
	backend, err := gateway.NewClient(gateway.WithBaseURL("http://erp.test"))
	require.NoError(t, err)
	reg, err := console.NewRegistry(console.Deps{State: storage.NewMemory(), Backend: backend})
	require.NoError(t, err)
	return reg
}

type failingResolver struct{}

func (failingResolver) Get(context.Context, string) (*console.Console, error) {
	return nil, errors.New("state offline")
}

func TestConsoleProfileMintsCookie(t *testing.T) {
	reg := newRegistry(t)
	cfg := config.ConsoleConfig{CookieName: "profile", CookieSecure: true}

	var seen *console.Console
	handler := ConsoleProfile(cfg, reg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ConsoleFromContext(r.Context())
		require.Equal(t, seen.ProfileID, ProfileIDFromContext(r.Context()))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))

	require.NotNil(t, seen)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "profile", cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)
	require.True(t, cookies[0].Secure)
	require.Equal(t, seen.ProfileID, cookies[0].Value)
	require.Equal(t, seen.ProfileID, rec.Header().Get(ProfileHeader))
	_, err := uuid.Parse(seen.ProfileID)
	require.NoError(t, err)
}

func TestConsoleProfileReusesHeaderAndCookie(t *testing.T) {
	reg := newRegistry(t)
	cfg := config.ConsoleConfig{CookieName: "profile"}
	id := uuid.NewString()

	var got []string
	handler := ConsoleProfile(cfg, reg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, ProfileIDFromContext(r.Context()))
	}))

	byHeader := httptest.NewRequest(http.MethodGet, "/", nil)
	byHeader.Header.Set(ProfileHeader, id)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, byHeader)
	require.Empty(t, rec.Result().Cookies())

	byCookie := httptest.NewRequest(http.MethodGet, "/", nil)
	byCookie.AddCookie(&http.Cookie{Name: "profile", Value: id})
	handler.ServeHTTP(httptest.NewRecorder(), byCookie)

	require.Equal(t, []string{id, id}, got)
	require.Equal(t, 1, reg.Len())
}

func TestConsoleProfileReplacesMalformedID(t *testing.T) {
	reg := newRegistry(t)
	handler := ConsoleProfile(config.ConsoleConfig{}, reg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEqual(t, "../../etc", ProfileIDFromContext(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ProfileHeader, "../../etc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "minierp_profile", cookies[0].Name)
}

func TestConsoleProfileResolverFailure(t *testing.T) {
	handler := ConsoleProfile(config.ConsoleConfig{}, failingResolver{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequireSessionRejectsAnonymous(t *testing.T) {
	reg := newRegistry(t)
	c, err := reg.Get(context.Background(), uuid.NewString())
	require.NoError(t, err)

	handler := RequireSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithConsole(req.Context(), c)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSessionAndRole(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	c, err := reg.Get(ctx, uuid.NewString())
	require.NoError(t, err)
	_, err = c.Session.Adopt(ctx, session.Identity{Username: "bob", Role: enums.RoleUser, Token: "opaque"})
	require.NoError(t, err)

	reached := false
	chain := RequireSession(nil)(RequireRole(nil, enums.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req.WithContext(WithConsole(req.Context(), c)))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, reached)

	_, err = c.Session.Adopt(ctx, session.Identity{Username: "root", Role: enums.RoleAdmin, Token: "opaque"})
	require.NoError(t, err)

	var username, role string
	chain = RequireSession(nil)(RequireRole(nil, enums.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username = UsernameFromContext(r.Context())
		role = RoleFromContext(r.Context())
	})))
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req.WithContext(WithConsole(req.Context(), c)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "root", username)
	require.Equal(t, "admin", role)
}

func TestRequireSessionWithoutConsole(t *testing.T) {
	handler := RequireSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := CORS([]string{" https://console.example.com ", ""})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", ProfileHeader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	other := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	other.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := RequestID(nil)(Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRequestIDKeepsValidCallerIDs(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "trace-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, "trace-42", rec.Header().Get("X-Request-Id"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "bad id\twith spaces")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	_, err := uuid.Parse(rec.Header().Get("X-Request-Id"))
	require.NoError(t, err)
}

// ABOUTME: Tests for the login, refresh, and logout handlers
// ABOUTME: Covers cookie handling, rotation replay, and best-effort logout semantics

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userdb/sessiond/internal/session"
	"github.com/userdb/sessiond/internal/token"
)

type endpointsFixture struct {
	codec       *token.Codec
	store       *session.MemoryStore
	ledger      *session.Ledger
	revocations *session.Revocations
	endpoints   *Endpoints
}

func newEndpointsFixture(t *testing.T) *endpointsFixture {
	t.Helper()

	codec, err := token.NewCodec(gatewayTestSecret, 90*time.Second)
	require.NoError(t, err)

	store := session.NewMemoryStore()
	ledger := session.NewLedger(store, 3*time.Minute, nil)
	revocations := session.NewRevocations(store)

	return &endpointsFixture{
		codec:       codec,
		store:       store,
		ledger:      ledger,
		revocations: revocations,
		endpoints:   NewEndpoints(codec, ledger, revocations, nil, 3*time.Minute, nil),
	}
}

func decodeBody(rec *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(rec.Body).Decode(v)
}

// refreshCookie extracts the refresh cookie from a recorded response.
func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatal("no refresh cookie in response")
	return nil
}

func doLogin(t *testing.T, f *endpointsFixture, username string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"`+username+`","password":"pw"}`))
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogin(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec
}

func TestLogin_ReturnsTokenAndCookie(t *testing.T) {
	f := newEndpointsFixture(t)

	rec := doLogin(t, f, "Alice")

	var body tokenResponse
	require.NoError(t, decodeBody(rec, &body))
	assert.Equal(t, "bearer", body.TokenType)

	claims, err := f.codec.Verify(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	cookie := refreshCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, RefreshCookiePath, cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int((3 * time.Minute).Seconds()), cookie.MaxAge)
	assert.True(t, strings.HasPrefix(cookie.Value, "refresh-alice-"))
}

func TestLogin_BadBody(t *testing.T) {
	f := newEndpointsFixture(t)

	for _, body := range []string{"", "{", `{"password":"pw"}`} {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()
		f.endpoints.HandleLogin(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

type denyAllChecker struct{}

func (denyAllChecker) Check(ctx context.Context, username, password string) error {
	return errors.New("bad credentials")
}

func TestLogin_CheckerRejection(t *testing.T) {
	f := newEndpointsFixture(t)
	f.endpoints = NewEndpoints(f.codec, f.ledger, f.revocations, denyAllChecker{}, 3*time.Minute, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"alice","password":"wrong"}`))
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogin(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestRefresh_RotatesCookie(t *testing.T) {
	f := newEndpointsFixture(t)
	loginRec := doLogin(t, f, "alice")
	first := refreshCookie(t, loginRec)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(first)
	rec := httptest.NewRecorder()
	f.endpoints.HandleRefresh(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body tokenResponse
	require.NoError(t, decodeBody(rec, &body))
	claims, err := f.codec.Verify(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	second := refreshCookie(t, rec)
	assert.NotEqual(t, first.Value, second.Value)
}

func TestRefresh_MissingCookie(t *testing.T) {
	f := newEndpointsFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	rec := httptest.NewRecorder()
	f.endpoints.HandleRefresh(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh_ReplayedCookie(t *testing.T) {
	f := newEndpointsFixture(t)
	loginRec := doLogin(t, f, "alice")
	first := refreshCookie(t, loginRec)

	// First rotation succeeds.
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(first)
	rec := httptest.NewRecorder()
	f.endpoints.HandleRefresh(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Replaying the consumed cookie is a 401 with the standard body.
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(first)
	rec = httptest.NewRecorder()
	f.endpoints.HandleRefresh(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestLogout_AlwaysNoContentAndClearsCookie(t *testing.T) {
	f := newEndpointsFixture(t)

	// No cookie, no bearer: still 204.
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := refreshCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestLogout_ConsumesRefreshCookie(t *testing.T) {
	f := newEndpointsFixture(t)
	loginRec := doLogin(t, f, "alice")
	cookie := refreshCookie(t, loginRec)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogout(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The refresh token is dead.
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	f.endpoints.HandleRefresh(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_RevokesBearerForRemainingLifetime(t *testing.T) {
	f := newEndpointsFixture(t)
	loginRec := doLogin(t, f, "alice")
	var body tokenResponse
	require.NoError(t, decodeBody(loginRec, &body))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+body.AccessToken)
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogout(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	revoked, err := f.revocations.IsRevoked(context.Background(), body.AccessToken)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestLogout_BearerOnlyBulkInvalidates(t *testing.T) {
	f := newEndpointsFixture(t)

	// Two sessions for alice; the logout request presents only the bearer
	// token (the cookie is path-scoped to /auth/refresh and does not ride
	// along to /auth/logout in real browsers).
	first := refreshCookie(t, doLogin(t, f, "alice"))
	second := refreshCookie(t, doLogin(t, f, "alice"))

	accessToken, err := f.codec.Issue("alice", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogout(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Every outstanding refresh token for alice is dead.
	for _, cookie := range []*http.Cookie{first, second} {
		req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(cookie)
		rec = httptest.NewRecorder()
		f.endpoints.HandleRefresh(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestLogout_ExpiredBearerStillYieldsIdentity(t *testing.T) {
	f := newEndpointsFixture(t)

	cookie := refreshCookie(t, doLogin(t, f, "alice"))

	// An expired access token cannot pass Verify but must still drive the
	// bulk invalidation through DecodeIgnoringExpiry.
	expiredCodec, err := token.NewCodec(gatewayTestSecret, -time.Minute)
	require.NoError(t, err)
	expired, err := expiredCodec.Issue("alice", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogout(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	f.endpoints.HandleRefresh(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_ForeignSignedBearerCannotInvalidateSessions(t *testing.T) {
	f := newEndpointsFixture(t)

	cookie := refreshCookie(t, doLogin(t, f, "alice"))

	// A token for "alice" signed with an attacker's key must not tear down
	// alice's sessions or land on the denylist.
	foreignCodec, err := token.NewCodec([]byte("attacker-controlled-secret-32-by"), time.Minute)
	require.NoError(t, err)
	forged, err := foreignCodec.Issue("alice", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogout(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	revoked, err := f.revocations.IsRevoked(context.Background(), forged)
	require.NoError(t, err)
	assert.False(t, revoked)

	// Alice's refresh token still rotates normally.
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	f.endpoints.HandleRefresh(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogout_RevocationSkippedWhenLifetimeSpent(t *testing.T) {
	f := newEndpointsFixture(t)
	loginRec := doLogin(t, f, "alice")
	cookie := refreshCookie(t, loginRec)
	var body tokenResponse
	require.NoError(t, decodeBody(loginRec, &body))

	// By the handler's clock the token has no lifetime left, so there is
	// nothing worth denylisting; the session teardown still happens.
	f.endpoints.now = func() time.Time { return time.Now().Add(time.Hour) }

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+body.AccessToken)
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogout(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	revoked, err := f.revocations.IsRevoked(context.Background(), body.AccessToken)
	require.NoError(t, err)
	assert.False(t, revoked)

	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	f.endpoints.HandleRefresh(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_GarbageBearerIgnored(t *testing.T) {
	f := newEndpointsFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer total-garbage")
	rec := httptest.NewRecorder()
	f.endpoints.HandleLogout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

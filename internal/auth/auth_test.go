package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

type accounts map[string]bool

func (a accounts) Active(_ context.Context, userID string) (bool, error) { return a[userID], nil }

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier(secret, WithIssuer("accounts"))
	want := Identity{UserID: "u1", Username: "alice", Role: "player"}

	token, err := v.Issue(want, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	v := NewJWTVerifier(secret, WithIssuer("accounts"), WithClock(clock))
	id := Identity{UserID: "u1", Username: "alice"}

	expired, err := NewJWTVerifier(secret, WithIssuer("accounts"), WithClock(func() time.Time { return now.Add(-2 * time.Hour) })).
		Issue(id, time.Hour)
	require.NoError(t, err)

	otherKey, err := NewJWTVerifier([]byte("other"), WithIssuer("accounts"), WithClock(clock)).Issue(id, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewJWTVerifier(secret, WithIssuer("elsewhere"), WithClock(clock)).Issue(id, time.Hour)
	require.NoError(t, err)

	noSubject, err := v.Issue(Identity{Username: "ghost"}, time.Hour)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "exp": now.Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"malformed":    "not-a-jwt",
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no subject":   noSubject,
		"alg none":     noneAlg,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			assert.ErrorIs(t, err, ErrAuth)
		})
	}
}

func TestJWTVerifier_InactiveAccount(t *testing.T) {
	v := NewJWTVerifier(secret, WithAccountChecker(accounts{"u1": true}))

	active, err := v.Issue(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), active)
	require.NoError(t, err)

	gone, err := v.Issue(Identity{UserID: "u2"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), gone)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query-token", nil)
	assert.Equal(t, "query-token", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(r))
}

func TestMiddleware(t *testing.T) {
	v := NewJWTVerifier(secret)
	h := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id.UserID))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/games/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := v.Issue(Identity{UserID: "u7"}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/games/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u7", rec.Body.String())
}

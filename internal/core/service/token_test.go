package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasktracker/task-system/internal/core/domain"
)

const testSecret = "test-secret-key-with-at-least-32-characters"

func newTestTokenManager(t *testing.T, ttl time.Duration) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(testSecret, "HS256", ttl)
	require.NoError(t, err)
	return tm
}

func TestNewTokenManager_RejectsBadConfig(t *testing.T) {
	_, err := NewTokenManager("short", "HS256", time.Minute)
	assert.Error(t, err)

	_, err = NewTokenManager(testSecret, "RS256", time.Minute)
	assert.Error(t, err)

	_, err = NewTokenManager(testSecret, "none", time.Minute)
	assert.Error(t, err)

	tm, err := NewTokenManager(testSecret, "HS512", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultTokenTTL, tm.ttl)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := newTestTokenManager(t, 30*time.Minute)

	token, exp, err := tm.Issue(42)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), exp, 5*time.Second)
	assert.Len(t, strings.Split(token, "."), 3)

	id, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokenManager_TokensAreUnique(t *testing.T) {
	tm := newTestTokenManager(t, time.Minute)
	a, _, err := tm.Issue(1)
	require.NoError(t, err)
	b, _, err := tm.Issue(1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokenManager_Expired(t *testing.T) {
	tm := newTestTokenManager(t, time.Minute)
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issuedAt }

	token, _, err := tm.Issue(7)
	require.NoError(t, err)

	tm.now = func() time.Time { return issuedAt.Add(59 * time.Second) }
	_, err = tm.Parse(token)
	require.NoError(t, err)

	tm.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = tm.Parse(token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestTokenManager_ForeignSecret(t *testing.T) {
	issuer, err := NewTokenManager("another-secret-key-with-at-least-32-chars", "HS256", time.Minute)
	require.NoError(t, err)
	token, _, err := issuer.Issue(3)
	require.NoError(t, err)

	_, err = newTestTokenManager(t, time.Minute).Parse(token)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestTokenManager_ForeignSecretExpired(t *testing.T) {
	issuer, err := NewTokenManager("another-secret-key-with-at-least-32-chars", "HS256", time.Minute)
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := issuer.Issue(3)
	require.NoError(t, err)

	_, err = newTestTokenManager(t, time.Minute).Parse(token)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid, "a forged token must not be reported as expired")
}

func TestTokenManager_AlgorithmMismatch(t *testing.T) {
	issuer, err := NewTokenManager(testSecret, "HS384", time.Minute)
	require.NoError(t, err)
	token, _, err := issuer.Issue(3)
	require.NoError(t, err)

	_, err = newTestTokenManager(t, time.Minute).Parse(token)
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}

func TestTokenManager_Malformed(t *testing.T) {
	tm := newTestTokenManager(t, time.Minute)
	for _, token := range []string{"", "not-a-token", "a.b.c", "Bearer xyz"} {
		_, err := tm.Parse(token)
		assert.ErrorIs(t, err, domain.ErrMalformedToken, "token %q", token)
	}
}

func TestTokenManager_ClaimProblems(t *testing.T) {
	tm := newTestTokenManager(t, time.Minute)
	sign := func(claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}

	exp := jwt.NewNumericDate(time.Now().Add(time.Minute))
	cases := map[string]string{
		"missing exp":         sign(jwt.RegisteredClaims{Subject: "1"}),
		"non-numeric subject": sign(jwt.RegisteredClaims{Subject: "alice", ExpiresAt: exp}),
		"zero subject":        sign(jwt.RegisteredClaims{Subject: "0", ExpiresAt: exp}),
	}
	for name, token := range cases {
		_, err := tm.Parse(token)
		assert.True(t, errors.Is(err, domain.ErrMalformedToken), "%s: got %v", name, err)
	}
}

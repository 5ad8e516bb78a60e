package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate/canvasd/errors"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret", "canvasd")

	token, err := v.Generate("alice", "alice", "alice@example.com", "Alice Smith", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice Smith", claims.DisplayName)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a", "canvasd").Generate("alice", "alice", "", "", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("secret-b", "canvasd").Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret", "canvasd")

	token, err := v.Generate("alice", "alice", "", "", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier("test-secret", "canvasd")

	_, err := v.Verify("not.a.token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestTokenFromRequest(t *testing.T) {
	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token=abc", nil)
		assert.Equal(t, "abc", TokenFromRequest(r))
	})

	t.Run("subprotocol entry", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Sec-Websocket-Protocol", "canvasd, Bearer.xyz")
		assert.Equal(t, "xyz", TokenFromRequest(r))
	})

	t.Run("authorization header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer def")
		assert.Equal(t, "def", TokenFromRequest(r))
	})

	t.Run("query wins over header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token=abc", nil)
		r.Header.Set("Authorization", "Bearer def")
		assert.Equal(t, "abc", TokenFromRequest(r))
	})

	t.Run("no credential", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		assert.Equal(t, "", TokenFromRequest(r))
	})
}

func TestColorForUser(t *testing.T) {
	// Deterministic per user id.
	assert.Equal(t, ColorForUser("alice"), ColorForUser("alice"))

	// Always drawn from the palette.
	seen := map[string]bool{}
	for _, c := range neonPalette {
		seen[c] = true
	}
	for _, id := range []string{"alice", "bob", "carol", "dave", "erin"} {
		assert.True(t, seen[ColorForUser(id)], "color for %s not in palette", id)
	}
}

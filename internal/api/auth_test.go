package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func TestJwtSessionRoundTrip(t *testing.T) {
	tokenString, err := createJwtForSession(42, defaultJwtExpiration, testSigningKey)
	assert.NoError(t, err)

	userId, err := extractUserIdFromToken(tokenString, testSigningKey)
	assert.NoError(t, err)
	assert.Equal(t, 42, userId)
}

func TestSessionResolver(t *testing.T) {
	sr := NewSessionResolver(testSigningKey)

	t.Run("valid token", func(t *testing.T) {
		tokenString, err := createJwtForSession(7, defaultJwtExpiration, testSigningKey)
		assert.NoError(t, err)

		userId, err := sr.ResolveSession(tokenString)
		assert.NoError(t, err)
		assert.Equal(t, 7, userId)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := sr.ResolveSession("not-a-token")
		assert.Error(t, err)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		tokenString, err := createJwtForSession(7, defaultJwtExpiration, []byte("another-key-entirely-0123456789a"))
		assert.NoError(t, err)

		_, err = sr.ResolveSession(tokenString)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		tokenString, err := createJwtForSession(7, -time.Hour, testSigningKey)
		assert.NoError(t, err)

		_, err = sr.ResolveSession(tokenString)
		assert.Error(t, err)
	})
}

func TestCreateJwtCookie(t *testing.T) {
	cookie := createJwtCookie("abc", time.Hour)

	assert.Equal(t, tokenCookieKey, cookie.Name)
	assert.Equal(t, "abc", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Expires.After(time.Now()))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("s3cret")
	assert.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, verifyPassword(hash, "s3cret"))
	assert.False(t, verifyPassword(hash, "wrong"))
}

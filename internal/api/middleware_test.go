package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fdrpot/chat/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandlerRecoversPanics(t *testing.T) {
	app := newTestApp(t, &database.MockChatRepository{}, nil)

	h := app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestAuthMiddleware(t *testing.T) {
	app := newTestApp(t, &database.MockChatRepository{}, nil)

	var gotUserId int
	h := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotUserId, _ = UserId(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token reaches the handler with a user id", func(t *testing.T) {
		tokenString, err := createJwtForSession(5, defaultJwtExpiration, testSigningKey)
		assert.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: tokenString})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, gotUserId)
		assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	})

	t.Run("missing cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "tampered"})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

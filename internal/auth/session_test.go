package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func signed(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return token
}

func TestNewSessionFromJWT(t *testing.T) {
	token := signed(t, Claims{
		Email: "ana@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	s, err := NewSession(token, now)
	require.NoError(t, err)
	assert.Equal(t, "42", s.Subject)
	assert.Equal(t, "ana@example.com", s.Email)
	assert.Equal(t, "42", s.Owner())
	assert.Equal(t, "Bearer "+token, s.Header())
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(2*time.Hour)))
}

func TestNewSessionExpired(t *testing.T) {
	token := signed(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}})

	_, err := NewSession(token, now)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewSessionOpaqueToken(t *testing.T) {
	s, err := NewSession("abc123", now)
	require.NoError(t, err)
	assert.Empty(t, s.Subject)
	assert.Equal(t, "abc123", s.Owner())
	assert.False(t, s.Expired(now))
}

func TestNewSessionMissing(t *testing.T) {
	_, err := NewSession("  ", now)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware(func() time.Time { return now }))
	r.GET("/me", func(c *gin.Context) {
		s, ok := FromContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, s.Token)
	})

	expired := signed(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}})

	cases := []struct {
		name   string
		url    string
		header string
		status int
		body   string
	}{
		{"bearer", "/me", "Bearer tok", http.StatusOK, "tok"},
		{"lowercase scheme", "/me", "bearer tok", http.StatusOK, "tok"},
		{"query token", "/me?access_token=qtok", "", http.StatusOK, "qtok"},
		{"missing", "/me", "", http.StatusUnauthorized, "missing authorization header"},
		{"basic", "/me", "Basic dXNlcg==", http.StatusUnauthorized, "invalid authorization header format"},
		{"expired", "/me", "Bearer " + expired, http.StatusUnauthorized, "session expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
		})
	}
}

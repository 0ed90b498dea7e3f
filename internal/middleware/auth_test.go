package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/roomsense/backend/internal/identity"
)

func newTestRouter(t *testing.T, secret string) (*gin.Engine, *identity.Principal) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var got identity.Principal
	r := gin.New()
	r.Use(Auth(identity.NewTokenService(secret, "")))
	r.GET("/probe", func(c *gin.Context) {
		got = Principal(c)
		c.Status(http.StatusOK)
	})
	return r, &got
}

func signToken(t *testing.T, secret, sub string) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestAuthResolvesPrincipal(t *testing.T) {
	r, got := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", "u1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, identity.Principal("u1"), *got)
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	r, _ := newTestRouter(t, "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsBadScheme(t *testing.T) {
	r, _ := newTestRouter(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsForgedToken(t *testing.T) {
	r, _ := newTestRouter(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret", "u1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsTokenWithoutSubject(t *testing.T) {
	r, _ := newTestRouter(t, "secret")
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPrincipalMissingFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Equal(t, identity.None, Principal(c))
}

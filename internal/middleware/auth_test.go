package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exam_review_backend/internal/config"
	"exam_review_backend/internal/model"
	"exam_review_backend/internal/util"
	"exam_review_backend/internal/util/jwttest"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: secret}}

	r := gin.New()
	api := r.Group("/api", AuthMiddleware(cfg))
	api.GET("/me", func(c *gin.Context) {
		util.Success(c, util.GetUserFromContext(c).UserID)
	})
	api.GET("/review", RoleMiddleware(model.RoleReviewer), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func token(t *testing.T, role model.UserRole, key string) string {
	t.Helper()
	tok, err := jwttest.Token(42, role, key, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(r *gin.Engine, path, bearer string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", ""))
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", "garbage"))
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", token(t, model.RoleUser, "another-secret-another-secret-xx")))
	assert.Equal(t, http.StatusOK, do(r, "/api/me", token(t, model.RoleUser, secret)))
	assert.Equal(t, http.StatusOK, do(r, "/api/me?token="+token(t, model.RoleUser, secret), ""))
}

func TestAuthMiddleware_IssuerAndExpiry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: secret, Issuer: "auth-service"}}
	r := gin.New()
	r.GET("/api/me", AuthMiddleware(cfg), func(c *gin.Context) { c.Status(http.StatusOK) })

	sign := func(claims *util.Claims) string {
		tok, err := jwttest.Sign(claims, secret)
		require.NoError(t, err)
		return tok
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", token(t, model.RoleUser, secret)), "missing issuer")
	assert.Equal(t, http.StatusOK, do(r, "/api/me", sign(&util.Claims{
		UserID:           7,
		Role:             model.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "auth-service", ExpiresAt: future},
	})))
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", sign(&util.Claims{
		UserID:           7,
		Role:             model.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "auth-service"},
	})), "no expiry")
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", sign(&util.Claims{
		UserID:           7,
		Role:             model.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "auth-service", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})), "expired")
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusForbidden, do(r, "/api/review", token(t, model.RoleUser, secret)))
	assert.Equal(t, http.StatusOK, do(r, "/api/review", token(t, model.RoleReviewer, secret)))
	assert.Equal(t, http.StatusOK, do(r, "/api/review", token(t, model.RoleAdmin, secret)))
}

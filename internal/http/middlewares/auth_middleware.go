package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/kidshub/internal/actorctx"
	"github.com/geocoder89/kidshub/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// RequireAuth rejects requests without a valid bearer access token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
			return
		}

		if !m.identify(c, raw) {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token")
			return
		}
		c.Next()
	}
}

// OptionalAuth identifies the caller when a bearer token is sent. A bad
// token is still rejected; no token means anonymous.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			c.Next()
			return
		}

		if !m.identify(c, raw) {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token")
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) identify(c *gin.Context, raw string) bool {
	claims, err := m.jwt.VerifyAccessToken(raw)
	if err != nil {
		return false
	}

	c.Set(CtxUserID, claims.UserID())
	c.Set(CtxEmail, claims.Email)
	c.Set(CtxRole, claims.Role)
	c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.UserID()))
	return true
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}

	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return raw, raw != ""
}

// BearerToken returns the raw access token of the request, if any.
func BearerToken(c *gin.Context) string {
	raw, _ := bearer(c)
	return raw
}

func UserIDFromContext(c *gin.Context) (string, bool) {
	id := c.GetString(CtxUserID)
	return id, id != ""
}

func EmailFromContext(c *gin.Context) string {
	return c.GetString(CtxEmail)
}

func RoleFromContext(c *gin.Context) (string, bool) {
	role := c.GetString(CtxRole)
	return role, role != ""
}

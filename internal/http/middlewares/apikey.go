package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const APIKeyHeader = "apikey"

// RequireAPIKey checks the public project key every client sends.
func RequireAPIKey(key string) gin.HandlerFunc {
	want := []byte(key)

	return func(c *gin.Context) {
		got := []byte(c.GetHeader(APIKeyHeader))
		if len(got) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			abortError(c, http.StatusUnauthorized, "invalid_api_key", "Missing or invalid apikey header")
			return
		}
		c.Next()
	}
}

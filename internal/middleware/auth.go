package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/studycompanion/core/internal/pkg/response"
)

const contextKeyAuthed = "authenticated"

// Auth returns a middleware that enforces the configured static access
// token. An empty configured token disables authentication, which is
// intended for local single-user deployments.
func Auth(accessToken string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(accessToken))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Set(contextKeyAuthed, true)
			c.Next()
			return
		}

		got := []byte(extractToken(c))
		if len(got) == 0 || subtle.ConstantTimeCompare(expected, got) != 1 {
			response.Unauthorized(c)
			return
		}
		c.Set(contextKeyAuthed, true)
		c.Next()
	}
}

// IsAuthenticated reports whether the request passed Auth.
func IsAuthenticated(c *gin.Context) bool {
	v, ok := c.Get(contextKeyAuthed)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func extractToken(c *gin.Context) string {
	if token := NormalizeToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	if token := NormalizeToken(c.Query("token")); token != "" {
		return token
	}
	if raw, err := c.Cookie("sc-token"); err == nil {
		return NormalizeToken(raw)
	}
	return ""
}

// NormalizeToken strips an optional "Bearer " prefix and whitespace.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	return token
}

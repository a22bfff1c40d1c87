// Bearer-token authentication middleware.
//
// This file resolves the caller's identity from a JWT in the Authorization
// header and publishes it in the Gin context under "userID", where the
// handlers and the rate limiter pick it up.
//
// Behavior:
//   - No secret configured: the middleware is a no-op and identity falls back
//     to the X-User-ID header (demo/dev mode).
//   - No Authorization header: the request proceeds anonymously.
//   - A present but invalid token: 401. A bad credential must not silently
//     degrade into the anonymous fallback.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// hmacMethods are the only signing algorithms accepted for bearer tokens.
// Restricting the set up front closes the alg-confusion hole where an
// attacker downgrades to "none" or swaps in an asymmetric method.
var hmacMethods = []string{"HS256", "HS384", "HS512"}

// BearerAuth returns a Gin middleware that verifies HMAC-signed JWTs and
// stores the subject claim under "userID". An empty secret disables
// verification entirely.
func BearerAuth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.Next()
			return
		}
		token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods(hmacMethods))
		if err != nil || !token.Valid {
			unauthorized(c, "invalid bearer token")
			return
		}
		uid := subjectClaim(token)
		if uid == "" {
			unauthorized(c, "token carries no subject")
			return
		}
		c.Set("userID", uid)
		c.Next()
	}
}

// bearerToken extracts the raw token from an "Authorization: Bearer <jwt>"
// header, returning "" for any other scheme.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// subjectClaim reads the user identity from the token: the registered "sub"
// claim first, then the legacy "id" claim.
func subjectClaim(token *jwt.Token) string {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok {
		return id
	}
	return ""
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}

package app

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AdminAuth guards operator routes. A request passes with a bearer token
// that is one of Tokens or an HMAC-signed JWT verified with JWTSecret. The
// token may also come in the "token" query parameter so the consent flow can
// be started from a browser. With neither configured the guard is open.
type AdminAuth struct {
	Tokens    []string
	JWTSecret string
}

func (a AdminAuth) Enabled() bool {
	return len(a.Tokens) > 0 || a.JWTSecret != ""
}

func (a AdminAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		tokenStr, msg := bearerToken(c)
		if tokenStr == "" {
			abortUnauthorized(c, msg)
			return
		}
		if a.valid(tokenStr) {
			c.Next()
			return
		}
		abortUnauthorized(c, "invalid token")
	}
}

func (a AdminAuth) valid(tokenStr string) bool {
	if a.JWTSecret != "" {
		_, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			return []byte(a.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithLeeway(5*time.Second))
		if err == nil {
			return true
		}
	}
	for _, t := range a.Tokens {
		if subtle.ConstantTimeCompare([]byte(tokenStr), []byte(t)) == 1 {
			return true
		}
	}
	return false
}

func bearerToken(c *gin.Context) (string, string) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		if q := strings.TrimSpace(c.Query("token")); q != "" {
			return q, ""
		}
		return "", "missing authorization"
	}
	parts := strings.Fields(auth)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "invalid authorization format"
	}
	return parts[1], ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msg})
}

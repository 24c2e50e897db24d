package httpapi

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxUserIDKey = "user_id"

// SessionClaims are the claims read from the session token issued by the auth service.
type SessionClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// UserID prefers the uid claim and falls back to sub.
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// TokenVerifier checks HS256 session tokens.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses the token and returns the user it was issued for.
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.UserID() == "" {
		return "", fmt.Errorf("token carries no user id")
	}
	return claims.UserID(), nil
}

// RequireUser rejects requests without a valid bearer session token.
func RequireUser(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			abortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := v.Verify(strings.TrimSpace(tokenString))
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "invalid session token")
			return
		}
		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

// RequireInternalKey guards service-to-service endpoints with a shared key.
// An empty key disables the endpoint.
func RequireInternalKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Internal-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			abortWithError(c, http.StatusUnauthorized, "invalid internal key")
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(ctxUserIDKey)
}

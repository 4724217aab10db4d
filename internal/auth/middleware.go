package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyToken is the key for storing the session token in gin context
	ContextKeyToken = "sessionToken"
	// ContextKeyWallet is the key for storing the authenticated wallet address
	ContextKeyWallet = "walletAddress"
)

// Middleware extracts and validates the session token from the request.
// Sets sessionToken and walletAddress in context if valid.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.GetHeader("X-Session-Token")
		}

		if raw != "" {
			token, err := m.ValidateToken(c.Request.Context(), raw)
			if err == nil {
				c.Set(ContextKeyToken, token)
				c.Set(ContextKeyWallet, token.WalletAddress)
			}
		}

		c.Next()
	}
}

// RequireAuth middleware rejects requests without a valid session.
func RequireAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyToken); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Session token required. Include 'Authorization: Bearer qft_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireOwnership requires auth AND that the session wallet matches the
// address URL parameter.
func RequireOwnership(m *Manager, paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, exists := c.Get(ContextKeyToken)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Session token required.",
			})
			return
		}

		targetAddr := strings.ToLower(c.Param(paramName))

		sessionToken, ok := token.(*Token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Invalid authentication state",
			})
			return
		}
		if !strings.EqualFold(sessionToken.WalletAddress, targetAddr) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You do not own this profile.",
			})
			return
		}

		c.Next()
	}
}

// GetToken returns the session token from context (if authenticated)
func GetToken(c *gin.Context) (*Token, bool) {
	token, exists := c.Get(ContextKeyToken)
	if !exists {
		return nil, false
	}
	return token.(*Token), true
}

// AuthenticatedWallet returns the authenticated wallet address, or "".
func AuthenticatedWallet(c *gin.Context) string {
	addr, exists := c.Get(ContextKeyWallet)
	if !exists {
		return ""
	}
	return addr.(string)
}

// IsAuthenticated checks if the request carries a valid session.
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyToken)
	return exists
}

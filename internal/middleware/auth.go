package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// UserAuth extracts the authenticated user identity from the X-User-ID
// header. Authentication itself happens upstream (the app's auth layer
// terminates the JWT); this service only trusts the forwarded identity.
func UserAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":      "unauthenticated",
				"message":    "X-User-ID header is required",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":      "unauthenticated",
				"message":    "X-User-ID must be a positive integer",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id set by UserAuth.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

func HealthCheck(dbStore *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := dbStore.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"database": "connected",
		})
	}
}

func ReadinessCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	}
}

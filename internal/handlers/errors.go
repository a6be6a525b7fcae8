package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/whatsapp-saas/go-evolution-service/internal/evolution"
	"github.com/whatsapp-saas/go-evolution-service/internal/gateway"
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

// respondError translates domain and gateway failures into the API error
// envelope. Transient gateway trouble reads as "try again"; precondition
// failures point the user back at the connection flow; credential problems
// are operator-facing.
func respondError(c *gin.Context, err error) {
	requestID := c.GetString("request_id")

	switch {
	case errors.Is(err, evolution.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "not_connected",
			"message":    "WhatsApp not connected. Please scan the QR code first.",
			"request_id": requestID,
		})
	case errors.Is(err, evolution.ErrInstanceNotReady):
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "instance_not_ready",
			"message":    "Instance not found. Create one first.",
			"request_id": requestID,
		})
	case errors.Is(err, evolution.ErrAlreadyConnected):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "already_connected",
			"message":    "Instance is already connected. No QR code needed.",
			"request_id": requestID,
		})
	case errors.Is(err, evolution.ErrQRNotAvailable):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "qr_not_available",
			"message":    "QR code not available. Try creating a new instance.",
			"request_id": requestID,
		})
	case errors.Is(err, evolution.ErrInstanceCreateFailed), gateway.IsUnavailable(err):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "gateway_unavailable",
			"message":    "The messaging gateway did not respond. Try again shortly.",
			"request_id": requestID,
		})
	case gateway.IsAuthFailed(err):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "gateway_auth_failed",
			"message":    "The gateway rejected the service credential. Contact the operator.",
			"request_id": requestID,
		})
	case gateway.IsRejected(err):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "gateway_rejected",
			"message":    "The messaging gateway rejected the request.",
			"request_id": requestID,
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "not_found",
			"message":    "Resource not found",
			"request_id": requestID,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "internal_error",
			"message":    "Unexpected failure",
			"request_id": requestID,
		})
	}
}

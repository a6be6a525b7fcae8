package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/whatsapp-saas/go-evolution-service/internal/evolution"
)

type WebhookHandler struct {
	ingestor *evolution.Ingestor
}

func NewWebhookHandler(i *evolution.Ingestor) *WebhookHandler {
	return &WebhookHandler{ingestor: i}
}

// Receive accepts Evolution push events. It always acknowledges with 200:
// the gateway has no retry contract worth feeding, so malformed or
// unmappable events are logged and swallowed, and even storage failures
// do not change the acknowledgement.
func (h *WebhookHandler) Receive(c *gin.Context) {
	requestID := c.GetString("request_id")

	var evt evolution.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		log.Warn().Err(err).
			Str("request_id", requestID).
			Msg("Malformed webhook payload, acknowledging anyway")
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "request_id": requestID})
		return
	}

	if err := h.ingestor.HandleEvent(c.Request.Context(), evt); err != nil {
		log.Error().Err(err).
			Str("event", evt.Event).
			Str("instance", evt.Instance).
			Str("request_id", requestID).
			Msg("Webhook event processing failed")
		c.JSON(http.StatusOK, gin.H{"status": "error_logged", "request_id": requestID})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestID})
}

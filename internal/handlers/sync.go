package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/whatsapp-saas/go-evolution-service/internal/evolution"
	"github.com/whatsapp-saas/go-evolution-service/internal/middleware"
)

type SyncHandler struct {
	syncer *evolution.Syncer
}

func NewSyncHandler(s *evolution.Syncer) *SyncHandler {
	return &SyncHandler{syncer: s}
}

// Contacts pulls and upserts the full contact list.
func (h *SyncHandler) Contacts(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	synced, err := h.syncer.SyncContacts(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Contact sync failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"synced_count": synced,
		"message":      "Contacts synchronized",
		"request_id":   requestID,
	})
}

// Chats returns the transient 1:1 chat listing.
func (h *SyncHandler) Chats(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	chats, err := h.syncer.SyncChats(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chats":      chats,
		"total":      len(chats),
		"request_id": requestID,
	})
}

// Messages syncs message history for one contact. The limit query
// parameter caps the fetch; it defaults server-side.
func (h *SyncHandler) Messages(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	contactID, err := strconv.ParseInt(c.Param("contactId"), 10, 64)
	if err != nil || contactID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid_contact_id",
			"message":    "contactId must be a positive integer",
			"request_id": requestID,
		})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "invalid_limit",
				"message":    "limit must be a non-negative integer",
				"request_id": requestID,
			})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	result, err := h.syncer.SyncMessages(ctx, userID, contactID, limit)
	if err != nil {
		log.Error().Err(err).
			Int64("user_id", userID).
			Int64("contact_id", contactID).
			Msg("Message sync failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"synced_count":  result.Inserted,
		"skipped_count": result.Skipped,
		"message":       "Messages synchronized",
		"request_id":    requestID,
	})
}

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
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

type MessageHandler struct {
	syncer    *evolution.Syncer
	store     *store.Store
	retention time.Duration
}

func NewMessageHandler(s *evolution.Syncer, st *store.Store, retention time.Duration) *MessageHandler {
	return &MessageHandler{syncer: s, store: st, retention: retention}
}

type SendTextRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	Text        string `json:"text" binding:"required"`
}

// SendText sends a plain text message through the user's instance.
func (h *MessageHandler) SendText(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	var req SendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid_request",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	messageID, err := h.syncer.SendText(ctx, userID, req.PhoneNumber, req.Text)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Send text failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message_id": messageID,
		"request_id": requestID,
	})
}

// ListContacts pages the user's stored contacts.
func (h *MessageHandler) ListContacts(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	offset, limit := paging(c, 100)

	contacts, err := h.store.ListContacts(c.Request.Context(), userID, offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(contacts))
	for _, contact := range contacts {
		out = append(out, gin.H{
			"id":           contact.ID,
			"wa_id":        contact.WaID,
			"remote_jid":   contact.RemoteJID,
			"name":         contact.Name,
			"profile_name": contact.ProfileName,
			"created_at":   contact.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"contacts":   out,
		"total":      len(out),
		"request_id": requestID,
	})
}

// ListMessages pages one contact's stored messages, newest first. Messages
// older than the retention window are filtered from reads.
func (h *MessageHandler) ListMessages(c *gin.Context) {
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

	contact, err := h.store.ContactByID(c.Request.Context(), userID, contactID)
	if err != nil {
		respondError(c, err)
		return
	}

	offset, limit := paging(c, 50)

	var notBefore time.Time
	if h.retention > 0 {
		notBefore = time.Now().UTC().Add(-h.retention)
	}

	messages, err := h.store.ListMessages(c.Request.Context(), userID, contactID, offset, limit, notBefore)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(messages))
	for _, m := range messages {
		out = append(out, gin.H{
			"id":          m.ID,
			"external_id": m.ExternalID,
			"type":        m.MessageType,
			"content":     m.Content,
			"media_url":   m.MediaURL,
			"is_outbound": m.IsOutbound,
			"status":      m.Status,
			"source":      m.Source,
			"timestamp":   m.SentAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": out,
		"contact": gin.H{
			"id":           contact.ID,
			"wa_id":        contact.WaID,
			"remote_jid":   contact.RemoteJID,
			"name":         contact.Name,
			"profile_name": contact.ProfileName,
		},
		"request_id": requestID,
	})
}

// Stats reports message/contact counts for the dashboard.
func (h *MessageHandler) Stats(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	stats, err := h.store.CountStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_messages":    stats.TotalMessages,
		"inbound_messages":  stats.InboundMessages,
		"outbound_messages": stats.OutboundMessages,
		"total_contacts":    stats.TotalContacts,
		"request_id":        requestID,
	})
}

func paging(c *gin.Context, defaultLimit int) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if limit <= 0 || limit > 500 {
		limit = defaultLimit
	}
	return offset, limit
}

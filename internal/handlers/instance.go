package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/whatsapp-saas/go-evolution-service/internal/evolution"
	"github.com/whatsapp-saas/go-evolution-service/internal/middleware"
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

type InstanceHandler struct {
	reconciler *evolution.Reconciler
}

func NewInstanceHandler(r *evolution.Reconciler) *InstanceHandler {
	return &InstanceHandler{reconciler: r}
}

type InstanceStatusResponse struct {
	InstanceName    string     `json:"instance_name"`
	Status          string     `json:"status"`
	PhoneNumber     *string    `json:"phone_number,omitempty"`
	ProfileName     *string    `json:"profile_name,omitempty"`
	QRCode          *string    `json:"qr_code,omitempty"`
	QRCodeUpdatedAt *time.Time `json:"qr_code_updated_at,omitempty"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
	RequestID       string     `json:"request_id"`
}

func instanceResponse(inst *store.Instance, requestID string) InstanceStatusResponse {
	resp := InstanceStatusResponse{
		InstanceName:    inst.InstanceName,
		Status:          inst.Status,
		PhoneNumber:     inst.PhoneNumber,
		ProfileName:     inst.ProfileName,
		LastConnectedAt: inst.LastConnectedAt,
		RequestID:       requestID,
	}
	// The QR payload is only meaningful while pairing.
	if inst.Status == string(evolution.StatusQR) {
		resp.QRCode = inst.QRCode
		resp.QRCodeUpdatedAt = inst.QRCodeUpdatedAt
	}
	return resp
}

// Connect creates the gateway instance for the user and starts pairing.
func (h *InstanceHandler) Connect(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	inst, err := h.reconciler.Connect(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Instance connect failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, instanceResponse(inst, requestID))
}

// Status polls the gateway and reports the converged instance state. A
// user without an instance row reads as implicitly disconnected.
func (h *InstanceHandler) Status(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	inst, err := h.reconciler.PollStatus(ctx, userID)
	if errors.Is(err, evolution.ErrInstanceNotReady) {
		c.JSON(http.StatusOK, InstanceStatusResponse{
			InstanceName: evolution.InstanceName(userID),
			Status:       string(evolution.StatusDisconnected),
			RequestID:    requestID,
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, instanceResponse(inst, requestID))
}

// QRCode fetches a fresh pairing payload for the instance.
func (h *InstanceHandler) QRCode(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	inst, err := h.reconciler.RefreshQR(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"instance_name": inst.InstanceName,
		"qr_code":       inst.QRCode,
		"updated_at":    inst.QRCodeUpdatedAt,
		"request_id":    requestID,
	})
}

// Disconnect logs out and unconditionally forces local disconnected state.
func (h *InstanceHandler) Disconnect(c *gin.Context) {
	userID := middleware.UserID(c)
	requestID := c.GetString("request_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	inst, err := h.reconciler.Disconnect(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Successfully disconnected",
		"instance_name": inst.InstanceName,
		"status":        inst.Status,
		"request_id":    requestID,
	})
}

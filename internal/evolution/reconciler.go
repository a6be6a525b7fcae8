package evolution

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/whatsapp-saas/go-evolution-service/internal/gateway"
	"github.com/whatsapp-saas/go-evolution-service/internal/metrics"
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

// Reconciler is the authoritative owner of instance status transitions
// driven by user actions and status polls. Webhook pushes go through the
// Ingestor, which is constrained to the same transition table; last writer
// wins.
type Reconciler struct {
	store *store.Store
	gw    Gateway
}

func NewReconciler(st *store.Store, gw Gateway) *Reconciler {
	return &Reconciler{store: st, gw: gw}
}

// Connect creates the user's instance at the gateway if needed and starts
// the pairing flow. On success the instance is in status qr (QR payload
// stored), connecting, or connected when the gateway already holds an open
// session. On gateway failure the row stays disconnected and the call is
// safe to retry.
func (r *Reconciler) Connect(ctx context.Context, userID int64) (*store.Instance, error) {
	inst, err := r.store.InstanceByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		inst, err = r.store.CreateInstance(ctx, userID, InstanceName(userID))
	}
	if err != nil {
		return nil, err
	}

	// The gateway may already hold an open session for this instance from
	// a previous pairing. Probe first; any probe failure just means we go
	// through the create path.
	if state, err := r.gw.ConnectionState(ctx, inst.InstanceName); err == nil {
		if StatusFromGatewayState(state.State) == StatusConnected {
			r.applyConnected(inst, state)
			if err := r.saveStatus(ctx, inst); err != nil {
				return nil, err
			}
			return inst, nil
		}
	}

	raw, err := r.gw.CreateInstance(ctx, inst.InstanceName)
	if err != nil && !gateway.IsRejected(err) {
		// Rejection means the instance already exists at the gateway.
		return nil, fmt.Errorf("%w: %v", ErrInstanceCreateFailed, err)
	}
	if len(raw) > 0 {
		inst.RawData = raw
	}

	connect, err := r.gw.ConnectInstance(ctx, inst.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInstanceCreateFailed, err)
	}

	now := time.Now().UTC()
	if qr := qrPayload(connect); qr != "" {
		inst.Status = string(StatusQR)
		inst.QRCode = &qr
		inst.QRCodeUpdatedAt = &now
	} else {
		inst.Status = string(StatusConnecting)
		inst.QRCode = nil
		inst.QRCodeUpdatedAt = nil
	}

	if err := r.saveStatus(ctx, inst); err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Str("instance", inst.InstanceName).
		Str("status", inst.Status).
		Msg("Instance connect initiated")

	return inst, nil
}

// PollStatus fetches the gateway's connection state and converges the
// stored instance onto it. Idempotent; this is the primary truth source
// while webhooks are only an optimization. A transient gateway failure
// propagates without touching the row.
func (r *Reconciler) PollStatus(ctx context.Context, userID int64) (*store.Instance, error) {
	inst, err := r.store.InstanceByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInstanceNotReady
	}
	if err != nil {
		return nil, err
	}

	state, err := r.gw.ConnectionState(ctx, inst.InstanceName)
	if err != nil {
		if gateway.IsRejected(err) {
			// The gateway no longer knows the instance; that is a
			// confirmed disconnected state.
			inst.Status = string(StatusDisconnected)
			inst.QRCode = nil
			inst.QRCodeUpdatedAt = nil
			if saveErr := r.saveStatus(ctx, inst); saveErr != nil {
				return nil, saveErr
			}
			return inst, nil
		}
		return nil, err
	}

	switch StatusFromGatewayState(state.State) {
	case StatusConnected:
		r.applyConnected(inst, state)
	case StatusConnecting:
		inst.Status = string(StatusConnecting)
	default:
		inst.Status = string(StatusDisconnected)
		inst.QRCode = nil
		inst.QRCodeUpdatedAt = nil
	}

	if err := r.saveStatus(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// RefreshQR fetches a fresh pairing payload. QR codes expire at the
// gateway within about a minute, so the UI calls this while the user is
// in the qr or connecting state.
func (r *Reconciler) RefreshQR(ctx context.Context, userID int64) (*store.Instance, error) {
	inst, err := r.store.InstanceByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInstanceNotReady
	}
	if err != nil {
		return nil, err
	}

	if inst.Status == string(StatusConnected) {
		return nil, ErrAlreadyConnected
	}

	result, err := r.gw.FetchQRCode(ctx, inst.InstanceName)
	if err != nil {
		return nil, err
	}

	qr := qrPayload(result)
	if qr == "" {
		return nil, ErrQRNotAvailable
	}

	now := time.Now().UTC()
	inst.Status = string(StatusQR)
	inst.QRCode = &qr
	inst.QRCodeUpdatedAt = &now

	if err := r.saveStatus(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Disconnect logs the instance out at the gateway and forces the local row
// to disconnected. Gateway failures are logged but never surfaced: the user
// must not end up stuck in a stale connected state.
func (r *Reconciler) Disconnect(ctx context.Context, userID int64) (*store.Instance, error) {
	inst, err := r.store.InstanceByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInstanceNotReady
	}
	if err != nil {
		return nil, err
	}

	if err := r.gw.LogoutInstance(ctx, inst.InstanceName); err != nil {
		log.Warn().Err(err).
			Str("instance", inst.InstanceName).
			Msg("Gateway logout failed, forcing local disconnect")
	}
	if err := r.gw.DeleteInstance(ctx, inst.InstanceName); err != nil {
		log.Warn().Err(err).
			Str("instance", inst.InstanceName).
			Msg("Gateway instance delete failed")
	}

	inst.Status = string(StatusDisconnected)
	inst.QRCode = nil
	inst.QRCodeUpdatedAt = nil
	inst.PhoneNumber = nil

	if err := r.saveStatus(ctx, inst); err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Msg("Instance disconnected")
	return inst, nil
}

// applyConnected moves the instance into connected, stamping
// last_connected_at only on the transition so repeated polls are
// idempotent.
func (r *Reconciler) applyConnected(inst *store.Instance, state *gateway.StateResult) {
	if inst.Status != string(StatusConnected) {
		now := time.Now().UTC()
		inst.LastConnectedAt = &now
	}
	inst.Status = string(StatusConnected)
	inst.QRCode = nil
	inst.QRCodeUpdatedAt = nil

	if state.Owner != "" {
		phone := PhoneFromJID(state.Owner)
		inst.PhoneNumber = &phone
	}
	if state.ProfileName != "" {
		profile := state.ProfileName
		inst.ProfileName = &profile
	}
	if len(state.Raw) > 0 {
		inst.RawData = state.Raw
	}
}

func (r *Reconciler) saveStatus(ctx context.Context, inst *store.Instance) error {
	if err := r.store.SaveInstance(ctx, inst); err != nil {
		return err
	}
	metrics.InstanceTransitions.WithLabelValues(inst.Status).Inc()
	return nil
}

// qrPayload picks the displayable QR payload from a gateway pairing
// response. When the gateway returns only the raw pairing code, the PNG is
// rendered locally so the dashboard always gets an image.
func qrPayload(result *gateway.ConnectResult) string {
	if result == nil {
		return ""
	}
	if result.Base64 != "" {
		return result.Base64
	}
	if result.Code == "" {
		return ""
	}

	png, err := qrcode.Encode(result.Code, qrcode.Medium, 256)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to render QR code from pairing string")
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

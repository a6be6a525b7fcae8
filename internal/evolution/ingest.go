package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/whatsapp-saas/go-evolution-service/internal/gateway"
	"github.com/whatsapp-saas/go-evolution-service/internal/metrics"
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

// Event is the tagged union the gateway pushes to the webhook endpoint:
// an event-type discriminator, the originating instance name and a
// variant payload.
type Event struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

const (
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
	EventMessagesUpsert   = "messages.upsert"
)

// Ingestor applies gateway push events. It runs without any authenticated
// request context: instance names are reverse-mapped to their owning user.
// Events referencing unknown instances or carrying unknown discriminators
// are dropped, not errored; the gateway has no useful retry contract.
type Ingestor struct {
	store *store.Store
}

func NewIngestor(st *store.Store) *Ingestor {
	return &Ingestor{store: st}
}

// HandleEvent processes one push event. A nil return does not imply
// anything was written: dropped events also return nil. Only storage
// failures surface, and the HTTP layer logs them without changing the
// acknowledgement.
func (i *Ingestor) HandleEvent(ctx context.Context, evt Event) error {
	switch evt.Event {
	case EventConnectionUpdate:
		return i.handleConnectionUpdate(ctx, evt)
	case EventQRCodeUpdated:
		return i.handleQRCodeUpdated(ctx, evt)
	case EventMessagesUpsert:
		return i.handleMessagesUpsert(ctx, evt)
	default:
		log.Warn().
			Str("event", evt.Event).
			Str("instance", evt.Instance).
			Msg("Unknown webhook event type, dropping")
		metrics.WebhookEvents.WithLabelValues("unknown", "dropped").Inc()
		return nil
	}
}

// instanceFor reverse-maps the gateway instance name. A missing row means
// the event is unmappable and gets dropped.
func (i *Ingestor) instanceFor(ctx context.Context, evt Event) (*store.Instance, error) {
	if evt.Instance == "" {
		log.Warn().Str("event", evt.Event).Msg("Webhook event without instance name, dropping")
		metrics.WebhookEvents.WithLabelValues(evt.Event, "dropped").Inc()
		return nil, nil
	}

	inst, err := i.store.InstanceByName(ctx, evt.Instance)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().
			Str("event", evt.Event).
			Str("instance", evt.Instance).
			Msg("Webhook event for unknown instance, dropping")
		metrics.WebhookEvents.WithLabelValues(evt.Event, "dropped").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

type connectionUpdateData struct {
	State       string `json:"state"`
	StatusCode  int    `json:"statusReason"`
	Wuid        string `json:"wuid"`
	ProfileName string `json:"profileName"`
}

func (i *Ingestor) handleConnectionUpdate(ctx context.Context, evt Event) error {
	inst, err := i.instanceFor(ctx, evt)
	if err != nil || inst == nil {
		return err
	}

	var data connectionUpdateData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		log.Warn().Err(err).
			Str("instance", evt.Instance).
			Msg("Malformed connection.update payload, dropping")
		metrics.WebhookEvents.WithLabelValues(evt.Event, "dropped").Inc()
		return nil
	}

	switch StatusFromGatewayState(data.State) {
	case StatusConnected:
		if inst.Status != string(StatusConnected) {
			now := time.Now().UTC()
			inst.LastConnectedAt = &now
		}
		inst.Status = string(StatusConnected)
		inst.QRCode = nil
		inst.QRCodeUpdatedAt = nil
	case StatusConnecting:
		inst.Status = string(StatusConnecting)
	default:
		inst.Status = string(StatusDisconnected)
		inst.QRCode = nil
		inst.QRCodeUpdatedAt = nil
	}

	if data.Wuid != "" {
		phone := PhoneFromJID(data.Wuid)
		inst.PhoneNumber = &phone
	}
	if data.ProfileName != "" {
		profile := data.ProfileName
		inst.ProfileName = &profile
	}

	if err := i.store.SaveInstance(ctx, inst); err != nil {
		return err
	}
	metrics.InstanceTransitions.WithLabelValues(inst.Status).Inc()
	metrics.WebhookEvents.WithLabelValues(evt.Event, "applied").Inc()

	log.Info().
		Str("instance", inst.InstanceName).
		Str("state", data.State).
		Str("status", inst.Status).
		Msg("Applied connection update")

	return nil
}

type qrCodeUpdatedData struct {
	QRCode struct {
		Base64 string `json:"base64"`
		Code   string `json:"code"`
	} `json:"qrcode"`
	Base64 string `json:"base64"`
}

func (i *Ingestor) handleQRCodeUpdated(ctx context.Context, evt Event) error {
	inst, err := i.instanceFor(ctx, evt)
	if err != nil || inst == nil {
		return err
	}

	var data qrCodeUpdatedData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		log.Warn().Err(err).
			Str("instance", evt.Instance).
			Msg("Malformed qrcode.updated payload, dropping")
		metrics.WebhookEvents.WithLabelValues(evt.Event, "dropped").Inc()
		return nil
	}

	qr := firstNonEmpty(data.QRCode.Base64, data.Base64, data.QRCode.Code)
	if qr == "" {
		metrics.WebhookEvents.WithLabelValues(evt.Event, "dropped").Inc()
		return nil
	}

	now := time.Now().UTC()
	inst.QRCode = &qr
	inst.QRCodeUpdatedAt = &now
	// A connected instance keeps its status; a QR push for it is stale.
	if inst.Status != string(StatusConnected) {
		inst.Status = string(StatusQR)
	}

	if err := i.store.SaveInstance(ctx, inst); err != nil {
		return err
	}
	metrics.WebhookEvents.WithLabelValues(evt.Event, "applied").Inc()
	return nil
}

func (i *Ingestor) handleMessagesUpsert(ctx context.Context, evt Event) error {
	inst, err := i.instanceFor(ctx, evt)
	if err != nil || inst == nil {
		return err
	}

	records := decodeMessageRecords(evt.Data)
	if len(records) == 0 {
		log.Warn().
			Str("instance", evt.Instance).
			Msg("messages.upsert without decodable messages, dropping")
		metrics.WebhookEvents.WithLabelValues(evt.Event, "dropped").Inc()
		return nil
	}

	for _, rec := range records {
		if err := i.ingestMessage(ctx, inst, rec); err != nil {
			return err
		}
	}

	metrics.WebhookEvents.WithLabelValues(evt.Event, "applied").Inc()
	return nil
}

func (i *Ingestor) ingestMessage(ctx context.Context, inst *store.Instance, rec gateway.MessageRecord) error {
	jid := rec.Key.RemoteJID
	if jid == "" || IsGroupJID(jid) || IsBroadcastJID(jid) {
		return nil
	}

	// The contact must exist before the message insert; created-if-absent
	// with the same merge semantics as the sync path.
	candidate := &store.Contact{
		UserID:    inst.UserID,
		WaID:      PhoneFromJID(jid),
		RemoteJID: jid,
	}
	if rec.PushName != "" && !rec.Key.FromMe {
		push := rec.PushName
		candidate.Name = &push
		candidate.ProfileName = &push
	}

	contact, err := i.store.UpsertContact(ctx, candidate)
	if err != nil {
		return err
	}

	msg, ok := MapMessage(rec, inst.UserID, contact.ID)
	if !ok {
		return nil
	}

	inserted, err := i.store.InsertMessage(ctx, msg)
	if err != nil {
		return err
	}
	if inserted {
		metrics.MessagesSynced.WithLabelValues("inserted").Inc()
	} else {
		metrics.MessagesSynced.WithLabelValues("duplicate").Inc()
	}
	return nil
}

// decodeMessageRecords accepts the three shapes Evolution uses for
// messages.upsert data: a single record, a bare array, or a wrapped
// {"messages": [...]} object.
func decodeMessageRecords(data json.RawMessage) []gateway.MessageRecord {
	if len(data) == 0 {
		return nil
	}

	var list []gateway.MessageRecord
	if err := json.Unmarshal(data, &list); err == nil {
		return validRecords(list)
	}

	var wrapped struct {
		Messages []gateway.MessageRecord `json:"messages"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Messages) > 0 {
		return validRecords(wrapped.Messages)
	}

	var single gateway.MessageRecord
	if err := json.Unmarshal(data, &single); err == nil && single.Key.ID != "" {
		return []gateway.MessageRecord{single}
	}
	return nil
}

func validRecords(list []gateway.MessageRecord) []gateway.MessageRecord {
	records := list[:0]
	for _, rec := range list {
		if rec.Key.ID != "" {
			records = append(records, rec)
		}
	}
	return records
}

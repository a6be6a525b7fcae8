package evolution

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/whatsapp-saas/go-evolution-service/internal/store"
	"github.com/whatsapp-saas/go-evolution-service/internal/store/storetest"
)

func TestIngestUnknownEventDropped(t *testing.T) {
	st := storetest.New(t)
	ing := NewIngestor(st)

	err := ing.HandleEvent(context.Background(), Event{
		Event:    "call.offer",
		Instance: "user_1",
		Data:     json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("unknown event must be dropped without error: %v", err)
	}
}

func TestIngestUnknownInstanceDropped(t *testing.T) {
	st := storetest.New(t)
	ing := NewIngestor(st)
	ctx := context.Background()

	err := ing.HandleEvent(ctx, Event{
		Event:    EventMessagesUpsert,
		Instance: "user_999",
		Data:     json.RawMessage(`{"key":{"id":"X1","remoteJid":"5511@s.whatsapp.net"},"message":{"conversation":"oi"}}`),
	})
	if err != nil {
		t.Fatalf("unknown instance must be dropped without error: %v", err)
	}

	// Nothing may have been written.
	contacts, err := st.ListContacts(ctx, 999, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(contacts) != 0 {
		t.Errorf("dropped event wrote %d contacts", len(contacts))
	}
}

func TestIngestConnectionUpdateOpen(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	if _, err := st.CreateInstance(ctx, 1, "user_1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ing := NewIngestor(st)

	err := ing.HandleEvent(ctx, Event{
		Event:    EventConnectionUpdate,
		Instance: "user_1",
		Data:     json.RawMessage(`{"state":"open","wuid":"5511999999999@s.whatsapp.net","profileName":"Maria"}`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	inst, err := st.InstanceByUser(ctx, 1)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if inst.Status != string(StatusConnected) {
		t.Errorf("status = %q, want connected", inst.Status)
	}
	if inst.PhoneNumber == nil || *inst.PhoneNumber != "5511999999999" {
		t.Errorf("phone = %v", inst.PhoneNumber)
	}
	if inst.ProfileName == nil || *inst.ProfileName != "Maria" {
		t.Errorf("profile = %v", inst.ProfileName)
	}
	if inst.LastConnectedAt == nil {
		t.Error("last_connected_at not stamped on transition")
	}
}

func TestIngestConnectionUpdateClose(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	inst, err := st.CreateInstance(ctx, 1, "user_1")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	qr := "OLD"
	inst.Status = string(StatusQR)
	inst.QRCode = &qr
	if err := st.SaveInstance(ctx, inst); err != nil {
		t.Fatalf("seed save: %v", err)
	}
	ing := NewIngestor(st)

	err = ing.HandleEvent(ctx, Event{
		Event:    EventConnectionUpdate,
		Instance: "user_1",
		Data:     json.RawMessage(`{"state":"close","statusReason":401}`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := st.InstanceByUser(ctx, 1)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != string(StatusDisconnected) || got.QRCode != nil {
		t.Errorf("status=%q qr=%v, want disconnected/nil", got.Status, got.QRCode)
	}
}

func TestIngestQRCodeUpdated(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	if _, err := st.CreateInstance(ctx, 1, "user_1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ing := NewIngestor(st)

	err := ing.HandleEvent(ctx, Event{
		Event:    EventQRCodeUpdated,
		Instance: "user_1",
		Data:     json.RawMessage(`{"qrcode":{"base64":"data:image/png;base64,QQQ","code":"2@abc"}}`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	inst, err := st.InstanceByUser(ctx, 1)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if inst.Status != string(StatusQR) {
		t.Errorf("status = %q, want qr", inst.Status)
	}
	if inst.QRCode == nil || *inst.QRCode != "data:image/png;base64,QQQ" {
		t.Errorf("qr = %v", inst.QRCode)
	}
	if inst.QRCodeUpdatedAt == nil {
		t.Error("qr timestamp not set")
	}
}

func TestIngestStaleQRKeepsConnected(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	inst, err := st.CreateInstance(ctx, 1, "user_1")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	inst.Status = string(StatusConnected)
	if err := st.SaveInstance(ctx, inst); err != nil {
		t.Fatalf("seed save: %v", err)
	}
	ing := NewIngestor(st)

	err = ing.HandleEvent(ctx, Event{
		Event:    EventQRCodeUpdated,
		Instance: "user_1",
		Data:     json.RawMessage(`{"base64":"LATE"}`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := st.InstanceByUser(ctx, 1)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != string(StatusConnected) {
		t.Errorf("stale qr push demoted status to %q", got.Status)
	}
}

func TestIngestMessagesUpsertPersistsAndDeduplicates(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	if _, err := st.CreateInstance(ctx, 1, "user_1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ing := NewIngestor(st)

	evt := Event{
		Event:    EventMessagesUpsert,
		Instance: "user_1",
		Data: json.RawMessage(`{
			"key": {"id": "WH1", "remoteJid": "5511911112222@s.whatsapp.net", "fromMe": false},
			"pushName": "Ana",
			"message": {"conversation": "cheguei"},
			"messageTimestamp": 1717243200
		}`),
	}
	if err := ing.HandleEvent(ctx, evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	contact, err := st.ContactByRemoteJID(ctx, 1, "5511911112222@s.whatsapp.net")
	if err != nil {
		t.Fatalf("contact not created: %v", err)
	}
	if contact.Name == nil || *contact.Name != "Ana" {
		t.Errorf("contact name = %v, want Ana", contact.Name)
	}

	msg, err := st.MessageByExternalID(ctx, "WH1")
	if err != nil {
		t.Fatalf("message not stored: %v", err)
	}
	if msg.Content == nil || *msg.Content != "cheguei" {
		t.Errorf("content = %v", msg.Content)
	}
	if msg.IsOutbound {
		t.Error("inbound message marked outbound")
	}

	// Gateways redeliver; the second push is a no-op.
	if err := ing.HandleEvent(ctx, evt); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	stats, err := st.CountStats(ctx, 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 1 {
		t.Errorf("stored messages = %d, want 1 after redelivery", stats.TotalMessages)
	}
}

func TestIngestMessagesUpsertArrayShape(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	if _, err := st.CreateInstance(ctx, 1, "user_1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ing := NewIngestor(st)

	err := ing.HandleEvent(ctx, Event{
		Event:    EventMessagesUpsert,
		Instance: "user_1",
		Data: json.RawMessage(`{"messages":[
			{"key":{"id":"A1","remoteJid":"5511@s.whatsapp.net"},"message":{"conversation":"um"}},
			{"key":{"id":"A2","remoteJid":"5511@s.whatsapp.net"},"message":{"conversation":"dois"}}
		]}`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	stats, err := st.CountStats(ctx, 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 2 {
		t.Errorf("stored messages = %d, want 2", stats.TotalMessages)
	}
}

func TestIngestMessagesUpsertSkipsGroupChat(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	if _, err := st.CreateInstance(ctx, 1, "user_1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ing := NewIngestor(st)

	err := ing.HandleEvent(ctx, Event{
		Event:    EventMessagesUpsert,
		Instance: "user_1",
		Data:     json.RawMessage(`{"key":{"id":"G1","remoteJid":"120363041234567890@g.us"},"message":{"conversation":"no grupo"}}`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if _, err := st.MessageByExternalID(ctx, "G1"); err != store.ErrNotFound {
		t.Errorf("group message err = %v, want ErrNotFound", err)
	}
}

func TestIngestMalformedPayloadDropped(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	if _, err := st.CreateInstance(ctx, 1, "user_1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ing := NewIngestor(st)

	err := ing.HandleEvent(ctx, Event{
		Event:    EventConnectionUpdate,
		Instance: "user_1",
		Data:     json.RawMessage(`"not an object"`),
	})
	if err != nil {
		t.Fatalf("malformed payload must be dropped without error: %v", err)
	}

	inst, err := st.InstanceByUser(ctx, 1)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if inst.Status != string(StatusDisconnected) {
		t.Errorf("malformed payload changed status to %q", inst.Status)
	}
}

package evolution

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/whatsapp-saas/go-evolution-service/internal/gateway"
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
	"github.com/whatsapp-saas/go-evolution-service/internal/store/storetest"
)

func seedConnected(t *testing.T, st *store.Store, userID int64) *store.Instance {
	t.Helper()
	inst, err := st.CreateInstance(context.Background(), userID, InstanceName(userID))
	if err != nil {
		t.Fatalf("seed instance: %v", err)
	}
	inst.Status = string(StatusConnected)
	if err := st.SaveInstance(context.Background(), inst); err != nil {
		t.Fatalf("seed save: %v", err)
	}
	return inst
}

func textRecord(id, remoteJID, text string) gateway.MessageRecord {
	return gateway.MessageRecord{
		Key:              gateway.MessageKey{ID: id, RemoteJID: remoteJID},
		Message:          rawMessage("conversation", `"`+text+`"`),
		MessageTimestamp: "1717243200",
	}
}

func TestSyncRequiresConnectedInstance(t *testing.T) {
	st := storetest.New(t)
	gw := newFakeGateway()
	s := NewSyncer(st, gw, 30)
	ctx := context.Background()

	// No instance at all.
	if _, err := s.SyncContacts(ctx, 1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("no instance err = %v, want ErrNotConnected", err)
	}

	// Instance present but still pairing.
	inst, err := st.CreateInstance(ctx, 1, "user_1")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	inst.Status = string(StatusQR)
	if err := st.SaveInstance(ctx, inst); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	if _, err := s.SyncMessages(ctx, 1, 1, 0); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("pairing instance err = %v, want ErrNotConnected", err)
	}
	if _, err := s.SendText(ctx, 1, "5511", "oi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send err = %v, want ErrNotConnected", err)
	}

	// The gate holds before any gateway traffic.
	if len(gw.calls) != 0 {
		t.Errorf("gateway called while not connected: %v", gw.calls)
	}
}

func TestSyncContactsFiltersAndNames(t *testing.T) {
	st := storetest.New(t)
	seedConnected(t, st, 1)

	gw := newFakeGateway()
	gw.contactsFn = func(string) ([]gateway.ContactRecord, error) {
		return []gateway.ContactRecord{
			{ID: "5511911112222@s.whatsapp.net", PushName: "Ana"},
			{ID: "5511933334444@s.whatsapp.net", Name: "Bruno", PushName: "bruno.ofc"},
			{ID: "120363041234567890@g.us", Name: "Familia"},
			{ID: "status@broadcast"},
			{},
		}, nil
	}
	s := NewSyncer(st, gw, 30)

	synced, err := s.SyncContacts(context.Background(), 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if synced != 2 {
		t.Errorf("synced = %d, want 2 (groups, broadcasts and blanks filtered)", synced)
	}

	ana, err := st.ContactByRemoteJID(context.Background(), 1, "5511911112222@s.whatsapp.net")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ana.Name == nil || *ana.Name != "Ana" {
		t.Errorf("push name fallback: name = %v, want Ana", ana.Name)
	}
	if ana.WaID != "5511911112222" {
		t.Errorf("wa id = %q", ana.WaID)
	}

	bruno, err := st.ContactByRemoteJID(context.Background(), 1, "5511933334444@s.whatsapp.net")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if bruno.Name == nil || *bruno.Name != "Bruno" {
		t.Errorf("name = %v, want Bruno (name wins over push name)", bruno.Name)
	}
}

func TestSyncChatsTransientAndFiltered(t *testing.T) {
	st := storetest.New(t)
	seedConnected(t, st, 1)

	gw := newFakeGateway()
	gw.chatsFn = func(string) ([]gateway.ChatRecord, error) {
		return []gateway.ChatRecord{
			{ID: "5511911112222@s.whatsapp.net", PushName: "Ana", UnreadCount: 3},
			{ID: "120363041234567890@g.us", Name: "Familia"},
		}, nil
	}
	s := NewSyncer(st, gw, 30)

	chats, err := s.SyncChats(context.Background(), 1)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("chats = %d, want 1", len(chats))
	}
	if chats[0].Name != "Ana" || chats[0].UnreadCount != 3 {
		t.Errorf("chat = %+v", chats[0])
	}

	// Chat listings are never persisted.
	contacts, err := st.ListContacts(context.Background(), 1, 0, 10)
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(contacts) != 0 {
		t.Errorf("chat sync wrote %d contacts", len(contacts))
	}
}

func TestSyncMessagesCountsInsertedAndSkipped(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	seedConnected(t, st, 1)

	contact, err := st.UpsertContact(ctx, &store.Contact{
		UserID:    1,
		WaID:      "5511911112222",
		RemoteJID: "5511911112222@s.whatsapp.net",
	})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	// 5 of the 35 fetched messages are already stored.
	var records []gateway.MessageRecord
	for i := 0; i < 35; i++ {
		records = append(records, textRecord(fmt.Sprintf("MSG%03d", i), contact.RemoteJID, "oi"))
	}
	for i := 0; i < 5; i++ {
		msg, ok := MapMessage(records[i], 1, contact.ID)
		if !ok {
			t.Fatalf("map seed record %d", i)
		}
		if _, err := st.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("seed message %d: %v", i, err)
		}
	}

	gw := newFakeGateway()
	var gotLimit int
	gw.messagesFn = func(_, remoteJID string, limit int) ([]gateway.MessageRecord, error) {
		if remoteJID != contact.RemoteJID {
			t.Errorf("fetch jid = %q", remoteJID)
		}
		gotLimit = limit
		return records, nil
	}
	s := NewSyncer(st, gw, 30)

	result, err := s.SyncMessages(ctx, 1, contact.ID, 50)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if gotLimit != 50 {
		t.Errorf("limit passed = %d, want 50", gotLimit)
	}
	if result.Inserted != 30 || result.Skipped != 5 {
		t.Errorf("inserted/skipped = %d/%d, want 30/5", result.Inserted, result.Skipped)
	}

	stats, err := st.CountStats(ctx, 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 35 {
		t.Errorf("stored messages = %d, want 35", stats.TotalMessages)
	}
}

func TestSyncMessagesDefaultLimit(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	seedConnected(t, st, 1)
	contact, err := st.UpsertContact(ctx, &store.Contact{UserID: 1, WaID: "5511", RemoteJID: "5511@s.whatsapp.net"})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	gw := newFakeGateway()
	var gotLimit int
	gw.messagesFn = func(_, _ string, limit int) ([]gateway.MessageRecord, error) {
		gotLimit = limit
		return nil, nil
	}
	s := NewSyncer(st, gw, 30)

	if _, err := s.SyncMessages(ctx, 1, contact.ID, 0); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if gotLimit != 30 {
		t.Errorf("default limit = %d, want 30", gotLimit)
	}
}

func TestSyncMessagesUnknownContact(t *testing.T) {
	st := storetest.New(t)
	seedConnected(t, st, 1)
	s := NewSyncer(st, newFakeGateway(), 30)

	if _, err := s.SyncMessages(context.Background(), 1, 999, 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestSendTextPassesThrough(t *testing.T) {
	st := storetest.New(t)
	seedConnected(t, st, 1)

	gw := newFakeGateway()
	gw.sendFn = func(name, number, text string) (string, error) {
		if name != "user_1" || number != "5511988887777" || text != "oi" {
			t.Errorf("send args = %q %q %q", name, number, text)
		}
		return "SENT1", nil
	}
	s := NewSyncer(st, gw, 30)

	id, err := s.SendText(context.Background(), 1, "5511988887777", "oi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "SENT1" {
		t.Errorf("id = %q, want SENT1", id)
	}
}

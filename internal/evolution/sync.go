package evolution

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/whatsapp-saas/go-evolution-service/internal/metrics"
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

// Syncer performs user-triggered bulk pulls from the gateway into local
// storage. Every operation requires a connected instance.
type Syncer struct {
	store        *store.Store
	gw           Gateway
	defaultLimit int
}

func NewSyncer(st *store.Store, gw Gateway, defaultLimit int) *Syncer {
	if defaultLimit <= 0 {
		defaultLimit = 30
	}
	return &Syncer{store: st, gw: gw, defaultLimit: defaultLimit}
}

// ChatSummary is a transient chat listing entry; chats are never persisted.
type ChatSummary struct {
	ID              string      `json:"id"`
	Name            string      `json:"name,omitempty"`
	UnreadCount     int         `json:"unread_count"`
	LastMessageTime json.Number `json:"last_message_time,omitempty"`
}

// SyncMessagesResult reports how a message sync went. Skipped rows are
// duplicates already present in storage.
type SyncMessagesResult struct {
	Inserted int `json:"synced_count"`
	Skipped  int `json:"skipped_count"`
}

// SyncContacts pulls the gateway's contact list and upserts each 1:1
// contact. Group and broadcast identities are filtered out. Returns the
// number of contacts synced.
func (s *Syncer) SyncContacts(ctx context.Context, userID int64) (int, error) {
	inst, err := s.connectedInstance(ctx, userID)
	if err != nil {
		return 0, err
	}

	records, err := s.gw.FetchContacts(ctx, inst.InstanceName)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, rec := range records {
		jid := rec.ID
		if jid == "" {
			jid = rec.RemoteJID
		}
		if jid == "" || IsGroupJID(jid) || IsBroadcastJID(jid) {
			continue
		}

		candidate := &store.Contact{
			UserID:    userID,
			WaID:      PhoneFromJID(jid),
			RemoteJID: jid,
		}
		if name := firstNonEmpty(rec.Name, rec.PushName); name != "" {
			candidate.Name = &name
		}
		if rec.PushName != "" {
			push := rec.PushName
			candidate.ProfileName = &push
		}

		if _, err := s.store.UpsertContact(ctx, candidate); err != nil {
			// Contacts already upserted stand; the sync is re-runnable.
			return synced, err
		}
		synced++
	}

	log.Info().
		Int64("user_id", userID).
		Int("synced", synced).
		Int("fetched", len(records)).
		Msg("Contact sync completed")

	return synced, nil
}

// SyncChats returns the gateway's chat list filtered down to 1:1 chats.
// Nothing is persisted.
func (s *Syncer) SyncChats(ctx context.Context, userID int64) ([]ChatSummary, error) {
	inst, err := s.connectedInstance(ctx, userID)
	if err != nil {
		return nil, err
	}

	records, err := s.gw.FetchChats(ctx, inst.InstanceName)
	if err != nil {
		return nil, err
	}

	chats := make([]ChatSummary, 0, len(records))
	for _, rec := range records {
		jid := rec.ID
		if jid == "" {
			jid = rec.RemoteJID
		}
		if jid == "" || IsGroupJID(jid) || IsBroadcastJID(jid) {
			continue
		}
		chats = append(chats, ChatSummary{
			ID:              jid,
			Name:            firstNonEmpty(rec.Name, rec.PushName),
			UnreadCount:     rec.UnreadCount,
			LastMessageTime: rec.LastMessageTime,
		})
	}
	return chats, nil
}

// SyncMessages pulls up to limit messages of the contact's chat and
// upserts them. limit <= 0 selects the configured default. Each message is
// its own upsert, so a failure partway leaves prior rows intact and a
// retry resumes cleanly.
func (s *Syncer) SyncMessages(ctx context.Context, userID, contactID int64, limit int) (*SyncMessagesResult, error) {
	inst, err := s.connectedInstance(ctx, userID)
	if err != nil {
		return nil, err
	}

	contact, err := s.store.ContactByID(ctx, userID, contactID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.defaultLimit
	}

	records, err := s.gw.FetchMessages(ctx, inst.InstanceName, contact.RemoteJID, limit)
	if err != nil {
		return nil, err
	}

	result := &SyncMessagesResult{}
	for _, rec := range records {
		msg, ok := MapMessage(rec, userID, contact.ID)
		if !ok {
			continue
		}

		inserted, err := s.store.InsertMessage(ctx, msg)
		if err != nil {
			return result, err
		}
		if inserted {
			result.Inserted++
			metrics.MessagesSynced.WithLabelValues("inserted").Inc()
		} else {
			result.Skipped++
			metrics.MessagesSynced.WithLabelValues("duplicate").Inc()
		}
	}

	log.Info().
		Int64("user_id", userID).
		Int64("contact_id", contactID).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Msg("Message sync completed")

	return result, nil
}

// SendText sends a message through the connected instance and returns the
// gateway message id.
func (s *Syncer) SendText(ctx context.Context, userID int64, number, text string) (string, error) {
	inst, err := s.connectedInstance(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.gw.SendText(ctx, inst.InstanceName, number, text)
}

// connectedInstance gates sync operations: no gateway call is made unless
// the stored status is connected.
func (s *Syncer) connectedInstance(ctx context.Context, userID int64) (*store.Instance, error) {
	inst, err := s.store.InstanceByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, err
	}
	if inst.Status != string(StatusConnected) {
		return nil, ErrNotConnected
	}
	return inst, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package evolution

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/whatsapp-saas/go-evolution-service/internal/gateway"
	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

// IsGroupJID reports whether the gateway identifier names a group chat.
// Group JIDs carry the @g.us suffix; only 1:1 chats are synced.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// IsBroadcastJID reports status/broadcast pseudo-chats.
func IsBroadcastJID(jid string) bool {
	return strings.Contains(jid, "@broadcast")
}

// PhoneFromJID extracts the phone number part of a WhatsApp JID
// (1234567890@s.whatsapp.net -> 1234567890).
func PhoneFromJID(jid string) string {
	if i := strings.Index(jid, "@"); i >= 0 {
		return jid[:i]
	}
	return jid
}

type textVariant struct {
	Text string `json:"text"`
}

type mediaVariant struct {
	Caption  string `json:"caption"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// MapMessage converts a gateway message record into the canonical stored
// shape. Returns false when the record carries no message key id, which
// makes it unstorable (no dedup identity).
func MapMessage(rec gateway.MessageRecord, userID, contactID int64) (*store.Message, bool) {
	if rec.Key.ID == "" {
		log.Warn().
			Str("remote_jid", rec.Key.RemoteJID).
			Msg("Message without key id, skipping")
		return nil, false
	}

	msgType := "unknown"
	var content, mediaURL *string

	switch {
	case rec.Message == nil:
		// Key-only records (revocations, reactions) have no payload.
	case hasVariant(rec.Message, "conversation"):
		msgType = "text"
		var text string
		if err := json.Unmarshal(rec.Message["conversation"], &text); err == nil && text != "" {
			content = &text
		}
	case hasVariant(rec.Message, "extendedTextMessage"):
		msgType = "text"
		var v textVariant
		if err := json.Unmarshal(rec.Message["extendedTextMessage"], &v); err == nil && v.Text != "" {
			content = &v.Text
		}
	case hasVariant(rec.Message, "imageMessage"):
		msgType = "image"
		content, mediaURL = mediaFields(rec.Message["imageMessage"])
	case hasVariant(rec.Message, "videoMessage"):
		msgType = "video"
		content, mediaURL = mediaFields(rec.Message["videoMessage"])
	case hasVariant(rec.Message, "audioMessage"):
		msgType = "audio"
		_, mediaURL = mediaFields(rec.Message["audioMessage"])
	case hasVariant(rec.Message, "documentMessage"):
		msgType = "document"
		var v mediaVariant
		if err := json.Unmarshal(rec.Message["documentMessage"], &v); err == nil {
			if v.FileName != "" {
				content = &v.FileName
			}
			if v.URL != "" {
				mediaURL = &v.URL
			}
		}
	case hasVariant(rec.Message, "stickerMessage"):
		msgType = "sticker"
	default:
		if raw, err := json.Marshal(rec.Message); err == nil {
			snippet := string(raw)
			if len(snippet) > 500 {
				snippet = snippet[:500]
			}
			content = &snippet
		}
	}

	var sentAt *time.Time
	if ts, err := rec.MessageTimestamp.Int64(); err == nil && ts > 0 {
		t := time.Unix(ts, 0).UTC()
		sentAt = &t
	}

	status := "received"
	if rec.Key.FromMe {
		status = "sent"
	}

	raw, _ := json.Marshal(rec)

	return &store.Message{
		UserID:      userID,
		ContactID:   contactID,
		ExternalID:  rec.Key.ID,
		Source:      store.SourceEvolution,
		MessageType: msgType,
		Content:     content,
		MediaURL:    mediaURL,
		IsOutbound:  rec.Key.FromMe,
		Status:      status,
		SentAt:      sentAt,
		RawData:     raw,
	}, true
}

func hasVariant(m map[string]json.RawMessage, key string) bool {
	v, ok := m[key]
	return ok && len(v) > 0 && string(v) != "null"
}

func mediaFields(raw json.RawMessage) (content, mediaURL *string) {
	var v mediaVariant
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil
	}
	if v.Caption != "" {
		content = &v.Caption
	}
	if v.URL != "" {
		mediaURL = &v.URL
	}
	return content, mediaURL
}

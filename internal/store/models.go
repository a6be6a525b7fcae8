package store

import "time"

// Instance is one user's gateway-managed WhatsApp connection session.
// Exactly one row exists per user; the row is never hard-deleted.
type Instance struct {
	ID              int64
	UserID          int64
	InstanceName    string
	Status          string
	QRCode          *string
	QRCodeUpdatedAt *time.Time
	PhoneNumber     *string
	ProfileName     *string
	LastConnectedAt *time.Time
	RawData         []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Contact is a 1:1 chat partner, keyed by (user_id, remote_jid).
type Contact struct {
	ID          int64
	UserID      int64
	WaID        string
	RemoteJID   string
	Name        *string
	ProfileName *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is an immutable stored message. ExternalID is the gateway-issued
// key id and carries the dedup constraint.
type Message struct {
	ID          int64
	UserID      int64
	ContactID   int64
	ExternalID  string
	Source      string
	MessageType string
	Content     *string
	MediaURL    *string
	IsOutbound  bool
	Status      string
	SentAt      *time.Time
	RawData     []byte
	CreatedAt   time.Time
}

const (
	SourceEvolution = "evolution_api"
	SourceCloudAPI  = "cloud_api"
)

// Stats summarizes one user's stored data for the dashboard.
type Stats struct {
	TotalMessages    int64
	InboundMessages  int64
	OutboundMessages int64
	TotalContacts    int64
}

package evolution

import (
	"context"
	"encoding/json"

	"github.com/whatsapp-saas/go-evolution-service/internal/gateway"
)

// Gateway is the slice of the Evolution client consumed by the reconciler
// and sync engine. *gateway.Client implements it; tests substitute fakes.
type Gateway interface {
	CreateInstance(ctx context.Context, instanceName string) (json.RawMessage, error)
	ConnectInstance(ctx context.Context, instanceName string) (*gateway.ConnectResult, error)
	ConnectionState(ctx context.Context, instanceName string) (*gateway.StateResult, error)
	FetchQRCode(ctx context.Context, instanceName string) (*gateway.ConnectResult, error)
	LogoutInstance(ctx context.Context, instanceName string) error
	DeleteInstance(ctx context.Context, instanceName string) error
	FetchContacts(ctx context.Context, instanceName string) ([]gateway.ContactRecord, error)
	FetchChats(ctx context.Context, instanceName string) ([]gateway.ChatRecord, error)
	FetchMessages(ctx context.Context, instanceName, remoteJID string, limit int) ([]gateway.MessageRecord, error)
	SendText(ctx context.Context, instanceName, number, text string) (string, error)
}

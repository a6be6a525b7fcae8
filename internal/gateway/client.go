package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/whatsapp-saas/go-evolution-service/internal/metrics"
)

// Client is a stateless wrapper over the Evolution API. All operations are
// single request/response calls with a bounded timeout; retry policy belongs
// to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type MessageKey struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// MessageRecord is one message as the gateway reports it, either from a
// history fetch or a messages.upsert webhook. Message holds the variant
// payloads keyed by type (conversation, imageMessage, ...).
type MessageRecord struct {
	Key              MessageKey                 `json:"key"`
	PushName         string                     `json:"pushName"`
	Message          map[string]json.RawMessage `json:"message"`
	MessageTimestamp json.Number                `json:"messageTimestamp"`
	Status           string                     `json:"status"`
}

type ContactRecord struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	Name      string `json:"name"`
	PushName  string `json:"pushName"`
}

type ChatRecord struct {
	ID              string      `json:"id"`
	RemoteJID       string      `json:"remoteJid"`
	Name            string      `json:"name"`
	PushName        string      `json:"pushName"`
	UnreadCount     int         `json:"unreadCount"`
	LastMessageTime json.Number `json:"lastMessageTime"`
}

// ConnectResult is the pairing payload returned by instance connect and
// qrcode fetches. Base64 is a rendered QR image; Code is the raw pairing
// string some gateway versions return instead.
type ConnectResult struct {
	PairingCode string `json:"pairingCode"`
	Code        string `json:"code"`
	Base64      string `json:"base64"`
}

type stateResponse struct {
	State    string `json:"state"`
	Instance struct {
		InstanceName string `json:"instanceName"`
		State        string `json:"state"`
		Owner        string `json:"owner"`
		ProfileName  string `json:"profileName"`
	} `json:"instance"`
}

// StateResult is the connection state of one instance as reported by the
// gateway, along with profile details when the gateway includes them.
type StateResult struct {
	State       string
	Owner       string
	ProfileName string
	Raw         json.RawMessage
}

type sendResponse struct {
	Key MessageKey `json:"key"`
}

// CreateInstance registers a new instance at the gateway. The raw response
// is returned for diagnostics storage.
func (c *Client) CreateInstance(ctx context.Context, instanceName string) (json.RawMessage, error) {
	body := map[string]interface{}{
		"instanceName": instanceName,
		"qrcode":       true,
		"integration":  "WHATSAPP-BAILEYS",
	}
	var raw json.RawMessage
	if err := c.request(ctx, "create-instance", http.MethodPost, "/instance/create", body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ConnectInstance asks the gateway to open the WhatsApp session, which
// triggers QR generation for unpaired instances.
func (c *Client) ConnectInstance(ctx context.Context, instanceName string) (*ConnectResult, error) {
	var result ConnectResult
	if err := c.request(ctx, "connect-instance", http.MethodPost, "/instance/connect/"+instanceName, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConnectionState returns the gateway's connection state vocabulary
// (open, connecting, close) for the instance.
func (c *Client) ConnectionState(ctx context.Context, instanceName string) (*StateResult, error) {
	var raw json.RawMessage
	if err := c.request(ctx, "connection-state", http.MethodGet, "/instance/connectionState/"+instanceName, nil, &raw); err != nil {
		return nil, err
	}

	var resp stateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &APIError{Op: "connection-state", cause: fmt.Errorf("decode state: %w", err)}
	}

	// Evolution v1 reports state at the top level, v2 nests it.
	state := resp.State
	if state == "" {
		state = resp.Instance.State
	}

	return &StateResult{
		State:       state,
		Owner:       resp.Instance.Owner,
		ProfileName: resp.Instance.ProfileName,
		Raw:         raw,
	}, nil
}

// FetchQRCode returns the current pairing payload for the instance.
func (c *Client) FetchQRCode(ctx context.Context, instanceName string) (*ConnectResult, error) {
	var result ConnectResult
	if err := c.request(ctx, "fetch-qrcode", http.MethodGet, "/instance/qrcode/"+instanceName, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LogoutInstance closes the WhatsApp session at the gateway.
func (c *Client) LogoutInstance(ctx context.Context, instanceName string) error {
	return c.request(ctx, "logout-instance", http.MethodDelete, "/instance/logout/"+instanceName, nil, nil)
}

// DeleteInstance removes the instance from the gateway entirely.
func (c *Client) DeleteInstance(ctx context.Context, instanceName string) error {
	return c.request(ctx, "delete-instance", http.MethodDelete, "/instance/delete/"+instanceName, nil, nil)
}

// FetchContacts lists every contact the gateway knows for the instance.
func (c *Client) FetchContacts(ctx context.Context, instanceName string) ([]ContactRecord, error) {
	var raw json.RawMessage
	if err := c.request(ctx, "fetch-contacts", http.MethodGet, "/chat/findContacts/"+instanceName, nil, &raw); err != nil {
		return nil, err
	}

	var contacts []ContactRecord
	if err := json.Unmarshal(raw, &contacts); err == nil {
		return contacts, nil
	}

	// Some gateway versions wrap the list.
	var wrapped struct {
		Contacts []ContactRecord `json:"contacts"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &APIError{Op: "fetch-contacts", cause: fmt.Errorf("decode contacts: %w", err)}
	}
	return wrapped.Contacts, nil
}

// FetchChats lists chat summaries for the instance.
func (c *Client) FetchChats(ctx context.Context, instanceName string) ([]ChatRecord, error) {
	var raw json.RawMessage
	if err := c.request(ctx, "fetch-chats", http.MethodGet, "/chat/findChats/"+instanceName, nil, &raw); err != nil {
		return nil, err
	}

	var chats []ChatRecord
	if err := json.Unmarshal(raw, &chats); err == nil {
		return chats, nil
	}

	var wrapped struct {
		Chats []ChatRecord `json:"chats"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &APIError{Op: "fetch-chats", cause: fmt.Errorf("decode chats: %w", err)}
	}
	return wrapped.Chats, nil
}

// FetchMessages returns up to limit messages of the chat identified by
// remoteJID, newest first as the gateway orders them.
func (c *Client) FetchMessages(ctx context.Context, instanceName, remoteJID string, limit int) ([]MessageRecord, error) {
	body := map[string]interface{}{
		"where": map[string]interface{}{
			"key": map[string]interface{}{
				"remoteJid": remoteJID,
			},
		},
		"limit": limit,
	}

	var raw json.RawMessage
	if err := c.request(ctx, "fetch-messages", http.MethodPost, "/chat/findMessages/"+instanceName, body, &raw); err != nil {
		return nil, err
	}

	var messages []MessageRecord
	if err := json.Unmarshal(raw, &messages); err == nil {
		return messages, nil
	}

	var wrapped struct {
		Messages []MessageRecord `json:"messages"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &APIError{Op: "fetch-messages", cause: fmt.Errorf("decode messages: %w", err)}
	}
	return wrapped.Messages, nil
}

// SendText sends a plain text message and returns the gateway-issued
// message key id.
func (c *Client) SendText(ctx context.Context, instanceName, number, text string) (string, error) {
	body := map[string]interface{}{
		"number": number,
		"text":   text,
	}
	var resp sendResponse
	if err := c.request(ctx, "send-text", http.MethodPost, "/message/sendText/"+instanceName, body, &resp); err != nil {
		return "", err
	}
	return resp.Key.ID, nil
}

func (c *Client) request(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &APIError{Op: op, cause: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &APIError{Op: op, cause: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(op, "unavailable").Inc()
		log.Error().Err(err).Str("operation", op).Msg("Evolution API unreachable")
		return &APIError{Op: op, cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(op, "unavailable").Inc()
		return &APIError{Op: op, cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Body: string(data)}
		outcome := "rejected"
		switch apiErr.Kind() {
		case KindUnavailable:
			outcome = "unavailable"
		case KindAuthFailed:
			outcome = "auth_failed"
		}
		metrics.GatewayRequests.WithLabelValues(op, outcome).Inc()

		log.Warn().
			Str("operation", op).
			Int("status", resp.StatusCode).
			Msg("Evolution API request failed")
		return apiErr
	}

	metrics.GatewayRequests.WithLabelValues(op, "ok").Inc()

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{Op: op, cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

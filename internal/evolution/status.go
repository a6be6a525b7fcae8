package evolution

import "fmt"

// Status is the canonical connection state of a user's instance. Every
// gateway-reported state maps onto exactly one of these four values.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusQR           Status = "qr"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// StatusFromGatewayState maps the gateway's connection vocabulary
// (open, connecting, close) to a canonical status. Unknown states read as
// disconnected so the machine never leaves the canonical set. Both the
// poller and the webhook ingestor go through this table.
func StatusFromGatewayState(state string) Status {
	switch state {
	case "open":
		return StatusConnected
	case "connecting":
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}

// InstanceName derives the deterministic gateway instance name for a user.
func InstanceName(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

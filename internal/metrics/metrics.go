package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequests counts outbound Evolution API calls by operation and outcome.
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Outbound Evolution API requests",
	}, []string{"operation", "outcome"})

	// WebhookEvents counts inbound webhook events by type and how they were handled.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound Evolution webhook events",
	}, []string{"event", "outcome"})

	// MessagesSynced counts message upserts split by dedup result.
	MessagesSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_synced_total",
		Help: "Message upserts by result (inserted or duplicate)",
	}, []string{"result"})

	// InstanceTransitions counts instance status writes by resulting status.
	InstanceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instance_transitions_total",
		Help: "Instance status transitions by new status",
	}, []string{"status"})
)

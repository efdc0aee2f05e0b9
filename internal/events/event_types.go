package events

import (
	"time"

	"github.com/spec-kit/supporthub/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketReopened     EventType = "ticket_reopened"
	EventTicketMessageAdded EventType = "ticket_message_added"
	EventTicketRouted       EventType = "ticket_routed"
	EventSlaBreached        EventType = "sla_breached"
	EventSlaWarning         EventType = "sla_warning"
)

// Event represents a domain event emitted by the pipelines.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TenantID  string      `json:"tenant_id"`
	TicketID  string      `json:"ticket_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket  domain.Ticket  `json:"ticket"`
	Mailbox domain.Mailbox `json:"mailbox"`
}

// TicketReopenedPayload payload.
type TicketReopenedPayload struct {
	Number         string              `json:"number"`
	PreviousStatus domain.TicketStatus `json:"previous_status"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string                  `json:"message_id"`
	Direction   domain.MessageDirection `json:"direction"`
	BodyPreview string                  `json:"body_preview"`
}

// RoutingState is the slice of a ticket routing may change.
type RoutingState struct {
	QueueID  *string               `json:"queue_id,omitempty"`
	AgentID  *string               `json:"agent_id,omitempty"`
	Priority domain.TicketPriority `json:"priority"`
	Tags     []string              `json:"tags"`
}

// TicketRoutedPayload payload.
type TicketRoutedPayload struct {
	RuleID   string       `json:"rule_id,omitempty"`
	Fallback bool         `json:"fallback"`
	Changed  bool         `json:"changed"`
	Old      RoutingState `json:"old"`
	New      RoutingState `json:"new"`
}

// SlaBreachedPayload payload.
type SlaBreachedPayload struct {
	Ticket     domain.Ticket     `json:"ticket"`
	Kind       domain.BreachKind `json:"kind"`
	DetectedAt time.Time         `json:"detected_at"`
}

// SlaWarningPayload payload.
type SlaWarningPayload struct {
	Ticket           domain.Ticket     `json:"ticket"`
	Kind             domain.BreachKind `json:"kind"`
	Tier             string            `json:"tier"`
	MinutesRemaining int               `json:"minutes_remaining"`
}

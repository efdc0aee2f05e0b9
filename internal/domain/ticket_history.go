package domain

import "time"

// AuditAction captures what the pipeline changed.
type AuditAction string

const (
	AuditActionRoutingApplied    AuditAction = "ROUTING_APPLIED"
	AuditActionSlaBreachRecorded AuditAction = "SLA_BREACH_RECORDED"
)

// ActorSystem is the actor recorded for pipeline-originated changes.
const ActorSystem = "SYSTEM"

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         string
	TenantID   string
	TicketID   string
	Actor      string
	Action     AuditAction
	OldValue   map[string]any
	NewValue   map[string]any
	OccurredAt time.Time
}

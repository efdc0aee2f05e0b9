package domain

import "time"

// InboundOutcome tags what happened to an external message.
type InboundOutcome string

const (
	InboundOutcomeCreated  InboundOutcome = "created"
	InboundOutcomeAppended InboundOutcome = "appended"
	InboundOutcomeSkipped  InboundOutcome = "skipped"
	InboundOutcomeFailed   InboundOutcome = "failed"
)

// Reasons attached to skipped and failed outcomes.
const (
	InboundReasonDuplicate     = "duplicate"
	InboundReasonIgnoredSender = "ignored_sender"
	InboundReasonMailLoop      = "mail_loop"
)

// InboundMessageRecord is the append-only ingestion log and dedup index.
// (TenantID, ExternalMessageID) is unique.
type InboundMessageRecord struct {
	ID                string
	TenantID          string
	MailboxID         string
	ExternalMessageID string
	TicketID          *string
	Outcome           InboundOutcome
	Reason            string
	ProcessedAt       time.Time
}

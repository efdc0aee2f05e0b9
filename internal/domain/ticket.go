package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew               TicketStatus = "NEW"
	TicketStatusOpen              TicketStatus = "OPEN"
	TicketStatusInProgress        TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingOnCustomer TicketStatus = "WAITING_ON_CUSTOMER"
	TicketStatusWaitingOnAgent    TicketStatus = "WAITING_ON_AGENT"
	// TicketStatusOnHold is reserved for paused SLA clocks.
	TicketStatusOnHold   TicketStatus = "ON_HOLD"
	TicketStatusResolved TicketStatus = "RESOLVED"
	TicketStatusClosed   TicketStatus = "CLOSED"
)

// IsTerminal reports whether the status carries resolved/closed timestamps.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// TicketSource records the intake channel.
type TicketSource string

const (
	TicketSourceWebForm TicketSource = "WEB_FORM"
	TicketSourceEmail   TicketSource = "EMAIL"
	TicketSourceAPI     TicketSource = "API"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              string
	TenantID        string
	Number          string
	Subject         string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	Source          TicketSource
	RequesterEmail  string
	RequesterName   string
	IssueType       string
	System          string
	AssignedAgentID *string
	AssignedQueueID *string
	Tags            []string
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	// SlaPausedAt and SlaPausedDuration are reserved for business-hours clocks.
	SlaPausedAt       *time.Time
	SlaPausedDuration time.Duration
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
	Version           int64
}

// IsLive reports whether the ticket has not been soft-deleted.
func (t *Ticket) IsLive() bool {
	return t.DeletedAt == nil
}

// IsOpen reports whether SLA clocks should still be tracked.
func (t *Ticket) IsOpen() bool {
	return t.IsLive() && !t.Status.IsTerminal()
}

// HasTag reports whether tag is present, ignoring case.
func (t *Ticket) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, existing := range t.Tags {
		if strings.EqualFold(existing, tag) {
			return true
		}
	}
	return false
}

// AddTags merges tags into the ticket, skipping blanks and case-insensitive duplicates.
// It returns the tags that were actually added.
func (t *Ticket) AddTags(tags ...string) []string {
	var added []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || t.HasTag(tag) {
			continue
		}
		t.Tags = append(t.Tags, tag)
		added = append(added, tag)
	}
	return added
}

// Reopen moves a resolved or closed ticket back to OPEN and clears its terminal timestamps.
func (t *Ticket) Reopen() bool {
	if !t.Status.IsTerminal() {
		return false
	}
	t.Status = TicketStatusOpen
	t.ResolvedAt = nil
	t.ClosedAt = nil
	return true
}

// ApplyCustomerReply performs the status transition caused by an inbound customer message.
// It returns the previous status and whether anything changed.
func (t *Ticket) ApplyCustomerReply() (TicketStatus, bool) {
	previous := t.Status
	switch {
	case t.Status.IsTerminal():
		return previous, t.Reopen()
	case t.Status == TicketStatusWaitingOnCustomer:
		t.Status = TicketStatusWaitingOnAgent
		return previous, true
	}
	return previous, false
}

// RecordFirstResponse stamps the first-response clock once.
func (t *Ticket) RecordFirstResponse(at time.Time) bool {
	if t.FirstResponseAt != nil {
		return false
	}
	at = at.UTC()
	t.FirstResponseAt = &at
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	c.AssignedAgentID = cloneString(t.AssignedAgentID)
	c.AssignedQueueID = cloneString(t.AssignedQueueID)
	c.FirstResponseAt = cloneTime(t.FirstResponseAt)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	c.SlaPausedAt = cloneTime(t.SlaPausedAt)
	c.DeletedAt = cloneTime(t.DeletedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

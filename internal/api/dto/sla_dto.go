package dto

import (
	"time"

	"github.com/spec-kit/supporthub/internal/domain"
)

// SlaPolicyRequest sets the targets of one priority.
type SlaPolicyRequest struct {
	FirstResponseMinutes int `json:"first_response_minutes"`
	ResolutionMinutes    int `json:"resolution_minutes"`
}

// SlaPolicyResponse is a stored policy.
type SlaPolicyResponse struct {
	ID                   string                `json:"id"`
	Priority             domain.TicketPriority `json:"priority"`
	FirstResponseMinutes int                   `json:"first_response_minutes"`
	ResolutionMinutes    int                   `json:"resolution_minutes"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// SlaClockResponse is the state of one clock.
type SlaClockResponse struct {
	Kind             domain.BreachKind `json:"kind"`
	Tier             string            `json:"tier"`
	TargetMinutes    int               `json:"target_minutes"`
	ElapsedMinutes   int               `json:"elapsed_minutes"`
	MinutesRemaining int               `json:"minutes_remaining"`
	PercentRemaining float64           `json:"percent_remaining"`
	MetAt            *time.Time        `json:"met_at,omitempty"`
}

// SlaBreachResponse is a recorded breach.
type SlaBreachResponse struct {
	Kind       domain.BreachKind `json:"kind"`
	DetectedAt time.Time         `json:"detected_at"`
}

// TicketSlaResponse is the SLA view of a ticket.
type TicketSlaResponse struct {
	TicketID      string                `json:"ticket_id"`
	Number        string                `json:"number"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	HasPolicy     bool                  `json:"has_policy"`
	Worst         string                `json:"worst"`
	FirstResponse SlaClockResponse      `json:"first_response"`
	Resolution    SlaClockResponse      `json:"resolution"`
	Breaches      []SlaBreachResponse   `json:"breaches"`
	EvaluatedAt   time.Time             `json:"evaluated_at"`
}

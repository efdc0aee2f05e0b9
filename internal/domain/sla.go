package domain

import (
	"errors"
	"time"
)

// BreachKind names the SLA clock.
type BreachKind string

const (
	BreachKindFirstResponse BreachKind = "FIRST_RESPONSE"
	BreachKindResolution    BreachKind = "RESOLUTION"
)

// SlaPolicy holds targets for one (tenant, priority) pair.
type SlaPolicy struct {
	ID                   string
	TenantID             string
	Priority             TicketPriority
	FirstResponseMinutes int
	ResolutionMinutes    int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Target returns the configured duration for the clock.
func (p *SlaPolicy) Target(kind BreachKind) time.Duration {
	if kind == BreachKindFirstResponse {
		return time.Duration(p.FirstResponseMinutes) * time.Minute
	}
	return time.Duration(p.ResolutionMinutes) * time.Minute
}

// Validate checks the policy targets.
func (p *SlaPolicy) Validate() error {
	if !p.Priority.Valid() {
		return errors.New("invalid priority")
	}
	if p.FirstResponseMinutes <= 0 || p.ResolutionMinutes <= 0 {
		return errors.New("targets must be positive")
	}
	if p.ResolutionMinutes < p.FirstResponseMinutes {
		return errors.New("resolution target must not be shorter than first-response target")
	}
	return nil
}

// SlaBreachRecord is append-only; (TicketID, Kind) is unique.
type SlaBreachRecord struct {
	ID         string
	TenantID   string
	TicketID   string
	Kind       BreachKind
	DetectedAt time.Time
}

// SlaWarningRecord is append-only; (TicketID, Kind) is unique.
type SlaWarningRecord struct {
	ID               string
	TenantID         string
	TicketID         string
	Kind             BreachKind
	MinutesRemaining int
	DetectedAt       time.Time
}

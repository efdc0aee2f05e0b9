// Package sla computes SLA clock state for a ticket against its tenant policy.
// Everything here is pure; persistence and dispatch live in the monitor worker.
package sla

import (
	"time"

	"github.com/spec-kit/supporthub/internal/domain"
)

// Tier is the urgency classification of one clock.
type Tier string

const (
	TierNone     Tier = "NONE"
	TierMet      Tier = "MET"
	TierOnTrack  Tier = "ON_TRACK"
	TierWarning  Tier = "WARNING"
	TierCritical Tier = "CRITICAL"
	TierBreached Tier = "BREACHED"
)

func (t Tier) rank() int {
	switch t {
	case TierOnTrack:
		return 1
	case TierWarning:
		return 2
	case TierCritical:
		return 3
	case TierBreached:
		return 4
	default:
		return 0
	}
}

// ClockStatus is the state of a single clock at evaluation time.
type ClockStatus struct {
	Kind             domain.BreachKind
	Target           time.Duration
	Elapsed          time.Duration
	Remaining        time.Duration
	PercentRemaining float64
	Tier             Tier
	// MetAt is set once the clock stopped; Elapsed is then frozen.
	MetAt *time.Time
}

// Met reports whether the clock has stopped.
func (c ClockStatus) Met() bool {
	return c.MetAt != nil
}

// MetWithinTarget reports whether a stopped clock stopped in time.
func (c ClockStatus) MetWithinTarget() bool {
	return c.MetAt != nil && c.Elapsed <= c.Target
}

// MinutesRemaining rounds the remaining time down to whole minutes.
func (c ClockStatus) MinutesRemaining() int {
	return int(c.Remaining / time.Minute)
}

// Status is the evaluation of both clocks. Without a policy both clocks carry TierNone.
type Status struct {
	TicketID      string
	PolicyID      string
	HasPolicy     bool
	FirstResponse ClockStatus
	Resolution    ClockStatus
	EvaluatedAt   time.Time
}

// Clocks returns both clocks in a fixed order.
func (s Status) Clocks() []ClockStatus {
	return []ClockStatus{s.FirstResponse, s.Resolution}
}

// Worst returns the most urgent tier among running clocks.
func (s Status) Worst() Tier {
	if !s.HasPolicy {
		return TierNone
	}
	worst := TierMet
	for _, c := range s.Clocks() {
		if c.Tier.rank() > worst.rank() {
			worst = c.Tier
		}
	}
	return worst
}

// Evaluate computes both clocks. A nil policy yields a no-policy status.
func Evaluate(ticket *domain.Ticket, policy *domain.SlaPolicy, now time.Time) Status {
	status := Status{TicketID: ticket.ID, EvaluatedAt: now}
	if policy == nil {
		status.FirstResponse = ClockStatus{Kind: domain.BreachKindFirstResponse, Tier: TierNone}
		status.Resolution = ClockStatus{Kind: domain.BreachKindResolution, Tier: TierNone}
		return status
	}

	status.HasPolicy = true
	status.PolicyID = policy.ID

	resolvedAt := ticket.ResolvedAt
	if resolvedAt == nil {
		resolvedAt = ticket.ClosedAt
	}
	paused := pausedDuration(ticket, now)
	status.FirstResponse = evaluateClock(domain.BreachKindFirstResponse, policy.Target(domain.BreachKindFirstResponse), ticket.CreatedAt, ticket.FirstResponseAt, paused, now)
	status.Resolution = evaluateClock(domain.BreachKindResolution, policy.Target(domain.BreachKindResolution), ticket.CreatedAt, resolvedAt, paused, now)
	return status
}

func evaluateClock(kind domain.BreachKind, target time.Duration, created time.Time, stoppedAt *time.Time, paused time.Duration, now time.Time) ClockStatus {
	clock := ClockStatus{Kind: kind, Target: target}

	if stoppedAt != nil {
		at := *stoppedAt
		clock.MetAt = &at
		clock.Elapsed = nonNegative(at.Sub(created))
		clock.Remaining = target - clock.Elapsed
		clock.PercentRemaining = percent(clock.Remaining, target)
		clock.Tier = TierMet
		return clock
	}

	clock.Elapsed = nonNegative(now.Sub(created) - paused)
	clock.Remaining = target - clock.Elapsed
	clock.PercentRemaining = percent(clock.Remaining, target)
	clock.Tier = tierFor(clock.PercentRemaining)
	return clock
}

// tierFor maps percentage remaining to a tier; 25 and 50 both fall in WARNING.
func tierFor(pct float64) Tier {
	switch {
	case pct <= 0:
		return TierBreached
	case pct < 25:
		return TierCritical
	case pct <= 50:
		return TierWarning
	default:
		return TierOnTrack
	}
}

// pausedDuration is the accumulated pause plus the pause still in progress.
func pausedDuration(ticket *domain.Ticket, now time.Time) time.Duration {
	paused := ticket.SlaPausedDuration
	if ticket.SlaPausedAt != nil && now.After(*ticket.SlaPausedAt) {
		paused += now.Sub(*ticket.SlaPausedAt)
	}
	return paused
}

func percent(remaining, target time.Duration) float64 {
	if target <= 0 {
		return 0
	}
	return float64(remaining) / float64(target) * 100
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// PolicyFor picks the policy matching priority, or nil.
func PolicyFor(policies []domain.SlaPolicy, priority domain.TicketPriority) *domain.SlaPolicy {
	for i := range policies {
		if policies[i].Priority == priority {
			return &policies[i]
		}
	}
	return nil
}

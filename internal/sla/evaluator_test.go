package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/supporthub/internal/domain"
)

var created = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func highPolicy() *domain.SlaPolicy {
	return &domain.SlaPolicy{ID: "p-high", TenantID: "acme", Priority: domain.TicketPriorityHigh, FirstResponseMinutes: 60, ResolutionMinutes: 480}
}

func openTicket() *domain.Ticket {
	return &domain.Ticket{ID: "t1", TenantID: "acme", Priority: domain.TicketPriorityHigh, Status: domain.TicketStatusOpen, CreatedAt: created}
}

func TestEvaluateFirstResponseTiers(t *testing.T) {
	cases := []struct {
		after time.Duration
		tier  Tier
	}{
		{10 * time.Minute, TierOnTrack},
		{30 * time.Minute, TierWarning},
		{45 * time.Minute, TierWarning},
		{50 * time.Minute, TierCritical},
		{60 * time.Minute, TierBreached},
		{61 * time.Minute, TierBreached},
	}
	for _, tc := range cases {
		status := Evaluate(openTicket(), highPolicy(), created.Add(tc.after))
		assert.Equal(t, tc.tier, status.FirstResponse.Tier, "after %s", tc.after)
	}
}

func TestEvaluateExactTargetIsBreached(t *testing.T) {
	status := Evaluate(openTicket(), highPolicy(), created.Add(time.Hour))

	fr := status.FirstResponse
	assert.Equal(t, TierBreached, fr.Tier)
	assert.LessOrEqual(t, fr.Remaining, time.Duration(0))
	assert.Equal(t, time.Hour, fr.Elapsed)
}

func TestEvaluateCriticalAtFiftyMinutes(t *testing.T) {
	status := Evaluate(openTicket(), highPolicy(), created.Add(50*time.Minute))

	assert.Equal(t, TierCritical, status.FirstResponse.Tier)
	assert.Equal(t, 10, status.FirstResponse.MinutesRemaining())
	assert.InDelta(t, 16.67, status.FirstResponse.PercentRemaining, 0.01)
	assert.Equal(t, TierOnTrack, status.Resolution.Tier)
	assert.Equal(t, TierCritical, status.Worst())
}

func TestEvaluateMetClocksStopTracking(t *testing.T) {
	ticket := openTicket()
	responded := created.Add(20 * time.Minute)
	resolved := created.Add(10 * time.Hour)
	ticket.FirstResponseAt = &responded
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = &resolved

	status := Evaluate(ticket, highPolicy(), created.Add(48*time.Hour))

	require.True(t, status.FirstResponse.Met())
	assert.Equal(t, TierMet, status.FirstResponse.Tier)
	assert.True(t, status.FirstResponse.MetWithinTarget())
	assert.Equal(t, 20*time.Minute, status.FirstResponse.Elapsed)

	require.True(t, status.Resolution.Met())
	assert.False(t, status.Resolution.MetWithinTarget())
	assert.Equal(t, TierMet, status.Worst())
}

func TestEvaluateClosedStopsResolutionClock(t *testing.T) {
	ticket := openTicket()
	closed := created.Add(2 * time.Hour)
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &closed

	status := Evaluate(ticket, highPolicy(), created.Add(24*time.Hour))
	assert.True(t, status.Resolution.Met())
	assert.Equal(t, 2*time.Hour, status.Resolution.Elapsed)
}

func TestEvaluateWithoutPolicy(t *testing.T) {
	status := Evaluate(openTicket(), nil, created.Add(24*time.Hour))

	assert.False(t, status.HasPolicy)
	assert.Equal(t, TierNone, status.FirstResponse.Tier)
	assert.Equal(t, TierNone, status.Resolution.Tier)
	assert.Equal(t, TierNone, status.Worst())
}

func TestEvaluateSubtractsPausedTime(t *testing.T) {
	ticket := openTicket()
	ticket.SlaPausedDuration = 30 * time.Minute

	status := Evaluate(ticket, highPolicy(), created.Add(61*time.Minute))
	assert.Equal(t, 31*time.Minute, status.FirstResponse.Elapsed)
	assert.Equal(t, TierWarning, status.FirstResponse.Tier)

	pausedAt := created.Add(50 * time.Minute)
	ticket.SlaPausedAt = &pausedAt
	status = Evaluate(ticket, highPolicy(), created.Add(90*time.Minute))
	assert.Equal(t, 20*time.Minute, status.FirstResponse.Elapsed)
}

func TestPolicyFor(t *testing.T) {
	policies := []domain.SlaPolicy{
		{ID: "low", Priority: domain.TicketPriorityLow},
		{ID: "high", Priority: domain.TicketPriorityHigh},
	}
	require.NotNil(t, PolicyFor(policies, domain.TicketPriorityHigh))
	assert.Equal(t, "high", PolicyFor(policies, domain.TicketPriorityHigh).ID)
	assert.Nil(t, PolicyFor(policies, domain.TicketPriorityUrgent))
}

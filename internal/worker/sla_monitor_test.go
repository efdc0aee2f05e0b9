package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/supporthub/internal/domain"
)

func TestSlaMonitorCriticalThenBreachedOnce(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	created := p.clock.Now()
	ticket := &domain.Ticket{
		TenantID:  "acme",
		Number:    "TKT-20260302-0042",
		Subject:   "VPN down",
		Status:    domain.TicketStatusOpen,
		Priority:  domain.TicketPriorityHigh,
		CreatedAt: created,
	}
	p.store.PutTicket(ticket)

	p.clock.Set(created.Add(50 * time.Minute))
	summary := p.monitor.RunAll(ctx)
	assert.Equal(t, 1, summary.Counts["warnings"])
	assert.Equal(t, 0, summary.Counts["breaches"])
	assert.Equal(t, []int{10}, p.notifier.warnings)

	p.clock.Set(created.Add(61 * time.Minute))
	summary = p.monitor.RunAll(ctx)
	assert.Equal(t, 1, summary.Counts["breaches"])
	summary = p.monitor.RunAll(ctx)
	assert.Equal(t, 0, summary.Counts["breaches"])
	assert.Empty(t, summary.Errors)

	assert.Equal(t, []domain.BreachKind{domain.BreachKindFirstResponse}, p.notifier.breaches)
	breaches, err := p.store.SlaRecords().ListBreaches(ctx, "acme", ticket.ID)
	require.NoError(t, err)
	require.Len(t, breaches, 1)
	assert.Equal(t, domain.BreachKindFirstResponse, breaches[0].Kind)
	assert.Equal(t, created.Add(61*time.Minute), breaches[0].DetectedAt)

	history, err := p.store.History().ListByTicket(ctx, "acme", ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.AuditActionSlaBreachRecorded, history[0].Action)
}

func TestSlaMonitorExactTargetIsBreached(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	created := p.clock.Now()
	p.store.PutTicket(&domain.Ticket{TenantID: "acme", Number: "TKT-20260302-0043", Status: domain.TicketStatusNew, Priority: domain.TicketPriorityHigh, CreatedAt: created})

	p.clock.Set(created.Add(60 * time.Minute))
	summary := p.monitor.RunAll(ctx)
	assert.Equal(t, 1, summary.Counts["breaches"])
}

func TestSlaMonitorSkipsTicketsWithoutPolicyAndMetClocks(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	created := p.clock.Now()
	responded := created.Add(5 * time.Minute)
	p.store.PutTicket(&domain.Ticket{TenantID: "acme", Number: "TKT-20260302-0050", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityLow, CreatedAt: created})
	p.store.PutTicket(&domain.Ticket{TenantID: "acme", Number: "TKT-20260302-0051", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityHigh, CreatedAt: created, FirstResponseAt: &responded})
	p.store.PutTicket(&domain.Ticket{TenantID: "acme", Number: "TKT-20260302-0052", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityMedium, CreatedAt: created})

	p.clock.Set(created.Add(90 * time.Minute))
	summary := p.monitor.RunAll(ctx)
	assert.Equal(t, 1, summary.Counts["no_policy"])
	assert.Equal(t, 2, summary.Counts["evaluated"])
	assert.Equal(t, 0, summary.Counts["breaches"])
	assert.Equal(t, 0, summary.Counts["warnings"])
	assert.Empty(t, p.notifier.breaches)
}

func TestSlaMonitorPagesThroughOpenTickets(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	created := p.clock.Now()
	for _, n := range []string{"0061", "0062", "0063", "0064", "0065"} {
		p.store.PutTicket(&domain.Ticket{TenantID: "acme", Number: "TKT-20260302-" + n, Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityHigh, CreatedAt: created})
	}

	p.clock.Set(created.Add(90 * time.Minute))
	summary := p.monitor.RunAll(ctx)
	assert.Equal(t, 5, summary.Counts["evaluated"])
	assert.Equal(t, 5, summary.Counts["breaches"])
	assert.Len(t, p.notifier.breaches, 5)
}

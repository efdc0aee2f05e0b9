package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/repository"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newInbound(tenantID, externalID string) (*domain.Ticket, *domain.TicketMessage, *domain.InboundMessageRecord) {
	return &domain.Ticket{
			TenantID:       tenantID,
			Subject:        "Printer on fire",
			Status:         domain.TicketStatusNew,
			Priority:       domain.TicketPriorityMedium,
			Source:         domain.TicketSourceEmail,
			RequesterEmail: "dana@example.com",
		},
		&domain.TicketMessage{Direction: domain.DirectionInbound, AuthorType: domain.AuthorTypeRequester, Body: "help"},
		&domain.InboundMessageRecord{TenantID: tenantID, MailboxID: "mb", ExternalMessageID: externalID, Outcome: domain.InboundOutcomeCreated}
}

func TestCreateFromInboundNumbersPerTenantAndDay(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.SetClock(fixedClock(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)))
	tickets := store.Tickets()

	first, msg, rec := newInbound("acme", "m1")
	require.NoError(t, tickets.CreateFromInbound(ctx, first, msg, rec))
	second, msg, rec := newInbound("acme", "m2")
	require.NoError(t, tickets.CreateFromInbound(ctx, second, msg, rec))
	other, msg, rec := newInbound("globex", "m1")
	require.NoError(t, tickets.CreateFromInbound(ctx, other, msg, rec))

	assert.Equal(t, "TKT-20260304-0001", first.Number)
	assert.Equal(t, "TKT-20260304-0002", second.Number)
	assert.Equal(t, "TKT-20260304-0001", other.Number)
	assert.Equal(t, int64(1), first.Version)
	require.NotNil(t, rec.TicketID)
	assert.Equal(t, other.ID, *rec.TicketID)

	exists, err := store.Inbound().Exists(ctx, "acme", "m2")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateFromInboundSkipsSeededNumbers(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	day := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(fixedClock(day))
	store.PutTicket(&domain.Ticket{TenantID: "acme", Number: "TKT-20260101-0001", CreatedAt: day, Status: domain.TicketStatusOpen})

	ticket, msg, rec := newInbound("acme", "m1")
	require.NoError(t, store.Tickets().CreateFromInbound(ctx, ticket, msg, rec))
	assert.Equal(t, "TKT-20260101-0002", ticket.Number)
}

func TestDuplicateInboundLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tickets := store.Tickets()

	ticket, msg, rec := newInbound("acme", "m1")
	require.NoError(t, tickets.CreateFromInbound(ctx, ticket, msg, rec))

	again, msg, rec := newInbound("acme", "m1")
	err := tickets.CreateFromInbound(ctx, again, msg, rec)
	assert.ErrorIs(t, err, repository.ErrDuplicateInbound)

	open, err := tickets.ListOpen(ctx, "acme", 0, 0)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tickets := store.Tickets()

	ticket, msg, rec := newInbound("acme", "m1")
	require.NoError(t, tickets.CreateFromInbound(ctx, ticket, msg, rec))

	a, err := tickets.GetByID(ctx, "acme", ticket.ID)
	require.NoError(t, err)
	b, err := tickets.GetByID(ctx, "acme", ticket.ID)
	require.NoError(t, err)

	a.AddTags("vip")
	require.NoError(t, tickets.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.Priority = domain.TicketPriorityUrgent
	assert.ErrorIs(t, tickets.Update(ctx, b), repository.ErrVersionConflict)

	stored, err := tickets.GetByID(ctx, "acme", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, stored.Tags)
	assert.Equal(t, domain.TicketPriorityMedium, stored.Priority)
}

func TestTenantIsolationOnLookup(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ticket, msg, rec := newInbound("acme", "m1")
	require.NoError(t, store.Tickets().CreateFromInbound(ctx, ticket, msg, rec))

	_, err := store.Tickets().GetByNumber(ctx, "globex", ticket.Number)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Tickets().GetByID(ctx, "globex", ticket.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSlaRecordsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	records := NewStore().SlaRecords()

	inserted, err := records.InsertBreach(ctx, &domain.SlaBreachRecord{TenantID: "acme", TicketID: "t1", Kind: domain.BreachKindResolution})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = records.InsertBreach(ctx, &domain.SlaBreachRecord{TenantID: "acme", TicketID: "t1", Kind: domain.BreachKindResolution})
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = records.InsertWarning(ctx, &domain.SlaWarningRecord{TenantID: "acme", TicketID: "t1", Kind: domain.BreachKindResolution})
	require.NoError(t, err)
	assert.True(t, inserted)

	breaches, err := records.ListBreaches(ctx, "acme", "t1")
	require.NoError(t, err)
	assert.Len(t, breaches, 1)
}

func TestReplaceRulesRejectsDuplicatePositions(t *testing.T) {
	ctx := context.Background()
	rules := NewStore().Rules()

	err := rules.ReplaceForTenant(ctx, "acme", []domain.RoutingRule{
		{ID: "a", SortPosition: 1},
		{ID: "b", SortPosition: 1},
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateSortPosition)

	require.NoError(t, rules.ReplaceForTenant(ctx, "acme", []domain.RoutingRule{
		{ID: "b", SortPosition: 2},
		{ID: "a", SortPosition: 1},
	}))
	listed, err := rules.ListByTenant(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "a", listed[0].ID)
	assert.Equal(t, "acme", listed[1].TenantID)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/sla"
	apperrors "github.com/spec-kit/supporthub/pkg/util/errorutil"
)

func TestSlaServiceTicketStatus(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := NewSlaService(SlaDependencies{
		TicketStore: store.Tickets(),
		PolicyRepo:  store.Policies(),
		RecordRepo:  store.SlaRecords(),
		Clock:       clock,
	})

	store.PutTicket(&domain.Ticket{
		TenantID:  "acme",
		Number:    "TKT-20260302-0005",
		Status:    domain.TicketStatusOpen,
		Priority:  domain.TicketPriorityHigh,
		CreatedAt: fixedNow.Add(-50 * time.Minute),
	})

	view, err := svc.TicketStatus(ctx, "acme", "tkt-20260302-0005")
	require.NoError(t, err)
	assert.True(t, view.Status.HasPolicy)
	assert.Equal(t, sla.TierCritical, view.Status.FirstResponse.Tier)
	assert.Empty(t, view.Breaches)

	_, err = svc.TicketStatus(ctx, "acme", "TKT-20260302-0099")
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)

	_, err = svc.TicketStatus(ctx, "acme", "not-a-number")
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestSlaServiceUpsertPolicyValidates(t *testing.T) {
	store := seededStore(t)
	svc := NewSlaService(SlaDependencies{PolicyRepo: store.Policies()})

	err := svc.UpsertPolicy(context.Background(), &domain.SlaPolicy{TenantID: "acme", Priority: domain.TicketPriorityLow, FirstResponseMinutes: 0, ResolutionMinutes: 10})
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	require.NoError(t, svc.UpsertPolicy(context.Background(), &domain.SlaPolicy{TenantID: "acme", Priority: domain.TicketPriorityLow, FirstResponseMinutes: 480, ResolutionMinutes: 2880}))
	policies, err := svc.ListPolicies(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, policies, 3)
}

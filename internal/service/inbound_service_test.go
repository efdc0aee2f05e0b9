package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/mail"
	"github.com/spec-kit/supporthub/internal/tenant"
	apperrors "github.com/spec-kit/supporthub/pkg/util/errorutil"
)

func newInboundService(t *testing.T) (*InboundService, *mail.MemoryProvider, *TicketService) {
	t.Helper()
	store := seededStore(t)
	dispatcher, _ := newRecordingDispatcher()
	provider := mail.NewMemoryProvider()
	svc := NewInboundService(InboundDependencies{
		Drop:        provider,
		Mailboxes:   tenant.NewDirectory(store.Tenants(), store.Rules(), store.Policies(), nil),
		InboundRepo: store.Inbound(),
	})
	tickets := NewTicketService(TicketDependencies{TicketStore: store.Tickets(), Dispatcher: dispatcher, Clock: clock})
	return svc, provider, tickets
}

func TestAcceptQueuesNewMessage(t *testing.T) {
	svc, provider, _ := newInboundService(t)
	ctx := context.Background()

	queued, err := svc.Accept(ctx, "acme-support", mail.Message{ExternalID: " <a@x> ", From: "bob@customer.io", Subject: "hi"})
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = svc.Accept(ctx, "acme-support", mail.Message{ExternalID: "<a@x>", From: "bob@customer.io"})
	require.NoError(t, err)
	assert.False(t, queued)

	msgs, err := provider.ListUnseenMessages(ctx, acmeMailbox(), time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "<a@x>", msgs[0].ExternalID)
}

func TestAcceptSkipsAlreadyIngested(t *testing.T) {
	svc, provider, tickets := newInboundService(t)
	ctx := context.Background()

	_, err := tickets.CreateFromInbound(ctx, inbound("<done@x>", "bob@customer.io", "old"))
	require.NoError(t, err)

	queued, err := svc.Accept(ctx, "acme-support", mail.Message{ExternalID: "<done@x>", From: "bob@customer.io"})
	require.NoError(t, err)
	assert.False(t, queued)

	msgs, err := provider.ListUnseenMessages(ctx, acmeMailbox(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	records, err := svc.Recent(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.InboundOutcomeCreated, records[0].Outcome)
}

func TestAcceptValidates(t *testing.T) {
	svc, _, _ := newInboundService(t)
	ctx := context.Background()

	_, err := svc.Accept(ctx, "missing", mail.Message{ExternalID: "1", From: "a@b.com"})
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)

	_, err = svc.Accept(ctx, "acme-support", mail.Message{From: "a@b.com"})
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	_, err = svc.Accept(ctx, "acme-support", mail.Message{ExternalID: "1", From: "not an address"})
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

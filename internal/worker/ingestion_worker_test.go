package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/mail"
	"github.com/spec-kit/supporthub/internal/observability"
	"github.com/spec-kit/supporthub/internal/repository"
	"github.com/spec-kit/supporthub/internal/threading"
)

func TestIngestionCreatesAndRoutesNewTicket(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.provider.Deliver("acme-support", message("m-1", "Alice <alice@acme.com>", "Password reset please"))

	result, err := p.ingestion.Poll(ctx, acmeTenant())
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	outcome := result.Outcomes[0]
	assert.Equal(t, domain.InboundOutcomeCreated, outcome.Outcome)
	assert.Equal(t, "TKT-20260302-0001", outcome.TicketNumber)

	ticket, err := p.store.Tickets().GetByID(ctx, "acme", outcome.TicketID)
	require.NoError(t, err)
	require.NotNil(t, ticket.AssignedQueueID)
	assert.Equal(t, "tier1", *ticket.AssignedQueueID)
	assert.True(t, ticket.HasTag("password"))
	assert.Equal(t, "Alice", ticket.RequesterName)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)

	history, err := p.store.History().ListByTicket(ctx, "acme", ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.AuditActionRoutingApplied, history[0].Action)

	sent := p.provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "TKT-20260302-0001", sent[0].Headers[threading.HeaderTicketID])
	assert.True(t, strings.HasPrefix(sent[0].Subject, "[SH-TKT-20260302-0001]"))
}

func TestIngestionReopensResolvedTicketViaHeader(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	reply := message("m-2", "alice@acme.com", "Re: Cannot log in")
	reply.Headers = map[string]string{"x-supporthub-ticketid": "TKT-20260101-0007"}
	p.provider.Deliver("acme-support", reply)

	result, err := p.ingestion.Poll(ctx, acmeTenant())
	require.NoError(t, err)
	require.Equal(t, 1, result.Appended)
	assert.Equal(t, "TKT-20260101-0007", result.Outcomes[0].TicketNumber)

	ticket, err := p.store.Tickets().GetByNumber(ctx, "acme", "TKT-20260101-0007")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.ResolvedAt)
	assert.Nil(t, ticket.ClosedAt)

	msgs, err := p.store.Tickets().ListMessages(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-2", msgs[0].ExternalMessageID)
}

func TestIngestionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.provider.Deliver("acme-support", message("m-1", "bob@example.org", "Printer"))

	first, err := p.ingestion.Poll(ctx, acmeTenant())
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	p.provider.Reset()
	second, err := p.ingestion.Poll(ctx, acmeTenant())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	require.Equal(t, 1, second.Skipped)
	assert.Equal(t, domain.InboundReasonDuplicate, second.Outcomes[0].Reason)

	open, err := p.store.Tickets().ListOpen(ctx, "acme", 0, 0)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	records, err := p.store.Inbound().ListRecent(ctx, "acme", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestIngestionSkipsIgnoredSendersAndMailLoops(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.provider.Deliver("acme-support",
		message("m-1", "bounce@bounces.acme.com", "Undeliverable"),
		message("m-2", "MAILER-DAEMON@example.com", "Failure notice"),
		message("m-3", "support@acme.com", "[SH-TKT-20260101-0007] auto reply"),
	)

	result, err := p.ingestion.Poll(ctx, acmeTenant())
	require.NoError(t, err)
	require.Equal(t, 3, result.Skipped)
	assert.Equal(t, domain.InboundReasonIgnoredSender, result.Outcomes[0].Reason)
	assert.Equal(t, domain.InboundReasonIgnoredSender, result.Outcomes[1].Reason)
	assert.Equal(t, domain.InboundReasonMailLoop, result.Outcomes[2].Reason)

	records, err := p.store.Inbound().ListRecent(ctx, "acme", 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, domain.InboundOutcomeSkipped, rec.Outcome)
	}
	open, err := p.store.Tickets().ListOpen(ctx, "acme", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, open)
}

// failingCreates fails creation for subjects containing "boom".
type failingCreates struct {
	repository.TicketStore
}

func (f failingCreates) CreateFromInbound(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, rec *domain.InboundMessageRecord) error {
	if strings.Contains(ticket.Subject, "boom") {
		return errors.New("disk full")
	}
	return f.TicketStore.CreateFromInbound(ctx, ticket, msg, rec)
}

func TestIngestionFailingMessageDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, withTicketStore(func(s repository.TicketStore) repository.TicketStore { return failingCreates{s} }))

	bad := message("m-1", "bob@example.org", "boom")
	bad.Attachments = []mail.Attachment{{FileName: "../../etc/passwd", ContentType: "text/plain", Content: []byte("x")}}
	p.provider.Deliver("acme-support", bad, message("m-2", "carol@example.org", "fine"))

	result, err := p.ingestion.Poll(ctx, acmeTenant())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Created)
	assert.Contains(t, result.Outcomes[0].Reason, "disk full")
	assert.Zero(t, p.blobs.Len())

	records, err := p.store.Inbound().ListRecent(ctx, "acme", 0)
	require.NoError(t, err)
	outcomes := map[string]domain.InboundOutcome{}
	for _, rec := range records {
		outcomes[rec.ExternalMessageID] = rec.Outcome
	}
	assert.Equal(t, domain.InboundOutcomeFailed, outcomes["m-1"])
	assert.Equal(t, domain.InboundOutcomeCreated, outcomes["m-2"])
}

func TestIngestionStoresAttachments(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	msg := message("m-1", "bob@example.org", "Screenshot")
	msg.HTMLBody = `<p>See attached</p><script>alert(1)</script>`
	msg.Body = ""
	msg.Attachments = []mail.Attachment{{FileName: "screen.png", ContentType: "image/png", Content: []byte{1, 2, 3}}}
	p.provider.Deliver("acme-support", msg)

	result, err := p.ingestion.Poll(ctx, acmeTenant())
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	assert.Equal(t, 1, p.blobs.Len())

	msgs, err := p.store.Tickets().ListMessages(ctx, result.Outcomes[0].TicketID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Attachments, 1)
	ref := msgs[0].Attachments[0]
	assert.Equal(t, "screen.png", ref.FileName)
	assert.Equal(t, int64(3), ref.SizeBytes)
	assert.True(t, strings.HasPrefix(ref.StorageKey, "acme/2026/03/02/"))
	assert.NotContains(t, msgs[0].Body, "script")

	data, err := p.blobs.Get(ctx, ref.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestIngestionProviderFailureAbortsTenant(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.provider.Deliver("acme-support", message("m-1", "bob@example.org", "Printer"))
	p.provider.ListErr["acme-support"] = errors.New("imap timeout")

	_, err := p.ingestion.Poll(ctx, acmeTenant())
	require.Error(t, err)

	summary := p.ingestion.RunAll(ctx)
	assert.Equal(t, 1, summary.Tenants)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "imap timeout")
	assert.Equal(t, int64(1), p.metrics.RunCount(observability.PipelineIngestion))

	records, err := p.store.Inbound().ListRecent(ctx, "acme", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestIngestionTenantIsolation(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	require.NoError(t, p.store.Tenants().Save(ctx, &domain.Tenant{ID: "initech", Name: "Initech", Active: true}))
	require.NoError(t, p.store.Tenants().SaveMailbox(ctx, &domain.Mailbox{ID: "initech-help", TenantID: "initech", Address: "help@initech.com", Active: true}))

	foreign := message("m-1", "peter@initech.com", "Re: [SH-TKT-20260101-0007] TPS reports")
	foreign.Headers = map[string]string{threading.HeaderTicketID: "TKT-20260101-0007"}
	p.provider.Deliver("initech-help", foreign)
	// the same external id in another tenant is a different message
	p.provider.Deliver("acme-support", message("m-1", "bob@example.org", "Printer"))

	summary := p.ingestion.RunAll(ctx)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 2, summary.Tenants)
	assert.Equal(t, 2, summary.Counts["created"])

	acme, err := p.store.Tickets().GetByNumber(ctx, "acme", "TKT-20260101-0007")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, acme.Status)

	initech, err := p.store.Tickets().ListOpen(ctx, "initech", 0, 0)
	require.NoError(t, err)
	require.Len(t, initech, 1)
	assert.Equal(t, "TKT-20260302-0001", initech[0].Number)
}

func TestIngestionRecordsKeylessMessageOnce(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)
	p.provider.Deliver("acme-support", message("", "bob@example.org", "No message id"))

	first, err := p.ingestion.Poll(ctx, acmeTenant())
	require.NoError(t, err)
	require.Equal(t, 1, first.Failed)
	assert.Equal(t, mail.ErrMissingExternalID.Error(), first.Outcomes[0].Reason)

	for i := 0; i < 2; i++ {
		again, err := p.ingestion.Poll(ctx, acmeTenant())
		require.NoError(t, err)
		assert.Empty(t, again.Outcomes)
	}

	records, err := p.store.Inbound().ListRecent(ctx, "acme", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.InboundOutcomeFailed, records[0].Outcome)
	assert.True(t, strings.HasPrefix(records[0].ExternalMessageID, "nokey-"))
	assert.Nil(t, records[0].TicketID)

	// a redelivery of the same content is a duplicate, not a second failure
	p.provider.Reset()
	redelivered, err := p.ingestion.Poll(ctx, acmeTenant())
	require.NoError(t, err)
	require.Equal(t, 1, redelivered.Skipped)
	assert.Equal(t, domain.InboundReasonDuplicate, redelivered.Outcomes[0].Reason)
}

// cancelOnCreate cancels the run when a ticket with the given subject is about
// to be created, failing that write the way a cancelled database call would.
type cancelOnCreate struct {
	repository.TicketStore
	subject string
	cancel  context.CancelFunc
}

func (c cancelOnCreate) CreateFromInbound(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, rec *domain.InboundMessageRecord) error {
	if ticket.Subject == c.subject {
		c.cancel()
		return ctx.Err()
	}
	return c.TicketStore.CreateFromInbound(ctx, ticket, msg, rec)
}

func TestIngestionCancelledMidBatchLeavesNoOrphanRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := newPipeline(t, withTicketStore(func(s repository.TicketStore) repository.TicketStore {
		return cancelOnCreate{TicketStore: s, subject: "Second", cancel: cancel}
	}))
	p.provider.Deliver("acme-support",
		message("m-1", "bob@example.org", "First"),
		message("m-2", "carol@example.org", "Second"),
		message("m-3", "dave@example.org", "Third"),
	)

	result, err := p.ingestion.Poll(ctx, acmeTenant())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Created)
	assert.Zero(t, result.Failed)

	bg := context.Background()
	records, err := p.store.Inbound().ListRecent(bg, "acme", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "m-1", rec.ExternalMessageID)
	require.NotNil(t, rec.TicketID)

	ticket, err := p.store.Tickets().GetByID(bg, "acme", *rec.TicketID)
	require.NoError(t, err)
	msgs, err := p.store.Tickets().ListMessages(bg, ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-1", msgs[0].ExternalMessageID)

	open, err := p.store.Tickets().ListOpen(bg, "acme", 0, 0)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// the interrupted messages stay unseen for the next run
	unseen, err := p.provider.ListUnseenMessages(bg, domain.Mailbox{ID: "acme-support"}, time.Time{})
	require.NoError(t, err)
	require.Len(t, unseen, 2)
	assert.Equal(t, "m-2", unseen[0].ExternalID)
	assert.Equal(t, "m-3", unseen[1].ExternalID)
}

package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/supporthub/internal/blob"
	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/mail"
	"github.com/spec-kit/supporthub/internal/observability"
	"github.com/spec-kit/supporthub/internal/repository"
	"github.com/spec-kit/supporthub/internal/service"
	"github.com/spec-kit/supporthub/internal/tenant"
	"github.com/spec-kit/supporthub/internal/threading"
)

const maxReasonLength = 500

// MessageOutcome is what happened to one inbound message.
type MessageOutcome struct {
	MailboxID    string                `json:"mailbox_id"`
	ExternalID   string                `json:"external_id"`
	Outcome      domain.InboundOutcome `json:"outcome"`
	Reason       string                `json:"reason,omitempty"`
	TicketID     string                `json:"ticket_id,omitempty"`
	TicketNumber string                `json:"ticket_number,omitempty"`
}

// BatchResult summarizes one Poll of one tenant.
type BatchResult struct {
	TenantID string           `json:"tenant_id"`
	Created  int              `json:"created"`
	Appended int              `json:"appended"`
	Skipped  int              `json:"skipped"`
	Failed   int              `json:"failed"`
	Outcomes []MessageOutcome `json:"outcomes"`
}

func (b *BatchResult) add(o MessageOutcome) {
	b.Outcomes = append(b.Outcomes, o)
	switch o.Outcome {
	case domain.InboundOutcomeCreated:
		b.Created++
	case domain.InboundOutcomeAppended:
		b.Appended++
	case domain.InboundOutcomeSkipped:
		b.Skipped++
	case domain.InboundOutcomeFailed:
		b.Failed++
	}
}

// IngestionWorker polls tenant mailboxes and turns mail into ticket activity.
type IngestionWorker struct {
	directory   *tenant.Directory
	provider    mail.Provider
	inbound     repository.InboundMessageRepository
	matcher     *threading.Matcher
	tickets     *service.TicketService
	routing     *service.RoutingService
	blobs       blob.Store
	logger      *zap.Logger
	metrics     *observability.Metrics
	batchSize   int
	concurrency int
	lookback    time.Duration
	now         func() time.Time
}

// IngestionDependencies bundles collaborators for the ingestion worker.
type IngestionDependencies struct {
	Directory   *tenant.Directory
	Provider    mail.Provider
	InboundRepo repository.InboundMessageRepository
	TicketStore repository.TicketStore
	Tickets     *service.TicketService
	Routing     *service.RoutingService
	Blobs       blob.Store
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	BatchSize   int
	Concurrency int
	Lookback    time.Duration
	Clock       func() time.Time
}

// NewIngestionWorker constructs the worker.
func NewIngestionWorker(deps IngestionDependencies) *IngestionWorker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	blobs := deps.Blobs
	if blobs == nil {
		blobs = blob.NewMemoryStore()
	}
	return &IngestionWorker{
		directory:   deps.Directory,
		provider:    deps.Provider,
		inbound:     deps.InboundRepo,
		matcher:     threading.NewMatcher(deps.TicketStore),
		tickets:     deps.Tickets,
		routing:     deps.Routing,
		blobs:       blobs,
		logger:      logger.With(zap.String("pipeline", observability.PipelineIngestion)),
		metrics:     deps.Metrics,
		batchSize:   deps.BatchSize,
		concurrency: deps.Concurrency,
		lookback:    deps.Lookback,
		now:         clock,
	}
}

// RunAll polls every active tenant through the bounded pool and records the run.
func (w *IngestionWorker) RunAll(ctx context.Context) observability.RunSummary {
	summary := observability.RunSummary{
		Pipeline:  observability.PipelineIngestion,
		StartedAt: w.now(),
		Counts:    map[string]int{},
	}

	results := make(chan BatchResult)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			summary.Counts["created"] += r.Created
			summary.Counts["appended"] += r.Appended
			summary.Counts["skipped"] += r.Skipped
			summary.Counts["failed"] += r.Failed
		}
	}()

	tenants, errs := forEachTenant(ctx, w.directory, w.concurrency, w.logger, func(ctx context.Context, t domain.Tenant) error {
		result, err := w.Poll(ctx, t)
		results <- result
		return err
	})
	close(results)
	<-done

	summary.Tenants = tenants
	summary.Errors = errs
	summary.FinishedAt = w.now()
	w.metrics.RecordRun(summary)
	w.logger.Info("ingestion run finished",
		zap.Int("tenants", tenants),
		zap.Int("created", summary.Counts["created"]),
		zap.Int("appended", summary.Counts["appended"]),
		zap.Int("skipped", summary.Counts["skipped"]),
		zap.Int("failed", summary.Counts["failed"]),
		zap.Int("errors", len(errs)))
	return summary
}

// Poll processes the unseen messages of every active mailbox of tenant t. A
// provider failure aborts the tenant's batch; per-message failures are recorded
// and never stop it.
func (w *IngestionWorker) Poll(ctx context.Context, t domain.Tenant) (BatchResult, error) {
	result := BatchResult{TenantID: t.ID}
	snap, err := w.directory.Snapshot(ctx, t.ID)
	if err != nil {
		return result, err
	}

	var since time.Time
	if w.lookback > 0 {
		since = w.now().Add(-w.lookback)
	}

	for _, mailbox := range snap.Mailboxes {
		if !mailbox.Active {
			continue
		}
		msgs, err := w.provider.ListUnseenMessages(ctx, mailbox, since)
		if err != nil {
			return result, fmt.Errorf("list mailbox %s: %w", mailbox.ID, err)
		}
		if w.batchSize > 0 && len(msgs) > w.batchSize {
			msgs = msgs[:w.batchSize]
		}
		for _, msg := range msgs {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			outcome, ok := w.processSafely(ctx, snap, mailbox, msg)
			if !ok {
				continue
			}
			result.add(outcome)
		}
	}
	return result, nil
}

// processSafely turns a panic inside one message into a failed outcome. ok is
// false when the context was cancelled mid-message and nothing was recorded.
func (w *IngestionWorker) processSafely(ctx context.Context, snap *tenant.Snapshot, mailbox domain.Mailbox, msg mail.Message) (outcome MessageOutcome, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("message panic",
				zap.String("tenant_id", snap.Tenant.ID),
				zap.String("external_id", msg.Key()),
				zap.Any("panic", r))
			outcome, ok = w.fail(ctx, snap.Tenant.ID, mailbox, msg.Key(), fmt.Errorf("panic: %v", r)), true
		}
	}()
	return w.process(ctx, snap, mailbox, msg)
}

func (w *IngestionWorker) process(ctx context.Context, snap *tenant.Snapshot, mailbox domain.Mailbox, msg mail.Message) (MessageOutcome, bool) {
	tenantID := snap.Tenant.ID
	// keyless messages are recorded and marked processed under a content digest
	missingID := msg.ExternalID == ""
	msg.ExternalID = msg.Key()
	base := MessageOutcome{MailboxID: mailbox.ID, ExternalID: msg.ExternalID}
	logger := w.logger.With(zap.String("tenant_id", tenantID), zap.String("external_id", msg.ExternalID))

	exists, err := w.inbound.Exists(ctx, tenantID, msg.ExternalID)
	if err != nil {
		return w.failOrAbort(ctx, tenantID, mailbox, msg.ExternalID, err)
	}
	if exists {
		base.Outcome = domain.InboundOutcomeSkipped
		base.Reason = domain.InboundReasonDuplicate
		w.markProcessed(ctx, mailbox, msg.ExternalID, logger)
		return base, true
	}

	if missingID {
		logger.Warn("inbound message without external id", zap.String("mailbox_id", mailbox.ID))
		return w.failOrAbort(ctx, tenantID, mailbox, msg.ExternalID, mail.ErrMissingExternalID)
	}

	from, fromName, err := mail.NormalizeAddress(msg.From)
	if err != nil {
		return w.failOrAbort(ctx, tenantID, mailbox, msg.ExternalID, err)
	}
	if msg.FromName != "" {
		fromName = mail.SanitizeHeader(msg.FromName)
	}

	switch {
	case snap.IsIgnoredSender(from):
		return w.skip(ctx, tenantID, mailbox, msg.ExternalID, domain.InboundReasonIgnoredSender, logger)
	case snap.IsOwnMailbox(from):
		return w.skip(ctx, tenantID, mailbox, msg.ExternalID, domain.InboundReasonMailLoop, logger)
	}

	subject := mail.SanitizeHeader(msg.Subject)
	body := msg.BodyText()

	match, err := w.matcher.Match(ctx, tenantID, msg.Headers, subject)
	if err != nil {
		return w.failOrAbort(ctx, tenantID, mailbox, msg.ExternalID, err)
	}

	attachments, err := w.storeAttachments(ctx, tenantID, msg)
	if err != nil {
		return w.failOrAbort(ctx, tenantID, mailbox, msg.ExternalID, err)
	}

	in := service.InboundInput{
		TenantID:    tenantID,
		Mailbox:     mailbox,
		ExternalID:  msg.ExternalID,
		FromAddress: from,
		FromName:    fromName,
		Subject:     subject,
		Body:        body,
		Attachments: attachments,
		ReceivedAt:  msg.ReceivedAt,
	}

	if match.IsNew() {
		ticket, err := w.tickets.CreateFromInbound(ctx, in)
		if err != nil {
			w.removeAttachments(attachments, logger)
			return w.mutationFailed(ctx, tenantID, mailbox, msg.ExternalID, err, logger)
		}
		w.markProcessed(ctx, mailbox, msg.ExternalID, logger)
		if _, err := w.routing.Route(ctx, snap.Rules, tenantID, ticket.ID, body); err != nil {
			logger.Warn("routing failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		base.Outcome = domain.InboundOutcomeCreated
		base.TicketID = ticket.ID
		base.TicketNumber = ticket.Number
		return base, true
	}

	appended, err := w.tickets.AppendInbound(ctx, match.Ticket.ID, in)
	if err != nil {
		w.removeAttachments(attachments, logger)
		return w.mutationFailed(ctx, tenantID, mailbox, msg.ExternalID, err, logger)
	}
	w.markProcessed(ctx, mailbox, msg.ExternalID, logger)
	logger.Debug("message appended",
		zap.String("ticket_id", appended.Ticket.ID),
		zap.String("match", string(match.Source)),
		zap.Bool("reopened", appended.Reopened))
	base.Outcome = domain.InboundOutcomeAppended
	base.TicketID = appended.Ticket.ID
	base.TicketNumber = appended.Ticket.Number
	return base, true
}

func (w *IngestionWorker) mutationFailed(ctx context.Context, tenantID string, mailbox domain.Mailbox, externalID string, err error, logger *zap.Logger) (MessageOutcome, bool) {
	if errors.Is(err, repository.ErrDuplicateInbound) {
		w.markProcessed(ctx, mailbox, externalID, logger)
		return MessageOutcome{
			MailboxID:  mailbox.ID,
			ExternalID: externalID,
			Outcome:    domain.InboundOutcomeSkipped,
			Reason:     domain.InboundReasonDuplicate,
		}, true
	}
	return w.failOrAbort(ctx, tenantID, mailbox, externalID, err)
}

func (w *IngestionWorker) skip(ctx context.Context, tenantID string, mailbox domain.Mailbox, externalID, reason string, logger *zap.Logger) (MessageOutcome, bool) {
	rec := &domain.InboundMessageRecord{
		TenantID:          tenantID,
		MailboxID:         mailbox.ID,
		ExternalMessageID: externalID,
		Outcome:           domain.InboundOutcomeSkipped,
		Reason:            reason,
		ProcessedAt:       w.now(),
	}
	if _, err := w.inbound.Record(ctx, rec); err != nil {
		return w.failOrAbort(ctx, tenantID, mailbox, externalID, err)
	}
	w.markProcessed(ctx, mailbox, externalID, logger)
	logger.Info("message skipped", zap.String("reason", reason))
	return MessageOutcome{MailboxID: mailbox.ID, ExternalID: externalID, Outcome: domain.InboundOutcomeSkipped, Reason: reason}, true
}

// failOrAbort records a failed outcome, unless the context is done: then the
// message is left for the next run.
func (w *IngestionWorker) failOrAbort(ctx context.Context, tenantID string, mailbox domain.Mailbox, externalID string, err error) (MessageOutcome, bool) {
	if ctx.Err() != nil {
		return MessageOutcome{}, false
	}
	return w.fail(ctx, tenantID, mailbox, externalID, err), true
}

func (w *IngestionWorker) fail(ctx context.Context, tenantID string, mailbox domain.Mailbox, externalID string, cause error) MessageOutcome {
	reason := cause.Error()
	if len(reason) > maxReasonLength {
		reason = reason[:maxReasonLength]
	}
	logger := w.logger.With(zap.String("tenant_id", tenantID), zap.String("external_id", externalID))
	logger.Error("message failed", zap.Error(cause))

	rec := &domain.InboundMessageRecord{
		TenantID:          tenantID,
		MailboxID:         mailbox.ID,
		ExternalMessageID: externalID,
		Outcome:           domain.InboundOutcomeFailed,
		Reason:            reason,
		ProcessedAt:       w.now(),
	}
	if _, err := w.inbound.Record(ctx, rec); err != nil {
		logger.Error("record failed outcome", zap.Error(err))
	} else {
		w.markProcessed(ctx, mailbox, externalID, logger)
	}
	return MessageOutcome{MailboxID: mailbox.ID, ExternalID: externalID, Outcome: domain.InboundOutcomeFailed, Reason: reason}
}

func (w *IngestionWorker) markProcessed(ctx context.Context, mailbox domain.Mailbox, externalID string, logger *zap.Logger) {
	if err := w.provider.MarkProcessed(ctx, mailbox, externalID); err != nil {
		logger.Warn("mark processed failed", zap.String("mailbox_id", mailbox.ID), zap.Error(err))
	}
}

func (w *IngestionWorker) storeAttachments(ctx context.Context, tenantID string, msg mail.Message) ([]domain.AttachmentReference, error) {
	refs := make([]domain.AttachmentReference, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		name := mail.SanitizeAttachmentName(att.FileName)
		if name == "" {
			name = "attachment"
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		key := path.Join(tenantID, w.now().Format("2006/01/02"), uuid.NewString(), name)
		if err := w.blobs.Put(ctx, key, bytes.NewReader(att.Content), int64(len(att.Content)), contentType); err != nil {
			w.removeAttachments(refs, w.logger)
			return nil, fmt.Errorf("store attachment %s: %w", name, err)
		}
		refs = append(refs, domain.AttachmentReference{
			StorageKey: key,
			FileName:   name,
			MimeType:   contentType,
			SizeBytes:  int64(len(att.Content)),
		})
	}
	return refs, nil
}

// removeAttachments is best effort and runs on a fresh context so it survives cancellation.
func (w *IngestionWorker) removeAttachments(refs []domain.AttachmentReference, logger *zap.Logger) {
	if len(refs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, ref := range refs {
		if err := w.blobs.Delete(ctx, ref.StorageKey); err != nil {
			logger.Warn("remove attachment failed", zap.String("key", ref.StorageKey), zap.Error(err))
		}
	}
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/mail"
	"github.com/spec-kit/supporthub/internal/repository"
	apperrors "github.com/spec-kit/supporthub/pkg/util/errorutil"
)

// MailDrop accepts pushed inbound mail until the ingestion worker drains it.
type MailDrop interface {
	Push(ctx context.Context, mailboxID string, msg mail.Message) (bool, error)
}

// MailboxResolver looks up a mailbox by id.
type MailboxResolver interface {
	Mailbox(ctx context.Context, mailboxID string) (*domain.Mailbox, error)
}

// InboundService accepts webhook deliveries and exposes the ingestion log.
type InboundService struct {
	drop      MailDrop
	mailboxes MailboxResolver
	records   repository.InboundMessageRepository
}

// InboundDependencies bundles collaborators for the inbound service.
type InboundDependencies struct {
	Drop        MailDrop
	Mailboxes   MailboxResolver
	InboundRepo repository.InboundMessageRepository
}

// NewInboundService constructs the service.
func NewInboundService(deps InboundDependencies) *InboundService {
	return &InboundService{drop: deps.Drop, mailboxes: deps.Mailboxes, records: deps.InboundRepo}
}

// Accept queues msg for mailboxID. It reports false when the same external id
// is already queued or was already ingested for the mailbox's tenant.
func (s *InboundService) Accept(ctx context.Context, mailboxID string, msg mail.Message) (bool, error) {
	mailbox, err := s.mailboxes.Mailbox(ctx, mailboxID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, apperrors.NewNotFound("mailbox", map[string]any{"mailbox_id": mailboxID})
		}
		return false, apperrors.MapError(err)
	}
	if !mailbox.Active {
		return false, apperrors.NewUnprocessable("mailbox is inactive", map[string]any{"mailbox_id": mailboxID})
	}

	msg.ExternalID = strings.TrimSpace(msg.ExternalID)
	if msg.ExternalID == "" {
		return false, apperrors.NewValidationError("external_id required", nil)
	}
	if strings.TrimSpace(msg.From) == "" {
		return false, apperrors.NewValidationError("from required", nil)
	}
	if _, _, err := mail.NormalizeAddress(msg.From); err != nil {
		return false, apperrors.NewValidationError("invalid sender address", map[string]any{"from": msg.From})
	}

	seen, err := s.records.Exists(ctx, mailbox.TenantID, msg.ExternalID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	if seen {
		return false, nil
	}

	added, err := s.drop.Push(ctx, mailbox.ID, msg)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	return added, nil
}

// Recent lists the tenant's latest ingestion records, newest first.
func (s *InboundService) Recent(ctx context.Context, tenantID string, limit int) ([]domain.InboundMessageRecord, error) {
	records, err := s.records.ListRecent(ctx, tenantID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return records, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/events"
	"github.com/spec-kit/supporthub/internal/repository"
)

// TicketService applies inbound mail to the ticket aggregate.
type TicketService struct {
	tickets    repository.TicketStore
	dispatcher events.Dispatcher
	retries    int
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketStore     repository.TicketStore
	Dispatcher      events.Dispatcher
	ConflictRetries int
	Clock           func() time.Time
}

// InboundInput is one accepted inbound message.
type InboundInput struct {
	TenantID    string
	Mailbox     domain.Mailbox
	ExternalID  string
	FromAddress string
	FromName    string
	Subject     string
	Body        string
	Attachments []domain.AttachmentReference
	ReceivedAt  time.Time
}

// AppendResult describes the mutation an appended message caused.
type AppendResult struct {
	Ticket         *domain.Ticket
	PreviousStatus domain.TicketStatus
	Reopened       bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &TicketService{
		tickets:    deps.TicketStore,
		dispatcher: deps.Dispatcher,
		retries:    deps.ConflictRetries,
		now:        clock,
	}
}

// CreateFromInbound opens a NEW email ticket with the message as its first entry.
// The inbound record is written in the same transaction.
func (s *TicketService) CreateFromInbound(ctx context.Context, in InboundInput) (*domain.Ticket, error) {
	now := s.now()
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = "(no subject)"
	}
	ticket := &domain.Ticket{
		TenantID:       in.TenantID,
		Subject:        subject,
		Description:    in.Body,
		Status:         domain.TicketStatusNew,
		Priority:       domain.TicketPriorityMedium,
		Source:         domain.TicketSourceEmail,
		RequesterEmail: in.FromAddress,
		RequesterName:  in.FromName,
		CreatedAt:      now,
	}
	msg := inboundMessage(in, now)
	rec := &domain.InboundMessageRecord{
		TenantID:          in.TenantID,
		MailboxID:         in.Mailbox.ID,
		ExternalMessageID: in.ExternalID,
		Outcome:           domain.InboundOutcomeCreated,
		ProcessedAt:       now,
	}

	if err := s.tickets.CreateFromInbound(ctx, ticket, msg, rec); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload:  events.TicketCreatedPayload{Ticket: *ticket.Clone(), Mailbox: in.Mailbox},
	})
	s.publishMessageAdded(ctx, ticket, msg)
	return ticket, nil
}

// AppendInbound adds the message to ticketID, moving an agent-waiting ticket back
// to the agent and reopening a resolved or closed one. Version conflicts are
// retried against a fresh read.
func (s *TicketService) AppendInbound(ctx context.Context, ticketID string, in InboundInput) (*AppendResult, error) {
	var result *AppendResult
	var msg *domain.TicketMessage

	err := retryOnConflict(ctx, s.retries, func() error {
		ticket, err := s.tickets.GetByID(ctx, in.TenantID, ticketID)
		if err != nil {
			return err
		}
		if !ticket.IsLive() {
			return fmt.Errorf("ticket %s: %w", ticket.Number, repository.ErrNotFound)
		}

		previous, changed := ticket.ApplyCustomerReply()
		reopened := changed && previous.IsTerminal()

		now := s.now()
		msg = inboundMessage(in, now)
		rec := &domain.InboundMessageRecord{
			TenantID:          in.TenantID,
			MailboxID:         in.Mailbox.ID,
			ExternalMessageID: in.ExternalID,
			Outcome:           domain.InboundOutcomeAppended,
			ProcessedAt:       now,
		}
		if err := s.tickets.AppendInbound(ctx, ticket, msg, rec); err != nil {
			return err
		}
		result = &AppendResult{Ticket: ticket, PreviousStatus: previous, Reopened: reopened}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append to ticket %s: %w", ticketID, err)
	}

	if result.Reopened {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketReopened,
			TenantID: result.Ticket.TenantID,
			TicketID: result.Ticket.ID,
			Payload:  events.TicketReopenedPayload{Number: result.Ticket.Number, PreviousStatus: result.PreviousStatus},
		})
	}
	s.publishMessageAdded(ctx, result.Ticket, msg)
	return result, nil
}

// GetByNumber loads a ticket inside tenantID.
func (s *TicketService) GetByNumber(ctx context.Context, tenantID, number string) (*domain.Ticket, error) {
	normalized, err := domain.ParseTicketNumber(number)
	if err != nil {
		return nil, err
	}
	return s.tickets.GetByNumber(ctx, tenantID, normalized)
}

func inboundMessage(in InboundInput, now time.Time) *domain.TicketMessage {
	return &domain.TicketMessage{
		Direction:         domain.DirectionInbound,
		AuthorType:        domain.AuthorTypeRequester,
		FromAddress:       in.FromAddress,
		Subject:           in.Subject,
		Body:              in.Body,
		ExternalMessageID: in.ExternalID,
		Attachments:       append([]domain.AttachmentReference(nil), in.Attachments...),
		CreatedAt:         now,
	}
}

func (s *TicketService) publishMessageAdded(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			Direction:   msg.Direction,
			BodyPreview: stringPreview(msg.Body, 140),
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publish(ctx, s.dispatcher, event)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Actor == "" {
		event.Actor = domain.ActorSystem
	}
	_ = dispatcher.Publish(ctx, event)
}

// retryOnConflict runs fn once plus up to retries more times while it reports a
// version conflict.
func retryOnConflict(ctx context.Context, retries int, fn func() error) error {
	if retries < 0 {
		retries = 0
	}
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", retries+1, err)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}

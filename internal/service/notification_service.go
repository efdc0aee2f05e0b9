package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/supporthub/internal/events"
	"github.com/spec-kit/supporthub/internal/mail"
	"github.com/spec-kit/supporthub/internal/notify"
	"github.com/spec-kit/supporthub/internal/threading"
)

// NotificationService handles emitting notifications for domain events.
// Delivery failures are returned to the dispatcher, which logs them; nothing is retried.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	mailer     mail.Sender
	logger     *zap.Logger
	ackEnabled bool
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher          events.Dispatcher
	Notifier            notify.Notifier
	Mailer              mail.Sender
	Logger              *zap.Logger
	SendAcknowledgement bool
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		notifier:   notifier,
		mailer:     deps.Mailer,
		logger:     logger,
		ackEnabled: deps.SendAcknowledgement,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketReopened, n.handleTicketReopened)
	n.dispatcher.Subscribe(events.EventTicketMessageAdded, n.handleTicketMessageAdded)
	n.dispatcher.Subscribe(events.EventTicketRouted, n.handleTicketRouted)
	n.dispatcher.Subscribe(events.EventSlaBreached, n.handleSlaBreached)
	n.dispatcher.Subscribe(events.EventSlaWarning, n.handleSlaWarning)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("tenant_id", event.TenantID), zap.String("ticket_id", event.TicketID))
	if !n.ackEnabled || n.mailer == nil {
		return nil
	}
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	ticket := payload.Ticket
	if strings.TrimSpace(ticket.RequesterEmail) == "" {
		return nil
	}
	body := fmt.Sprintf("We received your request and opened ticket %s.\nReply to this message to add information.", ticket.Number)
	return n.mailer.Send(ctx, payload.Mailbox, ticket.RequesterEmail,
		threading.FormatSubject(ticket.Number, ticket.Subject), body, threading.OutboundHeaders(ticket.Number))
}

func (n *NotificationService) handleTicketReopened(_ context.Context, event events.Event) error {
	n.logger.Info("TicketReopened", zap.String("tenant_id", event.TenantID), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketMessageAdded(_ context.Context, event events.Event) error {
	n.logger.Debug("TicketMessageAdded", zap.String("tenant_id", event.TenantID), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketRouted(_ context.Context, event events.Event) error {
	n.logger.Info("TicketRouted", zap.String("tenant_id", event.TenantID), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleSlaBreached(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SlaBreachedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	return n.notifier.NotifyBreach(ctx, payload.Ticket, payload.Kind)
}

func (n *NotificationService) handleSlaWarning(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SlaWarningPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	return n.notifier.NotifyWarning(ctx, payload.Ticket, payload.Kind, payload.MinutesRemaining)
}

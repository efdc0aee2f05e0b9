// Package notify delivers SLA notifications. Delivery is best effort: callers log
// failures and never retry.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/mail"
)

// Notifier is the outbound notification sink.
type Notifier interface {
	NotifyBreach(ctx context.Context, ticket domain.Ticket, kind domain.BreachKind) error
	NotifyWarning(ctx context.Context, ticket domain.Ticket, kind domain.BreachKind, minutesRemaining int) error
}

// LogNotifier writes notifications to the log only.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a log notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyBreach(_ context.Context, ticket domain.Ticket, kind domain.BreachKind) error {
	n.logger.Warn("sla breached",
		zap.String("tenant_id", ticket.TenantID),
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.Number),
		zap.String("kind", string(kind)))
	return nil
}

func (n *LogNotifier) NotifyWarning(_ context.Context, ticket domain.Ticket, kind domain.BreachKind, minutesRemaining int) error {
	n.logger.Info("sla warning",
		zap.String("tenant_id", ticket.TenantID),
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.Number),
		zap.String("kind", string(kind)),
		zap.Int("minutes_remaining", minutesRemaining))
	return nil
}

type webhookPayload struct {
	Event            string            `json:"event"`
	TenantID         string            `json:"tenant_id"`
	TicketID         string            `json:"ticket_id"`
	TicketNumber     string            `json:"ticket_number"`
	Priority         string            `json:"priority"`
	Kind             domain.BreachKind `json:"kind"`
	MinutesRemaining *int              `json:"minutes_remaining,omitempty"`
	SentAt           time.Time         `json:"sent_at"`
}

// WebhookNotifier POSTs a JSON document per notification.
type WebhookNotifier struct {
	url     string
	timeout time.Duration
}

// NewWebhookNotifier builds a webhook notifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{url: url, timeout: timeout}
}

func (n *WebhookNotifier) NotifyBreach(ctx context.Context, ticket domain.Ticket, kind domain.BreachKind) error {
	return n.post(ctx, webhookPayload{
		Event:        "sla.breached",
		TenantID:     ticket.TenantID,
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number,
		Priority:     string(ticket.Priority),
		Kind:         kind,
		SentAt:       time.Now().UTC(),
	})
}

func (n *WebhookNotifier) NotifyWarning(ctx context.Context, ticket domain.Ticket, kind domain.BreachKind, minutesRemaining int) error {
	return n.post(ctx, webhookPayload{
		Event:            "sla.warning",
		TenantID:         ticket.TenantID,
		TicketID:         ticket.ID,
		TicketNumber:     ticket.Number,
		Priority:         string(ticket.Priority),
		Kind:             kind,
		MinutesRemaining: &minutesRemaining,
		SentAt:           time.Now().UTC(),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agent := fiber.Post(n.url).JSON(payload)
	if n.timeout > 0 {
		agent = agent.Timeout(n.timeout)
	}
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook %s: %w", n.url, errors.Join(errs...))
	}
	if code >= fiber.StatusBadRequest {
		return fmt.Errorf("webhook %s: unexpected status %d", n.url, code)
	}
	return nil
}

// EmailNotifier mails an operations address through the tenant's mailbox.
type EmailNotifier struct {
	sender mail.Sender
	from   domain.Mailbox
	to     string
}

// NewEmailNotifier builds an email notifier sending from the given address.
func NewEmailNotifier(sender mail.Sender, fromAddress, to string) *EmailNotifier {
	return &EmailNotifier{sender: sender, from: domain.Mailbox{ID: "notifications", Address: fromAddress}, to: to}
}

func (n *EmailNotifier) NotifyBreach(ctx context.Context, ticket domain.Ticket, kind domain.BreachKind) error {
	subject := fmt.Sprintf("[SLA breached] %s %s", ticket.Number, kind)
	body := fmt.Sprintf("Ticket %s (%s, priority %s) breached its %s target.\n\nSubject: %s\n",
		ticket.Number, ticket.TenantID, ticket.Priority, kind, ticket.Subject)
	return n.sender.Send(ctx, n.from, n.to, subject, body, nil)
}

func (n *EmailNotifier) NotifyWarning(ctx context.Context, ticket domain.Ticket, kind domain.BreachKind, minutesRemaining int) error {
	subject := fmt.Sprintf("[SLA warning] %s %s", ticket.Number, kind)
	body := fmt.Sprintf("Ticket %s (%s, priority %s) has %d minutes left on its %s target.\n\nSubject: %s\n",
		ticket.Number, ticket.TenantID, ticket.Priority, minutesRemaining, kind, ticket.Subject)
	return n.sender.Send(ctx, n.from, n.to, subject, body, nil)
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) NotifyBreach(ctx context.Context, ticket domain.Ticket, kind domain.BreachKind) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyBreach(ctx, ticket, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyWarning(ctx context.Context, ticket domain.Ticket, kind domain.BreachKind, minutesRemaining int) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyWarning(ctx, ticket, kind, minutesRemaining); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

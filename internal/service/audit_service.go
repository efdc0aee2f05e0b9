package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spec-kit/supporthub/internal/audit"
	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/events"
)

// AuditService turns routing and breach events into ticket history entries.
type AuditService struct {
	dispatcher events.Dispatcher
	sink       audit.Sink
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, sink audit.Sink) *AuditService {
	return &AuditService{dispatcher: dispatcher, sink: sink}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil || a.sink == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketRouted, a.handleTicketRouted)
	a.dispatcher.Subscribe(events.EventSlaBreached, a.handleSlaBreached)
}

func (a *AuditService) handleTicketRouted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketRoutedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	newValue := stateMap(payload.New)
	newValue["fallback"] = payload.Fallback
	newValue["changed"] = payload.Changed
	if payload.RuleID != "" {
		newValue["rule_id"] = payload.RuleID
	}
	return a.sink.Record(ctx, domain.TicketHistory{
		ID:         uuid.NewString(),
		TenantID:   event.TenantID,
		TicketID:   event.TicketID,
		Actor:      event.Actor,
		Action:     domain.AuditActionRoutingApplied,
		OldValue:   stateMap(payload.Old),
		NewValue:   newValue,
		OccurredAt: event.Timestamp,
	})
}

func (a *AuditService) handleSlaBreached(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SlaBreachedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	return a.sink.Record(ctx, domain.TicketHistory{
		ID:       uuid.NewString(),
		TenantID: event.TenantID,
		TicketID: event.TicketID,
		Actor:    event.Actor,
		Action:   domain.AuditActionSlaBreachRecorded,
		NewValue: map[string]any{
			"kind":        string(payload.Kind),
			"detected_at": payload.DetectedAt,
			"priority":    string(payload.Ticket.Priority),
		},
		OccurredAt: event.Timestamp,
	})
}

func stateMap(s events.RoutingState) map[string]any {
	m := map[string]any{
		"priority": string(s.Priority),
		"tags":     s.Tags,
	}
	if s.QueueID != nil {
		m["queue_id"] = *s.QueueID
	}
	if s.AgentID != nil {
		m["agent_id"] = *s.AgentID
	}
	return m
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/events"
	"github.com/spec-kit/supporthub/internal/repository"
	"github.com/spec-kit/supporthub/internal/routing"
	apperrors "github.com/spec-kit/supporthub/pkg/util/errorutil"
)

// QueueDirectory lists the queues a tenant owns.
type QueueDirectory interface {
	QueueIDs(ctx context.Context, tenantID string) (map[string]struct{}, error)
}

// RoutingService applies routing decisions to tickets and maintains rule lists.
type RoutingService struct {
	engine     *routing.Engine
	tickets    repository.TicketStore
	rules      repository.RoutingRuleRepository
	queues     QueueDirectory
	dispatcher events.Dispatcher
	logger     *zap.Logger
	retries    int
}

// RoutingDependencies bundles collaborators for the routing service.
type RoutingDependencies struct {
	Engine          *routing.Engine
	TicketStore     repository.TicketStore
	RuleRepo        repository.RoutingRuleRepository
	Queues          QueueDirectory
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	ConflictRetries int
}

// NewRoutingService constructs the service.
func NewRoutingService(deps RoutingDependencies) *RoutingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingService{
		engine:     deps.Engine,
		tickets:    deps.TicketStore,
		rules:      deps.RuleRepo,
		queues:     deps.Queues,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		retries:    deps.ConflictRetries,
	}
}

// Route evaluates set against the ticket and writes the resulting queue, agent,
// priority and tags. A conflicting concurrent write causes a re-read and a fresh
// evaluation. Every applied decision (rule match or fallback) is published, even
// when it leaves the ticket as it was; the store is only written on change.
func (s *RoutingService) Route(ctx context.Context, set routing.RuleSet, tenantID, ticketID, body string) (routing.Decision, error) {
	var decision routing.Decision
	var before, after events.RoutingState
	var changed bool

	err := retryOnConflict(ctx, s.retries, func() error {
		ticket, err := s.tickets.GetByID(ctx, tenantID, ticketID)
		if err != nil {
			return err
		}
		decision = s.engine.Evaluate(routing.ContextFromTicket(ticket, body), set)
		before = routingState(ticket)
		applyDecision(ticket, decision)
		after = routingState(ticket)
		changed = !sameRoutingState(before, after)
		if !changed {
			return nil
		}
		return s.tickets.Update(ctx, ticket)
	})
	for _, ruleErr := range decision.Errors {
		s.logger.Warn("routing rule skipped",
			zap.String("tenant_id", tenantID),
			zap.String("ticket_id", ticketID),
			zap.String("rule_id", ruleErr.RuleID),
			zap.Error(ruleErr.Err))
	}
	if err != nil {
		return decision, fmt.Errorf("route ticket %s: %w", ticketID, err)
	}
	if !decision.Matched() && !decision.Fallback {
		return decision, nil
	}

	publish(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketRouted,
		TenantID: tenantID,
		TicketID: ticketID,
		Payload: events.TicketRoutedPayload{
			RuleID:   decision.RuleID,
			Fallback: decision.Fallback,
			Changed:  changed,
			Old:      before,
			New:      after,
		},
	})
	return decision, nil
}

// ReplaceRules validates rules against the tenant's queues and replaces the
// tenant's rule list. Rule ids are generated when missing.
func (s *RoutingService) ReplaceRules(ctx context.Context, tenantID string, rules []domain.RoutingRule) ([]domain.RoutingRule, error) {
	queueIDs, err := s.queues.QueueIDs(ctx, tenantID)
	if err != nil {
		return nil, apperrors.MapError(fmt.Errorf("load queues: %w", err))
	}
	if err := s.engine.ValidateRules(tenantID, rules, queueIDs); err != nil {
		return nil, apperrors.NewValidationError("invalid routing rules", map[string]any{"errors": splitJoined(err)})
	}

	out := make([]domain.RoutingRule, len(rules))
	for i, rule := range rules {
		rule.TenantID = tenantID
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		out[i] = rule
	}
	if err := s.rules.ReplaceForTenant(ctx, tenantID, out); err != nil {
		if errors.Is(err, repository.ErrDuplicateSortPosition) {
			return nil, apperrors.NewConflict("duplicate sort position", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return out, nil
}

// ListRules returns the tenant's rules in stored order.
func (s *RoutingService) ListRules(ctx context.Context, tenantID string) ([]domain.RoutingRule, error) {
	return s.rules.ListByTenant(ctx, tenantID)
}

// splitJoined flattens an errors.Join result into its messages.
func splitJoined(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func applyDecision(ticket *domain.Ticket, decision routing.Decision) {
	if decision.QueueID != nil {
		queueID := *decision.QueueID
		ticket.AssignedQueueID = &queueID
	}
	if decision.AssignAgentID != nil {
		agentID := *decision.AssignAgentID
		ticket.AssignedAgentID = &agentID
	}
	if decision.Priority != nil {
		ticket.Priority = *decision.Priority
	}
	ticket.AddTags(decision.AddTags...)
}

func routingState(ticket *domain.Ticket) events.RoutingState {
	return events.RoutingState{
		QueueID:  copyString(ticket.AssignedQueueID),
		AgentID:  copyString(ticket.AssignedAgentID),
		Priority: ticket.Priority,
		Tags:     append([]string{}, ticket.Tags...),
	}
}

func sameRoutingState(a, b events.RoutingState) bool {
	if !equalStringPtr(a.QueueID, b.QueueID) || !equalStringPtr(a.AgentID, b.AgentID) || a.Priority != b.Priority {
		return false
	}
	// routing only ever adds tags
	return len(a.Tags) == len(b.Tags)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

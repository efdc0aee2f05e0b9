package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/repository"
	"github.com/spec-kit/supporthub/internal/sla"
	apperrors "github.com/spec-kit/supporthub/pkg/util/errorutil"
)

// SlaService answers on-demand SLA queries for a single ticket.
type SlaService struct {
	tickets  repository.TicketStore
	policies repository.SlaPolicyRepository
	records  repository.SlaRecordRepository
	now      func() time.Time
}

// SlaDependencies bundles collaborators for the SLA service.
type SlaDependencies struct {
	TicketStore repository.TicketStore
	PolicyRepo  repository.SlaPolicyRepository
	RecordRepo  repository.SlaRecordRepository
	Clock       func() time.Time
}

// TicketSla is the SLA view of one ticket.
type TicketSla struct {
	Ticket   *domain.Ticket
	Status   sla.Status
	Breaches []domain.SlaBreachRecord
}

// NewSlaService constructs the service.
func NewSlaService(deps SlaDependencies) *SlaService {
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &SlaService{
		tickets:  deps.TicketStore,
		policies: deps.PolicyRepo,
		records:  deps.RecordRepo,
		now:      clock,
	}
}

// TicketStatus evaluates the ticket's clocks now and lists its recorded breaches.
func (s *SlaService) TicketStatus(ctx context.Context, tenantID, number string) (*TicketSla, error) {
	normalized, err := domain.ParseTicketNumber(number)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid ticket number", map[string]any{"number": number})
	}
	ticket, err := s.tickets.GetByNumber(ctx, tenantID, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"number": normalized})
		}
		return nil, apperrors.MapError(err)
	}
	policies, err := s.policies.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	breaches, err := s.records.ListBreaches(ctx, tenantID, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketSla{
		Ticket:   ticket,
		Status:   sla.Evaluate(ticket, sla.PolicyFor(policies, ticket.Priority), s.now()),
		Breaches: breaches,
	}, nil
}

// UpsertPolicy validates and stores a tenant policy.
func (s *SlaService) UpsertPolicy(ctx context.Context, policy *domain.SlaPolicy) error {
	if err := policy.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"priority": policy.Priority})
	}
	if err := s.policies.Upsert(ctx, policy); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// ListPolicies returns the tenant's policies.
func (s *SlaService) ListPolicies(ctx context.Context, tenantID string) ([]domain.SlaPolicy, error) {
	return s.policies.ListByTenant(ctx, tenantID)
}

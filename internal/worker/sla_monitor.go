package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/events"
	"github.com/spec-kit/supporthub/internal/observability"
	"github.com/spec-kit/supporthub/internal/repository"
	"github.com/spec-kit/supporthub/internal/sla"
	"github.com/spec-kit/supporthub/internal/tenant"
)

// TenantCheck summarizes one tenant's pass of the SLA monitor.
type TenantCheck struct {
	TenantID  string `json:"tenant_id"`
	Evaluated int    `json:"evaluated"`
	NoPolicy  int    `json:"no_policy"`
	Breaches  int    `json:"breaches"`
	Warnings  int    `json:"warnings"`
	Failed    int    `json:"failed"`
}

// SlaMonitor periodically evaluates open tickets and records breaches and warnings once.
type SlaMonitor struct {
	directory   *tenant.Directory
	tickets     repository.TicketStore
	records     repository.SlaRecordRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	pageSize    int
	concurrency int
	now         func() time.Time
}

// SlaMonitorDependencies bundles collaborators for the monitor.
type SlaMonitorDependencies struct {
	Directory   *tenant.Directory
	TicketStore repository.TicketStore
	RecordRepo  repository.SlaRecordRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	PageSize    int
	Concurrency int
	Clock       func() time.Time
}

// NewSlaMonitor constructs the monitor.
func NewSlaMonitor(deps SlaMonitorDependencies) *SlaMonitor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	return &SlaMonitor{
		directory:   deps.Directory,
		tickets:     deps.TicketStore,
		records:     deps.RecordRepo,
		dispatcher:  deps.Dispatcher,
		logger:      logger.With(zap.String("pipeline", observability.PipelineSlaMonitor)),
		metrics:     deps.Metrics,
		pageSize:    pageSize,
		concurrency: deps.Concurrency,
		now:         clock,
	}
}

// RunAll checks every active tenant and records the run.
func (m *SlaMonitor) RunAll(ctx context.Context) observability.RunSummary {
	summary := observability.RunSummary{
		Pipeline:  observability.PipelineSlaMonitor,
		StartedAt: m.now(),
		Counts:    map[string]int{},
	}

	checks := make(chan TenantCheck)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range checks {
			summary.Counts["evaluated"] += c.Evaluated
			summary.Counts["no_policy"] += c.NoPolicy
			summary.Counts["breaches"] += c.Breaches
			summary.Counts["warnings"] += c.Warnings
			summary.Counts["failed"] += c.Failed
		}
	}()

	tenants, errs := forEachTenant(ctx, m.directory, m.concurrency, m.logger, func(ctx context.Context, t domain.Tenant) error {
		check, err := m.CheckTenant(ctx, t)
		checks <- check
		return err
	})
	close(checks)
	<-done

	summary.Tenants = tenants
	summary.Errors = errs
	summary.FinishedAt = m.now()
	m.metrics.RecordRun(summary)
	m.logger.Info("sla monitor run finished",
		zap.Int("tenants", tenants),
		zap.Int("evaluated", summary.Counts["evaluated"]),
		zap.Int("breaches", summary.Counts["breaches"]),
		zap.Int("warnings", summary.Counts["warnings"]),
		zap.Int("errors", len(errs)))
	return summary
}

// CheckTenant evaluates every open ticket of t against the tenant's policies as
// they were when the pass started.
func (m *SlaMonitor) CheckTenant(ctx context.Context, t domain.Tenant) (TenantCheck, error) {
	check := TenantCheck{TenantID: t.ID}
	snap, err := m.directory.Snapshot(ctx, t.ID)
	if err != nil {
		return check, err
	}
	now := m.now()

	for offset := 0; ; offset += m.pageSize {
		page, err := m.tickets.ListOpen(ctx, t.ID, m.pageSize, offset)
		if err != nil {
			return check, fmt.Errorf("list open tickets: %w", err)
		}
		for i := range page {
			if err := ctx.Err(); err != nil {
				return check, err
			}
			m.checkTicket(ctx, snap, &page[i], now, &check)
		}
		if len(page) < m.pageSize {
			return check, nil
		}
	}
}

func (m *SlaMonitor) checkTicket(ctx context.Context, snap *tenant.Snapshot, ticket *domain.Ticket, now time.Time, check *TenantCheck) {
	policy := snap.Policy(ticket.Priority)
	if policy == nil {
		check.NoPolicy++
		return
	}
	check.Evaluated++
	status := sla.Evaluate(ticket, policy, now)

	for _, clock := range status.Clocks() {
		var err error
		switch clock.Tier {
		case sla.TierBreached:
			err = m.recordBreach(ctx, ticket, clock, now, check)
		case sla.TierWarning, sla.TierCritical:
			err = m.recordWarning(ctx, ticket, clock, now, check)
		}
		if err != nil {
			check.Failed++
			m.logger.Error("record sla state",
				zap.String("tenant_id", ticket.TenantID),
				zap.String("ticket_id", ticket.ID),
				zap.String("kind", string(clock.Kind)),
				zap.Error(err))
		}
	}
}

func (m *SlaMonitor) recordBreach(ctx context.Context, ticket *domain.Ticket, clock sla.ClockStatus, now time.Time, check *TenantCheck) error {
	inserted, err := m.records.InsertBreach(ctx, &domain.SlaBreachRecord{
		ID:         uuid.NewString(),
		TenantID:   ticket.TenantID,
		TicketID:   ticket.ID,
		Kind:       clock.Kind,
		DetectedAt: now,
	})
	if err != nil || !inserted {
		return err
	}
	check.Breaches++
	m.publish(ctx, events.Event{
		Type:     events.EventSlaBreached,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload:  events.SlaBreachedPayload{Ticket: *ticket.Clone(), Kind: clock.Kind, DetectedAt: now},
	})
	return nil
}

func (m *SlaMonitor) recordWarning(ctx context.Context, ticket *domain.Ticket, clock sla.ClockStatus, now time.Time, check *TenantCheck) error {
	minutes := clock.MinutesRemaining()
	inserted, err := m.records.InsertWarning(ctx, &domain.SlaWarningRecord{
		ID:               uuid.NewString(),
		TenantID:         ticket.TenantID,
		TicketID:         ticket.ID,
		Kind:             clock.Kind,
		MinutesRemaining: minutes,
		DetectedAt:       now,
	})
	if err != nil || !inserted {
		return err
	}
	check.Warnings++
	m.publish(ctx, events.Event{
		Type:     events.EventSlaWarning,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.SlaWarningPayload{
			Ticket:           *ticket.Clone(),
			Kind:             clock.Kind,
			Tier:             string(clock.Tier),
			MinutesRemaining: minutes,
		},
	})
	return nil
}

func (m *SlaMonitor) publish(ctx context.Context, event events.Event) {
	if m.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Actor = domain.ActorSystem
	event.Timestamp = m.now()
	_ = m.dispatcher.Publish(ctx, event)
}

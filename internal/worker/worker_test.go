package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/supporthub/internal/audit"
	"github.com/spec-kit/supporthub/internal/blob"
	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/events"
	"github.com/spec-kit/supporthub/internal/mail"
	"github.com/spec-kit/supporthub/internal/observability"
	"github.com/spec-kit/supporthub/internal/repository"
	"github.com/spec-kit/supporthub/internal/repository/memory"
	"github.com/spec-kit/supporthub/internal/routing"
	"github.com/spec-kit/supporthub/internal/service"
	"github.com/spec-kit/supporthub/internal/tenant"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeNotifier struct {
	mu       sync.Mutex
	breaches []domain.BreachKind
	warnings []int
}

func (f *fakeNotifier) NotifyBreach(_ context.Context, _ domain.Ticket, kind domain.BreachKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breaches = append(f.breaches, kind)
	return nil
}

func (f *fakeNotifier) NotifyWarning(_ context.Context, _ domain.Ticket, _ domain.BreachKind, minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warnings = append(f.warnings, minutes)
	return nil
}

type pipeline struct {
	clock     *testClock
	store     *memory.Store
	provider  *mail.MemoryProvider
	blobs     *blob.MemoryStore
	notifier  *fakeNotifier
	metrics   *observability.Metrics
	directory *tenant.Directory
	ingestion *IngestionWorker
	monitor   *SlaMonitor
}

type pipelineOption func(*service.TicketDependencies)

// withTicketStore swaps the store the ticket service writes through.
func withTicketStore(wrap func(repository.TicketStore) repository.TicketStore) pipelineOption {
	return func(d *service.TicketDependencies) { d.TicketStore = wrap(d.TicketStore) }
}

func newPipeline(t *testing.T, opts ...pipelineOption) *pipeline {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}

	seed, err := tenant.LoadSeed("../tenant/testdata/seed.yaml")
	require.NoError(t, err)
	store := memory.NewStore()
	store.SetClock(clock.Now)
	engine := routing.NewEngine(routing.Options{})
	require.NoError(t, seed.Apply(context.Background(), tenant.SeedTargets{
		Tenants:  store.Tenants(),
		Rules:    store.Rules(),
		Policies: store.Policies(),
		Tickets:  store,
		Engine:   engine,
	}))

	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher(logger)
	provider := mail.NewMemoryProvider()
	notifier := &fakeNotifier{}
	metrics := observability.NewMetrics()
	blobs := blob.NewMemoryStore()
	directory := tenant.NewDirectory(store.Tenants(), store.Rules(), store.Policies(), []string{"mailer-daemon@example.com"})

	StartNotificationWorker(
		service.NewNotificationService(service.NotificationDependencies{
			Dispatcher:          dispatcher,
			Notifier:            notifier,
			Mailer:              provider,
			Logger:              logger,
			SendAcknowledgement: true,
		}),
		service.NewAuditService(dispatcher, audit.NewHistorySink(store.History())),
	)

	ticketDeps := service.TicketDependencies{
		TicketStore:     store.Tickets(),
		Dispatcher:      dispatcher,
		ConflictRetries: 3,
		Clock:           clock.Now,
	}
	for _, opt := range opts {
		opt(&ticketDeps)
	}
	tickets := service.NewTicketService(ticketDeps)
	routingSvc := service.NewRoutingService(service.RoutingDependencies{
		Engine:          engine,
		TicketStore:     store.Tickets(),
		RuleRepo:        store.Rules(),
		Queues:          directory,
		Dispatcher:      dispatcher,
		Logger:          logger,
		ConflictRetries: 3,
	})

	return &pipeline{
		clock:     clock,
		store:     store,
		provider:  provider,
		blobs:     blobs,
		notifier:  notifier,
		metrics:   metrics,
		directory: directory,
		ingestion: NewIngestionWorker(IngestionDependencies{
			Directory:   directory,
			Provider:    provider,
			InboundRepo: store.Inbound(),
			TicketStore: store.Tickets(),
			Tickets:     tickets,
			Routing:     routingSvc,
			Blobs:       blobs,
			Logger:      logger,
			Metrics:     metrics,
			BatchSize:   100,
			Concurrency: 2,
			Clock:       clock.Now,
		}),
		monitor: NewSlaMonitor(SlaMonitorDependencies{
			Directory:   directory,
			TicketStore: store.Tickets(),
			RecordRepo:  store.SlaRecords(),
			Dispatcher:  dispatcher,
			Logger:      logger,
			Metrics:     metrics,
			PageSize:    2,
			Concurrency: 2,
			Clock:       clock.Now,
		}),
	}
}

func acmeTenant() domain.Tenant {
	return domain.Tenant{ID: "acme", Name: "Acme Corp", Active: true}
}

func message(id, from, subject string) mail.Message {
	return mail.Message{
		ExternalID: id,
		From:       from,
		Subject:    subject,
		Body:       "body of " + id,
		ReceivedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

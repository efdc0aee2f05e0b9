package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/events"
	"github.com/spec-kit/supporthub/internal/repository/memory"
	"github.com/spec-kit/supporthub/internal/routing"
	"github.com/spec-kit/supporthub/internal/tenant"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newRecordingDispatcher() (events.Dispatcher, *recorder) {
	d := events.NewInMemoryDispatcher(zap.NewNop())
	rec := &recorder{}
	for _, t := range []events.EventType{
		events.EventTicketCreated, events.EventTicketReopened, events.EventTicketMessageAdded,
		events.EventTicketRouted, events.EventSlaBreached, events.EventSlaWarning,
	} {
		d.Subscribe(t, rec.handle)
	}
	return d, rec
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	seed, err := tenant.LoadSeed("../tenant/testdata/seed.yaml")
	require.NoError(t, err)
	store := memory.NewStore()
	store.SetClock(clock)
	require.NoError(t, seed.Apply(context.Background(), tenant.SeedTargets{
		Tenants:  store.Tenants(),
		Rules:    store.Rules(),
		Policies: store.Policies(),
		Tickets:  store,
		Engine:   routing.NewEngine(routing.Options{}),
	}))
	return store
}

func acmeMailbox() domain.Mailbox {
	return domain.Mailbox{ID: "acme-support", TenantID: "acme", Address: "support@acme.com", Active: true}
}

func inbound(externalID, from, subject string) InboundInput {
	return InboundInput{
		TenantID:    "acme",
		Mailbox:     acmeMailbox(),
		ExternalID:  externalID,
		FromAddress: from,
		Subject:     subject,
		Body:        "hello there",
		ReceivedAt:  fixedNow,
	}
}

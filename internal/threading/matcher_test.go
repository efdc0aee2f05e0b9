package threading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/repository/memory"
)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	created := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	store.PutTicket(&domain.Ticket{ID: "acme-7", TenantID: "acme", Number: "TKT-20260101-0007", Status: domain.TicketStatusResolved, CreatedAt: created})
	store.PutTicket(&domain.Ticket{ID: "acme-8", TenantID: "acme", Number: "TKT-20260101-0008", Status: domain.TicketStatusOpen, CreatedAt: created})
	store.PutTicket(&domain.Ticket{ID: "globex-9", TenantID: "globex", Number: "TKT-20260101-0009", Status: domain.TicketStatusOpen, CreatedAt: created})
	deleted := created.Add(time.Hour)
	store.PutTicket(&domain.Ticket{ID: "acme-gone", TenantID: "acme", Number: "TKT-20260101-0010", Status: domain.TicketStatusOpen, CreatedAt: created, DeletedAt: &deleted})
	return store
}

func TestMatchHeaderWinsOverSubject(t *testing.T) {
	m := NewMatcher(seed(t).Tickets())

	res, err := m.Match(context.Background(), "acme",
		map[string]string{"x-supporthub-ticketid": "TKT-20260101-0007"},
		"Re: [SH-TKT-20260101-0008] still broken")
	require.NoError(t, err)

	require.False(t, res.IsNew())
	assert.Equal(t, "acme-7", res.Ticket.ID)
	assert.Equal(t, MatchSourceHeader, res.Source)
}

func TestMatchFallsBackToSubjectToken(t *testing.T) {
	m := NewMatcher(seed(t).Tickets())

	res, err := m.Match(context.Background(), "acme",
		map[string]string{HeaderTicketID: "TKT-20260101-9999"},
		"Re: [SH-tkt-20260101-0008] still broken")
	require.NoError(t, err)

	require.False(t, res.IsNew())
	assert.Equal(t, "acme-8", res.Ticket.ID)
	assert.Equal(t, MatchSourceSubject, res.Source)
}

func TestMatchIgnoresOtherTenantsTickets(t *testing.T) {
	m := NewMatcher(seed(t).Tickets())

	res, err := m.Match(context.Background(), "acme",
		map[string]string{HeaderTicketID: "TKT-20260101-0009"},
		"[SH-TKT-20260101-0009] hello")
	require.NoError(t, err)
	assert.True(t, res.IsNew())
	assert.Equal(t, MatchSourceNone, res.Source)
}

func TestMatchIgnoresDeletedAndMalformed(t *testing.T) {
	m := NewMatcher(seed(t).Tickets())

	res, err := m.Match(context.Background(), "acme",
		map[string]string{HeaderTicketID: "TKT-20260101-0010"},
		"[SH-not-a-number] hello")
	require.NoError(t, err)
	assert.True(t, res.IsNew())
}

type failingLookup struct{}

func (failingLookup) GetByNumber(context.Context, string, string) (*domain.Ticket, error) {
	return nil, errors.New("connection reset")
}

func TestMatchSurfacesStoreErrors(t *testing.T) {
	m := NewMatcher(failingLookup{})

	_, err := m.Match(context.Background(), "acme", map[string]string{HeaderTicketID: "TKT-20260101-0007"}, "")
	assert.Error(t, err)
}

func TestFormatSubject(t *testing.T) {
	assert.Equal(t, "[SH-TKT-20260101-0007] Printer", FormatSubject("TKT-20260101-0007", "Printer"))
	assert.Equal(t, "Re: [SH-TKT-20260101-0007] Printer", FormatSubject("TKT-20260101-0007", "Re: [SH-TKT-20260101-0007] Printer"))

	assert.Equal(t, []string{"TKT-20260101-0007"}, SubjectTokens(FormatSubject("TKT-20260101-0007", "")))
}

func TestSubjectTokensSkipsMalformed(t *testing.T) {
	assert.Equal(t, []string{"TKT-20260101-0007", "TKT-20260101-0008"},
		SubjectTokens("Re: [SH-foo] about [SH-TKT-20260101-0007] and [SH-tkt-20260101-0008]"))
	assert.Empty(t, SubjectTokens("no token here"))
}

func TestMatchTriesEverySubjectToken(t *testing.T) {
	m := NewMatcher(seed(t).Tickets())

	res, err := m.Match(context.Background(), "acme", nil,
		"Re: [SH-foo] see [SH-TKT-20260101-0009] and [SH-TKT-20260101-0007]")
	require.NoError(t, err)

	require.False(t, res.IsNew())
	assert.Equal(t, "acme-7", res.Ticket.ID)
	assert.Equal(t, MatchSourceSubject, res.Source)
}

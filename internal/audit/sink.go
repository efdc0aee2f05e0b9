// Package audit is the write-only sink for pipeline-originated ticket changes.
package audit

import (
	"context"
	"errors"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/repository"
)

// Sink records audit entries.
type Sink interface {
	Record(ctx context.Context, entry domain.TicketHistory) error
}

// HistorySink writes entries to the ticket_history table.
type HistorySink struct {
	repo repository.TicketHistoryRepository
}

// NewHistorySink builds a sink over repo.
func NewHistorySink(repo repository.TicketHistoryRepository) *HistorySink {
	return &HistorySink{repo: repo}
}

func (s *HistorySink) Record(ctx context.Context, entry domain.TicketHistory) error {
	return s.repo.Create(ctx, &entry)
}

// Multi fans an entry out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, entry domain.TicketHistory) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

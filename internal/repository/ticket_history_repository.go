package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/supporthub/internal/domain"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, tenantID, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.OccurredAt.IsZero() {
		history.OccurredAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO ticket_history (id, tenant_id, ticket_id, actor, action, old_value, new_value, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		history.ID,
		history.TenantID,
		history.TicketID,
		history.Actor,
		history.Action,
		history.OldValue,
		history.NewValue,
		history.OccurredAt,
	)
	return err
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, tenantID, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, tenant_id, ticket_id, actor, action, old_value, new_value, occurred_at
        FROM ticket_history WHERE tenant_id=$1 AND ticket_id=$2 ORDER BY occurred_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TenantID,
			&history.TicketID,
			&history.Actor,
			&history.Action,
			&history.OldValue,
			&history.NewValue,
			&history.OccurredAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/supporthub/internal/domain"
)

// InboundMessageRepository is the per-tenant ingestion log. It doubles as the
// deduplication index on (tenant_id, external_message_id).
type InboundMessageRepository interface {
	Exists(ctx context.Context, tenantID, externalMessageID string) (bool, error)
	// Record inserts rec unless the external id is already known; it reports
	// whether a row was written.
	Record(ctx context.Context, rec *domain.InboundMessageRecord) (bool, error)
	ListRecent(ctx context.Context, tenantID string, limit int) ([]domain.InboundMessageRecord, error)
}

type inboundMessageRepository struct {
	pool *pgxpool.Pool
}

// NewInboundMessageRepository builds repository.
func NewInboundMessageRepository(pool *pgxpool.Pool) InboundMessageRepository {
	return &inboundMessageRepository{pool: pool}
}

func (r *inboundMessageRepository) Exists(ctx context.Context, tenantID, externalMessageID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM inbound_messages WHERE tenant_id=$1 AND external_message_id=$2)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, tenantID, externalMessageID).Scan(&exists)
	return exists, err
}

func (r *inboundMessageRepository) Record(ctx context.Context, rec *domain.InboundMessageRecord) (bool, error) {
	err := insertInboundRecord(ctx, r.pool, rec)
	if errors.Is(err, ErrDuplicateInbound) {
		return false, nil
	}
	return err == nil, err
}

func (r *inboundMessageRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]domain.InboundMessageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `
        SELECT id, tenant_id, mailbox_id, external_message_id, ticket_id, outcome, reason, processed_at
        FROM inbound_messages WHERE tenant_id=$1 ORDER BY processed_at DESC, id DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.InboundMessageRecord
	for rows.Next() {
		var rec domain.InboundMessageRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&rec.MailboxID,
			&rec.ExternalMessageID,
			&rec.TicketID,
			&rec.Outcome,
			&rec.Reason,
			&rec.ProcessedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// insertInboundRecord returns ErrDuplicateInbound when the tenant already holds
// a record for the external id, leaving any surrounding transaction to roll back.
func insertInboundRecord(ctx context.Context, db dbtx, rec *domain.InboundMessageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO inbound_messages (id, tenant_id, mailbox_id, external_message_id, ticket_id, outcome, reason, processed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (tenant_id, external_message_id) DO NOTHING
        RETURNING id`
	var id string
	err := db.QueryRow(ctx, query,
		rec.ID,
		rec.TenantID,
		rec.MailboxID,
		rec.ExternalMessageID,
		rec.TicketID,
		rec.Outcome,
		rec.Reason,
		rec.ProcessedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateInbound
	}
	return err
}

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

// SlaPolicyRepository reads per-tenant SLA targets.
type SlaPolicyRepository interface {
	ListByTenant(ctx context.Context, tenantID string) ([]domain.SlaPolicy, error)
	Upsert(ctx context.Context, policy *domain.SlaPolicy) error
}

// SlaRecordRepository stores breach and warning facts. Inserts are idempotent on
// (ticket_id, kind) and report whether a new row was written.
type SlaRecordRepository interface {
	InsertBreach(ctx context.Context, rec *domain.SlaBreachRecord) (bool, error)
	InsertWarning(ctx context.Context, rec *domain.SlaWarningRecord) (bool, error)
	ListBreaches(ctx context.Context, tenantID, ticketID string) ([]domain.SlaBreachRecord, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSlaPolicyRepository builds repository.
func NewSlaPolicyRepository(pool *pgxpool.Pool) SlaPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

func (r *slaPolicyRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.SlaPolicy, error) {
	const query = `
        SELECT id, tenant_id, priority, first_response_minutes, resolution_minutes, created_at, updated_at
        FROM sla_policies WHERE tenant_id=$1 ORDER BY priority`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaPolicy
	for rows.Next() {
		var policy domain.SlaPolicy
		if err := rows.Scan(
			&policy.ID,
			&policy.TenantID,
			&policy.Priority,
			&policy.FirstResponseMinutes,
			&policy.ResolutionMinutes,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func (r *slaPolicyRepository) Upsert(ctx context.Context, policy *domain.SlaPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO sla_policies (id, tenant_id, priority, first_response_minutes, resolution_minutes)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (tenant_id, priority) DO UPDATE
            SET first_response_minutes=EXCLUDED.first_response_minutes,
                resolution_minutes=EXCLUDED.resolution_minutes,
                updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.ID,
		policy.TenantID,
		policy.Priority,
		policy.FirstResponseMinutes,
		policy.ResolutionMinutes,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

type slaRecordRepository struct {
	pool *pgxpool.Pool
}

// NewSlaRecordRepository builds repository.
func NewSlaRecordRepository(pool *pgxpool.Pool) SlaRecordRepository {
	return &slaRecordRepository{pool: pool}
}

func (r *slaRecordRepository) InsertBreach(ctx context.Context, rec *domain.SlaBreachRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO sla_breaches (id, tenant_id, ticket_id, kind, detected_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (ticket_id, kind) DO NOTHING
        RETURNING id`
	var id string
	err := r.pool.QueryRow(ctx, query, rec.ID, rec.TenantID, rec.TicketID, rec.Kind, rec.DetectedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *slaRecordRepository) InsertWarning(ctx context.Context, rec *domain.SlaWarningRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO sla_warnings (id, tenant_id, ticket_id, kind, minutes_remaining, detected_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (ticket_id, kind) DO NOTHING
        RETURNING id`
	var id string
	err := r.pool.QueryRow(ctx, query,
		rec.ID, rec.TenantID, rec.TicketID, rec.Kind, rec.MinutesRemaining, rec.DetectedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *slaRecordRepository) ListBreaches(ctx context.Context, tenantID, ticketID string) ([]domain.SlaBreachRecord, error) {
	const query = `
        SELECT id, tenant_id, ticket_id, kind, detected_at
        FROM sla_breaches WHERE tenant_id=$1 AND ticket_id=$2 ORDER BY detected_at ASC`
	rows, err := r.pool.Query(ctx, query, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaBreachRecord
	for rows.Next() {
		var rec domain.SlaBreachRecord
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.TicketID, &rec.Kind, &rec.DetectedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

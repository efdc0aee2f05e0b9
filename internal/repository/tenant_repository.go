package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/supporthub/internal/domain"
)

// TenantRepository exposes tenants with the mailboxes and queues they own.
type TenantRepository interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	Save(ctx context.Context, tenant *domain.Tenant) error
	ListMailboxes(ctx context.Context, tenantID string) ([]domain.Mailbox, error)
	GetMailbox(ctx context.Context, mailboxID string) (*domain.Mailbox, error)
	SaveMailbox(ctx context.Context, mailbox *domain.Mailbox) error
	ListQueues(ctx context.Context, tenantID string) ([]domain.Queue, error)
	SaveQueue(ctx context.Context, queue *domain.Queue) error
}

type tenantRepository struct {
	pool *pgxpool.Pool
}

// NewTenantRepository builds repository.
func NewTenantRepository(pool *pgxpool.Pool) TenantRepository {
	return &tenantRepository{pool: pool}
}

func (r *tenantRepository) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	const query = `
        SELECT id, name, active, default_queue_id, ignored_senders, created_at, updated_at
        FROM tenants WHERE active = TRUE ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Tenant
	for rows.Next() {
		var tenant domain.Tenant
		if err := rows.Scan(
			&tenant.ID,
			&tenant.Name,
			&tenant.Active,
			&tenant.DefaultQueueID,
			&tenant.IgnoredSenders,
			&tenant.CreatedAt,
			&tenant.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, tenant)
	}
	return result, rows.Err()
}

func (r *tenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	const query = `
        SELECT id, name, active, default_queue_id, ignored_senders, created_at, updated_at
        FROM tenants WHERE id=$1`
	var tenant domain.Tenant
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Active,
		&tenant.DefaultQueueID,
		&tenant.IgnoredSenders,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &tenant, nil
}

func (r *tenantRepository) Save(ctx context.Context, tenant *domain.Tenant) error {
	const query = `
        INSERT INTO tenants (id, name, active, default_queue_id, ignored_senders)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE
            SET name=EXCLUDED.name, active=EXCLUDED.active, default_queue_id=EXCLUDED.default_queue_id,
                ignored_senders=EXCLUDED.ignored_senders, updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Active,
		tenant.DefaultQueueID,
		tagsOrEmpty(tenant.IgnoredSenders),
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
}

func (r *tenantRepository) ListMailboxes(ctx context.Context, tenantID string) ([]domain.Mailbox, error) {
	const query = `SELECT id, tenant_id, address, active FROM mailboxes WHERE tenant_id=$1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Mailbox
	for rows.Next() {
		var mailbox domain.Mailbox
		if err := rows.Scan(&mailbox.ID, &mailbox.TenantID, &mailbox.Address, &mailbox.Active); err != nil {
			return nil, err
		}
		result = append(result, mailbox)
	}
	return result, rows.Err()
}

func (r *tenantRepository) GetMailbox(ctx context.Context, mailboxID string) (*domain.Mailbox, error) {
	const query = `SELECT id, tenant_id, address, active FROM mailboxes WHERE id=$1`
	var mailbox domain.Mailbox
	if err := r.pool.QueryRow(ctx, query, mailboxID).Scan(
		&mailbox.ID, &mailbox.TenantID, &mailbox.Address, &mailbox.Active,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &mailbox, nil
}

func (r *tenantRepository) SaveMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	const query = `
        INSERT INTO mailboxes (id, tenant_id, address, active) VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET address=EXCLUDED.address, active=EXCLUDED.active`
	_, err := r.pool.Exec(ctx, query, mailbox.ID, mailbox.TenantID, mailbox.Address, mailbox.Active)
	return err
}

func (r *tenantRepository) ListQueues(ctx context.Context, tenantID string) ([]domain.Queue, error) {
	const query = `SELECT id, tenant_id, name FROM queues WHERE tenant_id=$1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Queue
	for rows.Next() {
		var queue domain.Queue
		if err := rows.Scan(&queue.ID, &queue.TenantID, &queue.Name); err != nil {
			return nil, err
		}
		result = append(result, queue)
	}
	return result, rows.Err()
}

func (r *tenantRepository) SaveQueue(ctx context.Context, queue *domain.Queue) error {
	const query = `
        INSERT INTO queues (id, tenant_id, name) VALUES ($1,$2,$3)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name`
	_, err := r.pool.Exec(ctx, query, queue.ID, queue.TenantID, queue.Name)
	return err
}

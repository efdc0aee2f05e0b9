package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/supporthub/internal/domain"
)

// TicketStore is the ticket aggregate store shared by ingestion, routing and the
// SLA monitor. Writes are optimistic: they succeed only while the stored version
// equals ticket.Version, and bump it on success.
type TicketStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, tenantID, number string) (*domain.Ticket, error)
	ListOpen(ctx context.Context, tenantID string, limit, offset int) ([]domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) error
	// CreateFromInbound assigns the ticket number and inserts the ticket, its first
	// message and the inbound record in one transaction.
	CreateFromInbound(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, rec *domain.InboundMessageRecord) error
	// AppendInbound applies the ticket mutation, appends the message and inserts the
	// inbound record in one transaction.
	AppendInbound(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, rec *domain.InboundMessageRecord) error
	ListMessages(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
}

type ticketStore struct {
	pool *pgxpool.Pool
}

// NewTicketStore instantiates the Postgres store.
func NewTicketStore(pool *pgxpool.Pool) TicketStore {
	return &ticketStore{pool: pool}
}

const ticketColumns = `id, tenant_id, number, subject, description, status, priority, source,
               requester_email, requester_name, issue_type, system, assigned_agent_id, assigned_queue_id,
               tags, first_response_at, resolved_at, closed_at, sla_paused_at, sla_paused_seconds,
               created_at, updated_at, deleted_at, version`

func (s *ticketStore) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE tenant_id=$1 AND id=$2`
	return fetchTicket(ctx, s.pool, query, tenantID, id)
}

func (s *ticketStore) GetByNumber(ctx context.Context, tenantID, number string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE tenant_id=$1 AND number=$2`
	return fetchTicket(ctx, s.pool, query, tenantID, number)
}

func (s *ticketStore) ListOpen(ctx context.Context, tenantID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + ticketColumns + `
             FROM tickets
             WHERE tenant_id=$1 AND deleted_at IS NULL AND status NOT IN ('RESOLVED','CLOSED')
             ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *ticketStore) Update(ctx context.Context, ticket *domain.Ticket) error {
	return updateTicket(ctx, s.pool, ticket)
}

func (s *ticketStore) CreateFromInbound(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, rec *domain.InboundMessageRecord) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = ticket.CreatedAt
	ticket.Version = 1

	seq, err := nextTicketSequence(ctx, tx, ticket.TenantID, ticket.CreatedAt)
	if err != nil {
		return fmt.Errorf("next ticket number: %w", err)
	}
	ticket.Number = domain.FormatTicketNumber(ticket.CreatedAt, seq)

	if err = insertTicket(ctx, tx, ticket); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	msg.TicketID = ticket.ID
	if err = insertMessage(ctx, tx, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	rec.TicketID = &ticket.ID
	if err = insertInboundRecord(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *ticketStore) AppendInbound(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, rec *domain.InboundMessageRecord) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = updateTicket(ctx, tx, ticket); err != nil {
		return err
	}
	msg.TicketID = ticket.ID
	if err = insertMessage(ctx, tx, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	rec.TicketID = &ticket.ID
	if err = insertInboundRecord(ctx, tx, rec); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		// the in-memory bump from updateTicket never reached the database
		ticket.Version--
		return err
	}
	return nil
}

func (s *ticketStore) ListMessages(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	return listMessages(ctx, s.pool, ticketID)
}

func nextTicketSequence(ctx context.Context, db dbtx, tenantID string, at time.Time) (int, error) {
	const query = `
        INSERT INTO ticket_number_sequences (tenant_id, day, last_value)
        VALUES ($1, $2, 1)
        ON CONFLICT (tenant_id, day) DO UPDATE SET last_value = ticket_number_sequences.last_value + 1
        RETURNING last_value`
	var seq int
	err := db.QueryRow(ctx, query, tenantID, at.UTC().Format("2006-01-02")).Scan(&seq)
	return seq, err
}

func insertTicket(ctx context.Context, db dbtx, t *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, tenant_id, number, subject, description, status, priority, source,
            requester_email, requester_name, issue_type, system, assigned_agent_id, assigned_queue_id,
            tags, first_response_at, resolved_at, closed_at, sla_paused_at, sla_paused_seconds,
            created_at, updated_at, deleted_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`
	_, err := db.Exec(ctx, query,
		t.ID,
		t.TenantID,
		t.Number,
		t.Subject,
		t.Description,
		t.Status,
		t.Priority,
		t.Source,
		t.RequesterEmail,
		t.RequesterName,
		t.IssueType,
		t.System,
		t.AssignedAgentID,
		t.AssignedQueueID,
		tagsOrEmpty(t.Tags),
		t.FirstResponseAt,
		t.ResolvedAt,
		t.ClosedAt,
		t.SlaPausedAt,
		int64(t.SlaPausedDuration/time.Second),
		t.CreatedAt,
		t.UpdatedAt,
		t.DeletedAt,
		t.Version,
	)
	return err
}

// updateTicket writes every mutable column guarded by the version the caller read.
func updateTicket(ctx context.Context, db dbtx, t *domain.Ticket) error {
	const query = `
        UPDATE tickets SET subject=$1, description=$2, status=$3, priority=$4, issue_type=$5, system=$6,
            assigned_agent_id=$7, assigned_queue_id=$8, tags=$9, first_response_at=$10, resolved_at=$11,
            closed_at=$12, sla_paused_at=$13, sla_paused_seconds=$14, deleted_at=$15,
            updated_at=$16, version=version+1
        WHERE tenant_id=$17 AND id=$18 AND version=$19`
	now := time.Now().UTC()
	cmd, err := db.Exec(ctx, query,
		t.Subject,
		t.Description,
		t.Status,
		t.Priority,
		t.IssueType,
		t.System,
		t.AssignedAgentID,
		t.AssignedQueueID,
		tagsOrEmpty(t.Tags),
		t.FirstResponseAt,
		t.ResolvedAt,
		t.ClosedAt,
		t.SlaPausedAt,
		int64(t.SlaPausedDuration/time.Second),
		t.DeletedAt,
		now,
		t.TenantID,
		t.ID,
		t.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

func fetchTicket(ctx context.Context, db dbtx, query string, args ...any) (*domain.Ticket, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, ErrNotFound
	}
	return &tickets[0], nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		var pausedSeconds int64
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TenantID,
			&ticket.Number,
			&ticket.Subject,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.Source,
			&ticket.RequesterEmail,
			&ticket.RequesterName,
			&ticket.IssueType,
			&ticket.System,
			&ticket.AssignedAgentID,
			&ticket.AssignedQueueID,
			&ticket.Tags,
			&ticket.FirstResponseAt,
			&ticket.ResolvedAt,
			&ticket.ClosedAt,
			&ticket.SlaPausedAt,
			&pausedSeconds,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.DeletedAt,
			&ticket.Version,
		); err != nil {
			return nil, err
		}
		ticket.SlaPausedDuration = time.Duration(pausedSeconds) * time.Second
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

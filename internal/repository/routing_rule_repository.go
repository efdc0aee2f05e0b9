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

// RoutingRuleRepository reads and replaces a tenant's ordered rule list.
type RoutingRuleRepository interface {
	ListByTenant(ctx context.Context, tenantID string) ([]domain.RoutingRule, error)
	// ReplaceForTenant swaps the whole rule list atomically.
	ReplaceForTenant(ctx context.Context, tenantID string, rules []domain.RoutingRule) error
}

type routingRuleRepository struct {
	pool *pgxpool.Pool
}

// NewRoutingRuleRepository builds repository.
func NewRoutingRuleRepository(pool *pgxpool.Pool) RoutingRuleRepository {
	return &routingRuleRepository{pool: pool}
}

func (r *routingRuleRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.RoutingRule, error) {
	const query = `
        SELECT id, tenant_id, name, match_type, operator, value, sort_position, queue_id,
               auto_assign_agent_id, auto_set_priority, auto_add_tags, active, created_at, updated_at
        FROM routing_rules WHERE tenant_id=$1 ORDER BY sort_position ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RoutingRule
	for rows.Next() {
		var rule domain.RoutingRule
		if err := rows.Scan(
			&rule.ID,
			&rule.TenantID,
			&rule.Name,
			&rule.MatchType,
			&rule.Operator,
			&rule.Value,
			&rule.SortPosition,
			&rule.QueueID,
			&rule.AutoAssignAgentID,
			&rule.AutoSetPriority,
			&rule.AutoAddTags,
			&rule.Active,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *routingRuleRepository) ReplaceForTenant(ctx context.Context, tenantID string, rules []domain.RoutingRule) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM routing_rules WHERE tenant_id=$1`, tenantID); err != nil {
		return err
	}

	const query = `
        INSERT INTO routing_rules (id, tenant_id, name, match_type, operator, value, sort_position, queue_id,
            auto_assign_agent_id, auto_set_priority, auto_add_tags, active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)`
	now := time.Now().UTC()
	for i := range rules {
		rule := &rules[i]
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		rule.TenantID = tenantID
		rule.CreatedAt, rule.UpdatedAt = now, now
		if _, err = tx.Exec(ctx, query,
			rule.ID,
			rule.TenantID,
			rule.Name,
			rule.MatchType,
			rule.Operator,
			rule.Value,
			rule.SortPosition,
			rule.QueueID,
			rule.AutoAssignAgentID,
			rule.AutoSetPriority,
			tagsOrEmpty(rule.AutoAddTags),
			rule.Active,
			now,
		); err != nil {
			if isUniqueViolation(err) {
				err = fmt.Errorf("%w: %d", ErrDuplicateSortPosition, rule.SortPosition)
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup matches no row in the caller's tenant.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a ticket changed since it was read.
	ErrVersionConflict = errors.New("ticket version conflict")
	// ErrDuplicateInbound is returned when the external message was already recorded for the tenant.
	ErrDuplicateInbound = errors.New("inbound message already recorded")
	// ErrDuplicateSortPosition is returned when two rules of a tenant share a position.
	ErrDuplicateSortPosition = errors.New("duplicate routing rule sort position")
)

const uniqueViolation = "23505"

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

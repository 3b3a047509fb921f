package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// SQLSTATE codes this layer cares about.
const (
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
)

// WithTx executes fn within a RepeatableRead transaction. Workflow cascades
// (receipt posting, payment clearing) rely on this: either every row in the
// cascade commits or none does.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return &shared.BackendError{Op: "begin tx", Err: err}
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return WrapError("commit tx", err)
	}

	return nil
}

// WrapError converts a driver error into the shared taxonomy. Serialization
// failures are marked retryable; unique violations are client-fixable.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure:
			return &shared.BackendError{Op: op, Err: err, Retryable: true}
		case codeUniqueViolation:
			return shared.NewValidationError(pgErr.ColumnName, "duplicate value")
		}
	}
	return &shared.BackendError{Op: op, Err: err}
}

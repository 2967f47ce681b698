package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/clinsight/ctr-registry-api/pkg/errors"
)

// Runner executes a function inside exactly one database transaction.
// Every mutating operation in the registry goes through a Runner so the
// entity writes, derived-state adjustments and the audit row commit or
// roll back together.
type Runner interface {
	RunInTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error
}

// SQLRunner is the production Runner backed by a *sqlx.DB.
type SQLRunner struct {
	db *sqlx.DB
}

// NewRunner wraps the database handle.
func NewRunner(db *sqlx.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

// RunInTx begins a transaction, invokes fn and commits on success.
// Any error from fn rolls the whole transaction back; the error is
// translated into the domain taxonomy before being returned.
func (r *SQLRunner) RunInTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Translate(fmt.Errorf("begin transaction: %w", err))
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return Translate(err)
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return Translate(fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

// Postgres error classes relevant to the registry invariants.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Translate maps low-level store errors onto the domain error taxonomy.
// Unique violations become Conflict, foreign-key violations become
// NotFound (the referenced parent is gone), timeouts and connection
// failures become a retryable store-unavailable error. Errors already
// typed by the caller pass through untouched.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "duplicate value violates a uniqueness constraint")
		case pqForeignKeyViolation:
			return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "referenced resource no longer exists")
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}

	return err
}

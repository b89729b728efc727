package dbx

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// IsSerializationFailure reports whether err is a PostgreSQL serialization
// failure (SQLSTATE 40001) or deadlock (40P01). Both mean the transaction
// lost a race and is safe to run again from the top.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports whether err is a PostgreSQL unique violation
// (SQLSTATE 23505) on one of the named constraints. With no names it matches
// any unique violation.
func IsUniqueViolation(err error, constraints ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if pgErr.ConstraintName == c {
			return true
		}
	}
	return false
}

// WithTxRetry runs fn inside WithTx and re-runs the whole transaction with
// exponential backoff when the database reports a serialization failure or
// deadlock. Callers may pass extra retryable predicates, for contention that
// surfaces as something other than 40001, such as a unique violation on a
// partial index backstopping a row-level invariant. Any other error aborts
// immediately. After maxRetries retries the last error is returned
// unchanged; callers map it to their own conflict sentinel.
func WithTxRetry(ctx context.Context, db *sql.DB, opts *sql.TxOptions, maxRetries uint64, baseDelay time.Duration, fn func(ctx context.Context, tx DBTX) error, retryable ...func(error) bool) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := WithTx(ctx, db, opts, fn); err != nil {
			if IsSerializationFailure(err) {
				return retry.RetryableError(err)
			}
			for _, p := range retryable {
				if p(err) {
					return retry.RetryableError(err)
				}
			}
			return err
		}
		return nil
	})
	return err
}

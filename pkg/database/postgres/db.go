package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
)

const maxSerializationRetries = 5

// ExecuteRetryable retries fn while it fails with a serialization failure, up
// to a fixed number of attempts
func ExecuteRetryable(fn func() error) error {
	var err error
	for i := 0; i < maxSerializationRetries; i++ {
		err = fn()
		if !IsSerializationFailure(err) {
			return err
		}
	}
	return err
}

// ExecuteInTx executes fn within a new DB transaction at the requested
// isolation level. The transaction is committed if fn succeeds, and rolled
// back otherwise.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	if isolation == sql.LevelDefault {
		isolation = sql.LevelReadCommitted // Postgres default
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: isolation,
	})
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		// We always need to execute a Rollback() so sql.DB releases the connection.
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("failed to rollback transaction: %w", rollbackErr)
		}
		return err
	}
	return tx.Commit()
}

// IsSerializationFailure returns whether err is a serialization failure that
// can be resolved by retrying the transaction
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.SerializationFailure
}

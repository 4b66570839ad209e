package sql

import (
	"context"
	"time"

	fcerrors "github.com/xmppfed/fedcore/errors"
	"github.com/xmppfed/fedcore/log"
)

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Transact runs fn inside a SQL transaction. If fn returns an error (the
// transaction is then rolled back) or the commit fails, it retries exactly
// once, whatever the error was; a second failure is logged and returned
// wrapped as "sql: transaction aborted" (spec §7). The retry re-begins a
// fresh transaction; fn must be idempotent with respect to reads it
// performed against the aborted one, which holds for every node-mutating
// path in this package (each reads then writes its own row set within the
// same transaction).
func (r *Repository) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fcerrors.Wrap(err, "sql: begin transaction")
		}
		txCtx := context.WithValue(ctx, txKey, querier(tx))
		if err := fn(txCtx); err != nil {
			_ = tx.Rollback()
			lastErr = err
			continue
		}
		if err := tx.Commit(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	log.Errorf("sql: transaction failed twice: %v", lastErr)
	return fcerrors.Wrap(lastErr, "sql: transaction aborted")
}

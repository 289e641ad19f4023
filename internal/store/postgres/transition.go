package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// transition is the single read-check-write unit used by every state change.
//
// load reads the current state, decide reports whether a mutation is needed
// (or why the action is refused), and apply performs a guarded write that
// returns pgx.ErrNoRows when its guard no longer holds. audit describes the
// committed change; it is written in the same transaction.
type transition[T any] struct {
	isolation pgx.TxIsoLevel
	load      func(ctx context.Context, tx pgx.Tx) (T, error)
	decide    func(current T) (bool, error)
	apply     func(ctx context.Context, tx pgx.Tx, current T) (T, error)
	audit     func(next T) auditRecord
}

// run executes t atomically. applied is false when no write happened, either
// because decide said so or because a concurrent transaction won the guarded
// write; in the latter case the state is re-read and decide is consulted again
// so the caller sees the winner's committed row.
func run[T any](ctx context.Context, pool *pgxpool.Pool, t transition[T]) (result T, applied bool, err error) {
	isolation := t.isolation
	if isolation == "" {
		isolation = pgx.ReadCommitted
	}
	err = withTx(ctx, pool, isolation, func(tx pgx.Tx) error {
		current, err := t.load(ctx, tx)
		if err != nil {
			return err
		}
		needed, err := t.decide(current)
		if err != nil {
			return err
		}
		if !needed {
			result = current
			return nil
		}

		next, err := t.apply(ctx, tx, current)
		if errors.Is(err, pgx.ErrNoRows) {
			current, err = t.load(ctx, tx)
			if err != nil {
				return err
			}
			if _, err = t.decide(current); err != nil {
				return err
			}
			result = current
			return nil
		}
		if err != nil {
			return err
		}

		if t.audit != nil {
			if err := insertAuditEvent(ctx, tx, t.audit(next)); err != nil {
				return err
			}
		}
		result = next
		applied = true
		return nil
	})
	if err != nil {
		var zero T
		return zero, false, classify(err)
	}
	return result, applied, nil
}

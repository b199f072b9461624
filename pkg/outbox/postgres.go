package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxDispatchAttempts is how many relay deliveries an event gets before it
// is left in the failed state for an operator.
const MaxDispatchAttempts = 5

type PGStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewPGStore(log *slog.Logger, pool *pgxpool.Pool) *PGStore {
	return &PGStore{log: log, pool: pool}
}

func (s *PGStore) Insert(ctx context.Context, e Event) error {
	if e.Headers == nil {
		e.Headers = map[string]string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox (topic, aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending')`,
		e.Topic, e.AggregateType, e.AggregateID, e.Type, e.Payload, e.Headers, e.Traceparent)
	return err
}

// LockBatch claims pending events, plus in-progress ones whose lease ran
// out because a relay died mid-batch.
func (s *PGStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, topic, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
		FROM outbox
		WHERE status = 'pending'
		   OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.Headers, &e.Traceparent, &e.CreatedAt, &e.RetryCount); err != nil {
			rows.Close()
			return nil, err
		}
		e.Status = StatusInProgress
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}

	_, err = tx.Exec(ctx, `UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval WHERE id = ANY($3)`, relayID, lease.String(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *PGStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent', lease_until=NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("no rows updated")
	}
	return nil
}

// MarkFailed puts the event back in the queue until it has used up
// MaxDispatchAttempts.
func (s *PGStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1,
		    last_error = $2,
		    lease_until = NULL,
		    status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1`, id, errMsg, MaxDispatchAttempts)
	if err != nil {
		s.log.Error("outbox mark failed", "event_id", id, "err", err)
	}
	return err
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/course_booking/internal/outbox"
	"github.com/Freeeeeet/course_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxRepository struct {
	*base.Repository
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{Repository: base.NewRepository(pool)}
}

// LockBatch забирает пачку событий в работу: pending и те, у кого истекла аренда
func (r *OutboxRepository) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	var events []outbox.Event

	err := r.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, retry_count, created_at
			FROM outbox
			WHERE status = 'pending'
			   OR (status = 'in_progress' AND lease_until < now())
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		`, batchSize)
		if err != nil {
			return fmt.Errorf("select outbox batch: %w", err)
		}

		for rows.Next() {
			var ev outbox.Event
			err := rows.Scan(
				&ev.ID,
				&ev.AggregateType,
				&ev.AggregateID,
				&ev.Type,
				&ev.Payload,
				&ev.Headers,
				&ev.Traceparent,
				&ev.RetryCount,
				&ev.CreatedAt,
			)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan outbox event: %w", err)
			}
			ev.Status = outbox.StatusInProgress
			ev.RelayID = relayID
			events = append(events, ev)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate outbox batch: %w", err)
		}

		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, ev := range events {
			ids = append(ids, ev.ID)
		}

		_, err = tx.Exec(ctx, `
			UPDATE outbox
			SET status = 'in_progress', relay_id = $1, lease_until = now() + $2::interval
			WHERE id = ANY($3)`,
			relayID, lease.String(), ids)
		if err != nil {
			return fmt.Errorf("lease outbox batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

// MarkSent отмечает события как отправленные
func (r *OutboxRepository) MarkSent(ctx context.Context, ids []int64) error {
	_, err := r.Pool().Exec(ctx, `UPDATE outbox SET status = 'sent', lease_until = NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

// MarkFailed возвращает событие в pending, пока не исчерпаны попытки
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := `
		UPDATE outbox
		SET retry_count = retry_count + 1,
		    last_error  = $2,
		    lease_until = NULL,
		    status      = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1
	`

	_, err := r.Pool().Exec(ctx, query, id, errMsg, outbox.MaxAttempts)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// ExtendLease продлевает аренду событий текущего relay
func (r *OutboxRepository) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := r.Pool().Exec(ctx, `
		UPDATE outbox SET lease_until = now() + $1::interval
		WHERE id = ANY($2) AND relay_id = $3`,
		lease.String(), ids, relayID)
	if err != nil {
		return fmt.Errorf("extend outbox lease: %w", err)
	}
	return nil
}

package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store хранилище событий outbox
type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
}

// Publisher отправляет одно событие наружу
type Publisher interface {
	Dispatch(ctx context.Context, event Event) error
}

// Result итог одного прохода relay
type Result struct {
	Sent   int
	Failed int
}

// Relay периодически переносит события из outbox в брокер
type Relay struct {
	logger    *zap.Logger
	store     Store
	publisher Publisher
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration

	// OnResult вызывается после каждого непустого прохода (метрики)
	OnResult func(Result)
}

func NewRelay(logger *zap.Logger, store Store, publisher Publisher, relayID string) *Relay {
	return &Relay{
		logger:    logger,
		store:     store,
		publisher: publisher,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
	}
}

// Run крутит RunOnce по тикеру до отмены контекста
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopping", zap.String("relay_id", r.relayID))
			return nil
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("Outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce забирает одну пачку и отправляет её
func (r *Relay) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return res, err
	}
	if len(events) == 0 {
		return res, nil
	}

	started := time.Now()
	sent := make([]int64, 0, len(events))
	for i, ev := range events {
		if time.Since(started) > r.lease/2 {
			r.extend(ctx, events[i:])
			started = time.Now()
		}

		if err := r.publisher.Dispatch(ctx, ev); err != nil {
			res.Failed++
			if markErr := r.store.MarkFailed(ctx, ev.ID, err.Error()); markErr != nil {
				r.logger.Error("Outbox mark failed error", zap.Int64("event_id", ev.ID), zap.Error(markErr))
			}
			continue
		}
		sent = append(sent, ev.ID)
	}

	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return res, err
		}
		res.Sent = len(sent)
	}

	if r.OnResult != nil {
		r.OnResult(res)
	}

	return res, nil
}

func (r *Relay) extend(ctx context.Context, rest []Event) {
	ids := make([]int64, 0, len(rest))
	for _, ev := range rest {
		ids = append(ids, ev.ID)
	}
	if err := r.store.ExtendLease(ctx, r.relayID, ids, r.lease); err != nil {
		r.logger.Warn("Outbox lease extension failed", zap.Error(err))
	}
}

package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record состояние запроса под ключом идемпотентности
type Record struct {
	Done        bool   `json:"done"`
	Fingerprint string `json:"fingerprint,omitempty"` // sha256 тела запроса
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store хранилище ключей идемпотентности
type Store interface {
	// Claim занимает ключ за запросом с данным отпечатком;
	// если ключ уже занят, возвращает существующую запись
	Claim(ctx context.Context, key, fingerprint string) (claimed bool, existing *Record, err error)
	Complete(ctx context.Context, key string, rec Record) error
	Release(ctx context.Context, key string) error
}

type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "idem:orders:"}
}

func (s *RedisStore) Key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Claim(ctx context.Context, key, fingerprint string) (bool, *Record, error) {
	pending, err := json.Marshal(Record{Fingerprint: fingerprint})
	if err != nil {
		return false, nil, err
	}

	ok, err := s.rdb.SetNX(ctx, s.Key(key), pending, s.ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return true, nil, nil
	}

	raw, err := s.rdb.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// ключ истёк между SETNX и GET
		return s.Claim(ctx, key, fingerprint)
	}
	if err != nil {
		return false, nil, fmt.Errorf("get idempotency key: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false, nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return false, &rec, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, rec Record) error {
	rec.Done = true
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.Key(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.Key(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

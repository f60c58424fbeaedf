package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mealgen/internal/domain"
)

const progressKeyPrefix = "mealgen:progress:"

// RedisMirror keeps the latest snapshot of each batch in Redis with a TTL so
// progress survives in-memory pruning and process restarts.
type RedisMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisMirror parses url and connects lazily.
func NewRedisMirror(url string, ttl time.Duration) (*RedisMirror, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisMirrorFromClient(redis.NewClient(opt), ttl), nil
}

func NewRedisMirrorFromClient(rdb *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{rdb: rdb, ttl: ttl}
}

// Ping checks connectivity.
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

func (m *RedisMirror) Save(ctx context.Context, snap domain.ProgressSnapshot) error {
	if snap.BatchID == "" {
		return errors.New("snapshot has no batch id")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, progressKey(snap.BatchID), payload, m.ttl).Err()
}

func (m *RedisMirror) Load(ctx context.Context, batchID string) (domain.ProgressSnapshot, error) {
	data, err := m.rdb.Get(ctx, progressKey(batchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ProgressSnapshot{}, domain.ErrNotFound
		}
		return domain.ProgressSnapshot{}, err
	}
	var snap domain.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.ProgressSnapshot{}, fmt.Errorf("decode snapshot %s: %w", batchID, err)
	}
	return snap, nil
}

func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}

func progressKey(batchID string) string {
	return progressKeyPrefix + batchID
}

var _ Mirror = (*RedisMirror)(nil)

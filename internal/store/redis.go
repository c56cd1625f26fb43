package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pegdao/policy-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertOperation(ctx context.Context, op *model.Operation) error {
	if err := s.primary.InsertOperation(ctx, op); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountOpsKey(op.Account))
	return nil
}

func (s *CachedStore) InsertEpochRecord(ctx context.Context, rec *model.EpochRecord) error {
	if err := s.primary.InsertEpochRecord(ctx, rec); err != nil {
		return err
	}
	// Latest epoch changed; next read re-populates.
	s.rdb.Del(ctx, latestEpochKey())
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListOperationsByAccount(ctx context.Context, account string) ([]model.Operation, error) {
	data, err := s.rdb.Get(ctx, accountOpsKey(account)).Bytes()
	if err == nil {
		var ops []model.Operation
		if json.Unmarshal(data, &ops) == nil {
			return ops, nil
		}
	}

	ops, err := s.primary.ListOperationsByAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(ops); err == nil {
		s.rdb.Set(ctx, accountOpsKey(account), data, s.ttl)
	}
	return ops, nil
}

func (s *CachedStore) LatestEpochRecord(ctx context.Context) (*model.EpochRecord, error) {
	data, err := s.rdb.Get(ctx, latestEpochKey()).Bytes()
	if err == nil {
		var rec model.EpochRecord
		if json.Unmarshal(data, &rec) == nil {
			return &rec, nil
		}
	}

	rec, err := s.primary.LatestEpochRecord(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rec); err == nil {
		s.rdb.Set(ctx, latestEpochKey(), data, s.ttl)
	}
	return rec, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListOperationsByKind(ctx context.Context, kind string) ([]model.Operation, error) {
	return s.primary.ListOperationsByKind(ctx, kind)
}

func (s *CachedStore) ListEpochRecords(ctx context.Context) ([]model.EpochRecord, error) {
	return s.primary.ListEpochRecords(ctx)
}

// --- Cache keys ---

func accountOpsKey(account string) string { return fmt.Sprintf("ops:%s", account) }
func latestEpochKey() string              { return "epoch:latest" }
